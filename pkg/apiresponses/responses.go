/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/system"
)

// ErrorCode is the machine readable reason carried in APIError.Code.
type ErrorCode string

const (
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeBadRequest         ErrorCode = "BAD_REQUEST"
	CodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// APIError is the error envelope returned by every JSON endpoint.
type APIError struct {
	Error   string            `json:"error"`
	Code    ErrorCode         `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	// RequestID lets operators find the matching access log and audit events.
	RequestID string `json:"requestId,omitempty"`
}

func respond(c *gin.Context, status int, body APIError) {
	if body.RequestID == "" {
		body.RequestID = c.Writer.Header().Get(system.RequestIDHeader)
	}
	c.JSON(status, body)
}

// RespondNotFound sends a 404 naming the missing resource.
func RespondNotFound(c *gin.Context, resourceType, resourceName string) {
	respond(c, http.StatusNotFound, APIError{
		Error: fmt.Sprintf("%s not found: %s", resourceType, resourceName),
		Code:  CodeNotFound,
	})
}

// RespondUnauthorized sends a 401 for a missing session.
func RespondUnauthorized(c *gin.Context) {
	RespondUnauthorizedWithMessage(c, "")
}

func RespondUnauthorizedWithMessage(c *gin.Context, message string) {
	if message == "" {
		message = "not authenticated"
	}
	respond(c, http.StatusUnauthorized, APIError{Error: message, Code: CodeUnauthorized})
}

// RespondForbidden sends a 403 for an authenticated caller lacking the admin role.
func RespondForbidden(c *gin.Context, reason string) {
	if reason == "" {
		reason = "access denied"
	}
	respond(c, http.StatusForbidden, APIError{Error: reason, Code: CodeForbidden})
}

// RespondBadRequest sends a 400 for malformed JSON or invalid parameters.
func RespondBadRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, APIError{Error: message, Code: CodeBadRequest})
}

func RespondBadRequestWithDetails(c *gin.Context, message, details string) {
	respond(c, http.StatusBadRequest, APIError{Error: message, Code: CodeBadRequest, Details: details})
}

// RespondValidationFailed sends a 400 listing each rejected field with its reason.
func RespondValidationFailed(c *gin.Context, fields map[string]string) {
	respond(c, http.StatusBadRequest, APIError{
		Error:  "validation failed",
		Code:   CodeValidationFailed,
		Fields: fields,
	})
}

// RespondConflict sends a 409, e.g. for a lead whose email is already on file.
func RespondConflict(c *gin.Context, message string) {
	respond(c, http.StatusConflict, APIError{Error: message, Code: CodeConflict})
}

// RespondInternalError logs err and sends a 500 that only names the failed operation.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	body := APIError{
		Error:     "failed to " + operation,
		Code:      CodeInternal,
		RequestID: c.Writer.Header().Get(system.RequestIDHeader),
	}
	if log != nil {
		log.Errorw("Failed to "+operation, "error", err, "requestID", body.RequestID)
	}
	respond(c, http.StatusInternalServerError, body)
}

// RespondServiceUnavailable sends a 503 naming the unavailable dependency.
func RespondServiceUnavailable(c *gin.Context, service string) {
	respond(c, http.StatusServiceUnavailable, APIError{
		Error: "service unavailable: " + service,
		Code:  CodeServiceUnavailable,
	})
}

func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
