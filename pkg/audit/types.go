// SPDX-FileCopyrightText: 2025 Northbeam AI
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// === Security middleware events ===
	EventSensitivePathBlocked EventType = "security.sensitive_path_blocked"
	EventBlockedIPRequest     EventType = "security.blocked_ip_request"
	EventRateLimited          EventType = "security.rate_limited"
	EventSuspiciousActivity   EventType = "security.suspicious_activity"
	EventIPBlocked            EventType = "security.ip_blocked"
	EventIPUnblocked          EventType = "security.ip_unblocked"

	// === Admin area events ===
	EventAdminAccess       EventType = "admin.access"
	EventAdminAccessDenied EventType = "admin.access_denied"

	// === Authentication events ===
	EventAuthSuccess EventType = "auth.success"
	EventAuthFailure EventType = "auth.failure"
	EventAuthLogout  EventType = "auth.logout"

	// === Site data events ===
	EventContactSubmitted EventType = "contact.submitted"
	EventContactDeleted   EventType = "contact.deleted"
	EventContentUpdated   EventType = "content.updated"

	// === System events ===
	EventSystemStartup  EventType = "system.startup"
	EventSystemShutdown EventType = "system.shutdown"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as min. Unknown severities rank as info.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// ParseSeverity maps a configuration value to a Severity; "" means info.
func ParseSeverity(v string) (Severity, error) {
	switch Severity(v) {
	case "", SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning, SeverityCritical:
		return Severity(v), nil
	}
	return "", fmt.Errorf("unknown audit severity %q", v)
}

// Event represents a single audit event
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Actor is who triggered the event
	Actor Actor `json:"actor"`

	// Target is what was affected by the event
	Target Target `json:"target"`

	// Details contains event-specific information
	Details map[string]interface{} `json:"details,omitempty"`

	// CorrelationID ties the event to the request that caused it.
	CorrelationID string `json:"correlationId,omitempty"`
}

// Actor represents who triggered an audit event
type Actor struct {
	// User is the admin username, empty for anonymous visitors.
	User string `json:"user,omitempty"`

	// SourceIP is the client id derived from forwarding headers
	SourceIP string `json:"sourceIP,omitempty"`

	// UserAgent from the request
	UserAgent string `json:"userAgent,omitempty"`
}

// Target represents what was affected by an audit event
type Target struct {
	// Kind is "path", "ip", "lead", "content" or "session".
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// SeverityForEventType returns the default severity for an event type
func SeverityForEventType(eventType EventType) Severity {
	switch eventType {
	case EventIPBlocked, EventAdminAccessDenied:
		return SeverityCritical

	case EventSensitivePathBlocked, EventBlockedIPRequest, EventRateLimited,
		EventSuspiciousActivity, EventAuthFailure, EventContactDeleted, EventIPUnblocked:
		return SeverityWarning

	default:
		return SeverityInfo
	}
}

// IsSecurityEvent reports whether the event was produced by the request guard
// rather than by a deliberate user action.
func IsSecurityEvent(eventType EventType) bool {
	switch eventType {
	case EventSensitivePathBlocked, EventBlockedIPRequest, EventRateLimited,
		EventSuspiciousActivity, EventIPBlocked, EventAdminAccessDenied:
		return true
	default:
		return false
	}
}
