package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/apiresponses"
	"github.com/northbeam-ai/sitegate/pkg/contact"
	"github.com/northbeam-ai/sitegate/pkg/ratelimit"
	"github.com/northbeam-ai/sitegate/pkg/system"
)

// ContactController serves the public contact form endpoint.
type ContactController struct {
	service *contact.Service
	limiter *ratelimit.Limiter
	log     *zap.SugaredLogger
}

func NewContactController(service *contact.Service, limiter *ratelimit.Limiter, log *zap.SugaredLogger) *ContactController {
	return &ContactController{service: service, limiter: limiter, log: log.Named("contact")}
}

func (cc *ContactController) BasePath() string { return "contact" }

// Handlers applies the stricter contact rule on top of the global API rule.
func (cc *ContactController) Handlers() []gin.HandlerFunc {
	if cc.limiter == nil {
		return nil
	}
	return []gin.HandlerFunc{cc.limiter.Middleware(ratelimit.CategoryContact)}
}

func (cc *ContactController) Register(rg *gin.RouterGroup) error {
	rg.POST("", cc.submit)
	return nil
}

func (cc *ContactController) submit(c *gin.Context) {
	log := system.GetReqLogger(c, cc.log)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var sub contact.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid request body", err.Error())
		return
	}

	lead, err := cc.service.Submit(c.Request.Context(), sub, contact.RequestMeta{
		ClientIP:      ratelimit.ClientID(c.Request),
		UserAgent:     c.Request.UserAgent(),
		CorrelationID: requestID(c),
	})
	var verr *contact.ValidationError
	switch {
	case errors.As(err, &verr):
		apiresponses.RespondValidationFailed(c, verr.Fields)
	case errors.Is(err, contact.ErrDuplicate):
		apiresponses.RespondConflict(c, "we already have a request from this email address")
	case err != nil:
		apiresponses.RespondInternalError(c, "store contact request", err, log)
	default:
		apiresponses.RespondCreated(c, gin.H{
			"id":      lead.ID,
			"message": "Thank you! We will get back to you shortly.",
		})
	}
}

// pageFromQuery reads page and pageSize. Out of range values are clamped by contact.Page.
func pageFromQuery(c *gin.Context) (contact.Page, error) {
	var p contact.Page
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.New("page must be an integer")
		}
		p.Page = n
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.New("pageSize must be an integer")
		}
		p.PageSize = n
	}
	return p.Normalize(), nil
}
