package api

import (
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/apiresponses"
	"github.com/northbeam-ai/sitegate/pkg/audit"
	"github.com/northbeam-ai/sitegate/pkg/auth"
	"github.com/northbeam-ai/sitegate/pkg/contact"
	"github.com/northbeam-ai/sitegate/pkg/content"
	"github.com/northbeam-ai/sitegate/pkg/ratelimit"
	"github.com/northbeam-ai/sitegate/pkg/system"
)

type blockRequest struct {
	IP string `json:"ip" binding:"required"`
	// Action is "block" (default) or "mark" to record one suspicious event.
	Action string `json:"action"`
}

type leadPage struct {
	Items    []contact.Lead `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// AdminController serves /api/admin. Every route requires an admin token.
type AdminController struct {
	tokens    *auth.TokenManager
	contacts  *contact.Service
	content   *content.Store
	suspicion *ratelimit.SuspicionTracker
	audit     audit.Emitter
	log       *zap.SugaredLogger
}

type AdminDeps struct {
	Tokens    *auth.TokenManager
	Contacts  *contact.Service
	Content   *content.Store
	Suspicion *ratelimit.SuspicionTracker
	Audit     audit.Emitter
}

func NewAdminController(deps AdminDeps, log *zap.SugaredLogger) *AdminController {
	return &AdminController{
		tokens:    deps.Tokens,
		contacts:  deps.Contacts,
		content:   deps.Content,
		suspicion: deps.Suspicion,
		audit:     emitterOrNop(deps.Audit),
		log:       log.Named("admin"),
	}
}

func (a *AdminController) BasePath() string { return "admin" }

func (a *AdminController) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{a.tokens.RequireAdmin(a.log)}
}

func (a *AdminController) Register(rg *gin.RouterGroup) error {
	rg.PUT("content/:slug", a.putContent)
	rg.GET("contacts", a.listContacts)
	rg.GET("contacts/:id", a.getContact)
	rg.DELETE("contacts/:id", a.deleteContact)
	rg.GET("security/blocked", a.listBlocked)
	rg.POST("security/block", a.block)
	rg.DELETE("security/blocked/:ip", a.unblock)
	return nil
}

func (a *AdminController) putContent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	var upd content.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid request body", err.Error())
		return
	}
	sec, err := a.content.Put(c.Request.Context(), c.Param("slug"), upd, actor(c))
	if errors.Is(err, content.ErrInvalidSlug) {
		apiresponses.RespondBadRequest(c, "invalid slug")
		return
	}
	if err != nil {
		apiresponses.RespondInternalError(c, "update section", err, system.GetReqLogger(c, a.log))
		return
	}
	apiresponses.RespondOK(c, sec)
}

func (a *AdminController) listContacts(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		apiresponses.RespondBadRequest(c, err.Error())
		return
	}
	items, total, err := a.contacts.List(c.Request.Context(), page)
	if err != nil {
		apiresponses.RespondInternalError(c, "list contact requests", err, system.GetReqLogger(c, a.log))
		return
	}
	apiresponses.RespondOK(c, leadPage{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize})
}

func (a *AdminController) getContact(c *gin.Context) {
	lead, err := a.contacts.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, contact.ErrNotFound) {
		apiresponses.RespondNotFound(c, "lead", c.Param("id"))
		return
	}
	if err != nil {
		apiresponses.RespondInternalError(c, "load contact request", err, system.GetReqLogger(c, a.log))
		return
	}
	apiresponses.RespondOK(c, lead)
}

func (a *AdminController) deleteContact(c *gin.Context) {
	err := a.contacts.Delete(c.Request.Context(), c.Param("id"), actor(c))
	if errors.Is(err, contact.ErrNotFound) {
		apiresponses.RespondNotFound(c, "lead", c.Param("id"))
		return
	}
	if err != nil {
		apiresponses.RespondInternalError(c, "delete contact request", err, system.GetReqLogger(c, a.log))
		return
	}
	apiresponses.RespondNoContent(c)
}

func (a *AdminController) listBlocked(c *gin.Context) {
	ips, err := a.suspicion.Blocked(c.Request.Context())
	if err != nil {
		apiresponses.RespondInternalError(c, "list blocked addresses", err, system.GetReqLogger(c, a.log))
		return
	}
	if ips == nil {
		ips = []string{}
	}
	apiresponses.RespondOK(c, gin.H{"blocked": ips})
}

func (a *AdminController) block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "ip is required")
		return
	}
	if net.ParseIP(req.IP) == nil {
		apiresponses.RespondBadRequest(c, "ip must be a valid IPv4 or IPv6 address")
		return
	}

	ctx := c.Request.Context()
	blocked := true
	switch req.Action {
	case "", "block":
		if err := a.suspicion.Block(ctx, req.IP); err != nil {
			apiresponses.RespondInternalError(c, "block address", err, system.GetReqLogger(c, a.log))
			return
		}
	case "mark":
		blocked = a.suspicion.Mark(ctx, req.IP)
	default:
		apiresponses.RespondBadRequest(c, `action must be "block" or "mark"`)
		return
	}

	if blocked {
		a.audit.Emit(ctx, &audit.Event{
			Type:          audit.EventIPBlocked,
			Actor:         actor(c),
			Target:        audit.Target{Kind: "ip", Name: req.IP},
			Details:       map[string]interface{}{"reason": "admin " + actionName(req.Action)},
			CorrelationID: requestID(c),
		})
	}
	apiresponses.RespondOK(c, gin.H{"ip": req.IP, "blocked": blocked})
}

func actionName(action string) string {
	if action == "" {
		return "block"
	}
	return action
}

func (a *AdminController) unblock(c *gin.Context) {
	ip := c.Param("ip")
	if err := a.suspicion.Unblock(c.Request.Context(), ip); err != nil {
		apiresponses.RespondInternalError(c, "unblock address", err, system.GetReqLogger(c, a.log))
		return
	}
	a.audit.Emit(c.Request.Context(), &audit.Event{
		Type:          audit.EventIPUnblocked,
		Actor:         actor(c),
		Target:        audit.Target{Kind: "ip", Name: ip},
		CorrelationID: requestID(c),
	})
	apiresponses.RespondNoContent(c)
}
