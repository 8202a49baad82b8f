package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/northbeam-ai/sitegate/pkg/apiresponses"
	"github.com/northbeam-ai/sitegate/pkg/content"
)

// ContentController serves the public CMS sections.
type ContentController struct {
	store *content.Store
}

func NewContentController(store *content.Store) *ContentController {
	return &ContentController{store: store}
}

func (cc *ContentController) BasePath() string { return "content" }

func (cc *ContentController) Handlers() []gin.HandlerFunc { return nil }

func (cc *ContentController) Register(rg *gin.RouterGroup) error {
	rg.GET("", cc.list)
	rg.GET(":slug", cc.get)
	return nil
}

func (cc *ContentController) list(c *gin.Context) {
	apiresponses.RespondOK(c, gin.H{"sections": cc.store.List(c.Request.Context())})
}

func (cc *ContentController) get(c *gin.Context) {
	slug := c.Param("slug")
	sec, err := cc.store.Get(c.Request.Context(), slug)
	switch {
	case errors.Is(err, content.ErrInvalidSlug):
		apiresponses.RespondBadRequest(c, "invalid slug")
	case errors.Is(err, content.ErrNotFound):
		apiresponses.RespondNotFound(c, "section", slug)
	case err != nil:
		apiresponses.RespondInternalError(c, "load section", err, nil)
	default:
		apiresponses.RespondOK(c, sec)
	}
}
