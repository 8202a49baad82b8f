package api

import (
	"github.com/gin-gonic/gin"

	"github.com/northbeam-ai/sitegate/pkg/audit"
	"github.com/northbeam-ai/sitegate/pkg/ratelimit"
	"github.com/northbeam-ai/sitegate/pkg/system"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// actor describes the caller for audit events.
func actor(c *gin.Context) audit.Actor {
	return audit.Actor{
		User:      c.GetString("username"),
		SourceIP:  ratelimit.ClientID(c.Request),
		UserAgent: c.Request.UserAgent(),
	}
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get(system.RequestIDHeader)
}

func emitterOrNop(e audit.Emitter) audit.Emitter {
	if e == nil {
		return audit.NopEmitter{}
	}
	return e
}
