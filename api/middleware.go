package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/ticketbari/internal/auth"
	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const actorKey = "actor"

type TokenParser interface {
	Parse(raw string) (domain.Actor, error)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if actor, ok := actorFrom(c); ok {
			fields["actor"] = actor.Email
		}
		entry := logger.WithFields(fields)
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Error("request failed")
			return
		}
		entry.Info("request")
	}
}

// Authenticate requires a valid bearer token and stores its actor on the
// context.
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: codeUnauthorized, Error: "missing bearer token"})
			return
		}
		actor, err := tokens.Parse(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRole lets the request through only for the given roles. It must run
// after Authenticate.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if ok {
			for _, r := range roles {
				if actor.Role == r {
					c.Next()
					return
				}
			}
		}
		writeError(c, fmt.Errorf("%w: role %q not allowed here", domain.ErrForbidden, actor.Role))
	}
}

func actorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}
