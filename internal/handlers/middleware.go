package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/session"
)

const sessionKey = "session"

// sessionMiddleware requires a valid session cookie and stores the resolved
// session in the Gin context.
func (h *Handler) sessionMiddleware(c *gin.Context) {
	cookie, err := c.Cookie(session.CookieName)
	if err != nil || cookie == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":  string(nest.KindAuthRequired),
			"reauth": true,
		})
		return
	}

	sess, err := h.services.Resolve(c.Request.Context(), cookie)
	if err != nil {
		h.respondError(c, err)
		c.Abort()
		return
	}

	c.Set(sessionKey, sess)
	c.Next()
}

// optionalSessionMiddleware resolves the session when a valid cookie is
// present and passes through anonymously otherwise.
func (h *Handler) optionalSessionMiddleware(c *gin.Context) {
	cookie, err := c.Cookie(session.CookieName)
	if err == nil && cookie != "" {
		if sess, err := h.services.Resolve(c.Request.Context(), cookie); err == nil {
			c.Set(sessionKey, sess)
		}
	}
	c.Next()
}

// currentSession returns the session placed by the middleware, or nil.
func currentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}
