package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gleadbet/nest/internal/session"
)

// stateCookie carries the OAuth CSRF state between /auth/login and
// /auth/callback.
const (
	stateCookie       = "nest_oauth_state"
	stateCookieMaxAge = 600 // seconds
)

// @Summary      Start the login flow
// @Description  Redirects the browser to the authorization provider.
// @Tags         auth
// @Success      302
// @Router       /auth/login [get]
func (h *Handler) login(c *gin.Context) {
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, stateCookieMaxAge, "/auth", "", false, true)
	c.Redirect(http.StatusFound, h.services.LoginURL(state))
}

// @Summary      OAuth callback
// @Description  Exchanges the authorization code, creates the server-side session and sets the session cookie.
// @Tags         auth
// @Param        code   query  string  true   "Authorization code"
// @Param        state  query  string  true   "CSRF state"
// @Success      302
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]interface{}
// @Router       /auth/callback [get]
func (h *Handler) callback(c *gin.Context) {
	state := c.Query("state")
	saved, err := c.Cookie(stateCookie)
	if err != nil || state == "" || state != saved {
		if h.log != nil {
			h.log.Infow("oauth_state_mismatch")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}
	c.SetCookie(stateCookie, "", -1, "/auth", "", false, true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	_, cookie, err := h.services.HandleCallback(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, cookie, int(h.cookieTTL.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

// @Summary      Log out
// @Description  Destroys the server-side session and clears the cookie.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /auth/logout [post]
func (h *Handler) logout(c *gin.Context) {
	if err := h.services.Logout(c.Request.Context(), currentSession(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.SetCookie(session.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// @Summary      Authentication status
// @Tags         auth
// @Produce      json
// @Success      200  {object}  service.AuthStatus
// @Router       /api/auth/status [get]
func (h *Handler) authStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Status(currentSession(c)))
}
