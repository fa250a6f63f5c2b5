package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	xhttp "CovDash/pkg/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const sessionKey = "covdash.session"

// withSession attaches the caller's session id, issuing a fresh one when the
// cookie is missing or not a uuid.
func (h *DashboardHandler) withSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := ""
		if ck, err := c.Cookie(h.cfg.SessionCookie); err == nil {
			if _, perr := uuid.Parse(ck.Value); perr == nil {
				id = ck.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			c.SetCookie(&http.Cookie{
				Name:     h.cfg.SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(h.cfg.SessionTTL.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(sessionKey, id)
		return next(c)
	}
}

func sessionID(c echo.Context) string {
	id, _ := c.Get(sessionKey).(string)
	return id
}

// rateLimited throttles expensive export routes per client address.
func (h *DashboardHandler) rateLimited(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			c.Response().Header().Set("Retry-After", "1")
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("export rate limit exceeded"))
		}
		return next(c)
	}
}

func (h *DashboardHandler) adminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) != 1 {
			return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("admin token required"))
		}
		return next(c)
	}
}
