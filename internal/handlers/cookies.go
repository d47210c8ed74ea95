package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	accessCookieName  = "token"
	refreshCookieName = "refreshToken"
)

// CookieSettings controls how the auth cookies are written. Secure is enabled
// in production so the cookies only travel over TLS.
type CookieSettings struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s CookieSettings) write(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Secure:   s.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// setAuthCookies installs both token cookies on the response.
func setAuthCookies(c *gin.Context, s CookieSettings, access, refresh string) {
	s.write(c, accessCookieName, access, s.AccessTTL)
	s.write(c, refreshCookieName, refresh, s.RefreshTTL)
}

// clearAuthCookies expires both token cookies.
func clearAuthCookies(c *gin.Context, s CookieSettings) {
	s.write(c, accessCookieName, "", -time.Second)
	s.write(c, refreshCookieName, "", -time.Second)
}
