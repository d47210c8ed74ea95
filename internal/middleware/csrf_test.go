package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newCSRFRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CSRF())
	r.GET("/form", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.POST("/submit", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestCSRFIssuesTokenOnSafeMethod(t *testing.T) {
	r := newCSRFRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(CSRFHeaderName))

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == CSRFCookieName {
			found = true
			require.NotEmpty(t, c.Value)
		}
	}
	require.True(t, found, "csrf cookie issued")
}

func TestCSRFRejectsMutationWithoutHeader(t *testing.T) {
	r := newCSRFRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFAcceptsEchoedToken(t *testing.T) {
	r := newCSRFRouter(t)

	seed := httptest.NewRecorder()
	r.ServeHTTP(seed, httptest.NewRequest(http.MethodGet, "/form", nil))

	var token *http.Cookie
	for _, c := range seed.Result().Cookies() {
		if c.Name == CSRFCookieName {
			token = c
		}
	}
	require.NotNil(t, token)

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.AddCookie(token)
	req.Header.Set(CSRFHeaderName, token.Value)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
