package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/app"
	iauth "github.com/brewstore/brewstore-server/internal/auth"
	"github.com/brewstore/brewstore-server/internal/auth/mfa"
	"github.com/brewstore/brewstore-server/internal/handlers"
	"github.com/brewstore/brewstore-server/internal/middleware"
	"github.com/brewstore/brewstore-server/internal/services"
)

// Deps bundles the constructed services the router mounts handlers on.
type Deps struct {
	DB     *gorm.DB
	Tokens *iauth.TokenService
	Login  *iauth.LoginService
	TOTP   *mfa.TOTPService
	OTP    *iauth.OTPService
	Resets *services.PasswordResetService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Deps) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Tokens == nil || deps.Login == nil || deps.TOTP == nil || deps.OTP == nil || deps.Resets == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Frontend.URL))
	if cfg.Server.CSRF.Enabled {
		r.Use(middleware.CSRF())
	}
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	cookies := handlers.CookieSettings{
		Secure:     cfg.Server.IsProduction(),
		AccessTTL:  deps.Tokens.AccessTTL(),
		RefreshTTL: deps.Tokens.RefreshTTL(),
	}

	authHandler, err := handlers.NewAuthHandler(deps.Login, deps.Resets, cookies)
	if err != nil {
		return nil, err
	}

	// Public auth routes. Login and OTP endpoints get a tighter limit so
	// credential stuffing burns out quickly.
	auth := r.Group("/api/auth")
	auth.Use(middleware.RateLimit(20, time.Minute))
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/resend-otp", authHandler.ResendOTP)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password/:token", authHandler.ResetPassword)
	}

	twoFactorHandler, err := handlers.NewTwoFactorHandler(deps.DB, deps.TOTP, deps.OTP)
	if err != nil {
		return nil, err
	}

	// Public 2FA verification (login continuation)
	r.POST("/api/users/2fa/verify", twoFactorHandler.Verify)

	// Protected routes
	requireAuth := middleware.Auth(deps.Tokens)

	api := r.Group("/api")
	api.Use(requireAuth)

	twofa := api.Group("/users/2fa")
	{
		twofa.POST("/generate", twoFactorHandler.Generate)
		twofa.POST("/confirm", twoFactorHandler.Confirm)
		twofa.POST("/disable", twoFactorHandler.Disable)
	}

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
