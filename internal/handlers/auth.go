package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/brewstore/brewstore-server/internal/auth"
	"github.com/brewstore/brewstore-server/internal/services"
	appErrors "github.com/brewstore/brewstore-server/pkg/errors"
	"github.com/brewstore/brewstore-server/pkg/response"
)

// AuthHandler manages the storefront authentication flows: registration, the
// staged login protocol, token refresh, logout, and password reset.
type AuthHandler struct {
	login   *iauth.LoginService
	resets  *services.PasswordResetService
	cookies CookieSettings
}

func NewAuthHandler(login *iauth.LoginService, resets *services.PasswordResetService, cookies CookieSettings) (*AuthHandler, error) {
	if login == nil {
		return nil, errors.New("auth handler: login service is required")
	}
	if resets == nil {
		return nil, errors.New("auth handler: password reset service is required")
	}
	return &AuthHandler{login: login, resets: resets, cookies: cookies}, nil
}

type registerRequest struct {
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required"`
	Password       string `json:"password" validate:"required"`
	RecaptchaToken string `json:"token"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.login.Register(requestContext(c), iauth.RegisterInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		RecaptchaToken: req.RecaptchaToken,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusCreated, "User registered successfully")
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode"`
	UserID        string `json:"userId"`
	OTPCode       string `json:"otpCode"`
}

// POST /api/auth/login
//
// One endpoint drives the whole protocol. A request with userId and otpCode
// continues a pending attempt; anything else starts a new one. Partial
// progress is reported with 206 so the client knows which factor comes next.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.login.Login(requestContext(c), iauth.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		UserID:        req.UserID,
		OTPCode:       req.OTPCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	switch result.Outcome {
	case iauth.OutcomeTwoFactorRequired:
		response.JSON(c, http.StatusPartialContent, gin.H{
			"msg":               "2FA required",
			"twoFactorRequired": true,
			"userId":            result.User.ID,
			"email":             result.User.Email,
		})

	case iauth.OutcomeOTPRequired:
		response.JSON(c, http.StatusPartialContent, gin.H{
			"msg":         "OTP sent to your email",
			"otpRequired": true,
			"userId":      result.User.ID,
			"email":       result.User.Email,
		})

	default:
		setAuthCookies(c, h.cookies, result.AccessToken, result.RefreshToken)
		response.JSON(c, http.StatusOK, gin.H{
			"token": result.AccessToken,
			"user": gin.H{
				"id":      result.User.ID,
				"name":    result.User.Name,
				"email":   result.User.Email,
				"isAdmin": result.User.IsAdmin,
			},
		})
	}
}

type resendOTPRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// POST /api/auth/resend-otp
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.login.ResendOTP(requestContext(c), req.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "New OTP sent to your email")
}

// POST /api/auth/refresh
//
// The refresh token travels in its cookie, never in the body.
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented, err := c.Cookie(refreshCookieName)
	if err != nil || presented == "" {
		response.Error(c, appErrors.ErrNoRefreshToken)
		return
	}

	result, err := h.login.Refresh(requestContext(c), presented)
	if err != nil {
		response.Error(c, err)
		return
	}

	setAuthCookies(c, h.cookies, result.AccessToken, result.RefreshToken)
	response.Message(c, http.StatusOK, "Token refreshed")
}

// POST /api/auth/logout
//
// Logout always succeeds from the client's point of view: cookies are cleared
// even when no matching session exists server-side.
func (h *AuthHandler) Logout(c *gin.Context) {
	if presented, err := c.Cookie(refreshCookieName); err == nil && presented != "" {
		_ = h.login.Logout(requestContext(c), presented)
	}

	clearAuthCookies(c, h.cookies)
	response.Message(c, http.StatusOK, "Logged out")
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.Request(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password reset email sent")
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/reset-password/:token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token := c.Param("token")
	if err := h.resets.Reset(requestContext(c), token, req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password reset successful. Please login.")
}
