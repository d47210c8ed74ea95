package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/brewstore/brewstore-server/internal/auth"
	"github.com/brewstore/brewstore-server/internal/auth/mfa"
	"github.com/brewstore/brewstore-server/internal/models"
	appErrors "github.com/brewstore/brewstore-server/pkg/errors"
	"github.com/brewstore/brewstore-server/pkg/response"
)

// TwoFactorHandler manages opt-in TOTP enrolment and the public verification
// step of the login protocol.
type TwoFactorHandler struct {
	db   *gorm.DB
	totp *mfa.TOTPService
	otp  *iauth.OTPService
}

func NewTwoFactorHandler(db *gorm.DB, totp *mfa.TOTPService, otp *iauth.OTPService) (*TwoFactorHandler, error) {
	if db == nil {
		return nil, errors.New("two factor handler: db is required")
	}
	if totp == nil {
		return nil, errors.New("two factor handler: totp service is required")
	}
	if otp == nil {
		return nil, errors.New("two factor handler: otp service is required")
	}
	return &TwoFactorHandler{db: db, totp: totp, otp: otp}, nil
}

// POST /api/users/2fa/generate
func (h *TwoFactorHandler) Generate(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	key, err := h.totp.GenerateSecret(user)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	png, err := h.totp.QRCodePNG(key)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"qr":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		"secret": key.Secret(),
	})
}

type twoFactorCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// POST /api/users/2fa/confirm
func (h *TwoFactorHandler) Confirm(c *gin.Context) {
	var req twoFactorCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if err := h.totp.Confirm(user, req.Code); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "2FA enabled successfully")
}

// POST /api/users/2fa/disable
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if err := h.totp.Disable(user); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Message(c, http.StatusOK, "2FA disabled")
}

type verifyTwoFactorRequest struct {
	UserID string `json:"userId" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

// POST /api/users/2fa/verify
//
// Public continuation of a pending login: a valid TOTP code moves the attempt
// forward to the email-OTP step.
func (h *TwoFactorHandler) Verify(c *gin.Context) {
	var req verifyTwoFactorRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.db.WithContext(requestContext(c)).Take(&user, "id = ?", req.UserID).Error; err != nil {
		response.Error(c, appErrors.ErrInvalidUser)
		return
	}

	if !h.totp.VerifyCode(&user, req.Code) {
		response.Error(c, appErrors.ErrInvalidTwoFactorCode)
		return
	}

	if err := h.otp.Issue(requestContext(c), &user, "email"); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusPartialContent, gin.H{
		"msg":         "OTP sent to your email",
		"otpRequired": true,
		"userId":      user.ID,
		"email":       user.Email,
	})
}

func (h *TwoFactorHandler) currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get("userID")
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	userID, _ := v.(string)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}

	var user models.User
	if err := h.db.WithContext(requestContext(c)).Take(&user, "id = ?", userID).Error; err != nil {
		response.Error(c, appErrors.ErrUserNotFound)
		return nil, false
	}
	return &user, true
}
