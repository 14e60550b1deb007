package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

type AuthController struct {
	authService          service.AuthService
	passwordResetService service.PasswordResetService
	userService          service.UserService
}

func NewAuthController(
	authService service.AuthService,
	passwordResetService service.PasswordResetService,
	userService service.UserService,
) *AuthController {
	return &AuthController{
		authService:          authService,
		passwordResetService: passwordResetService,
		userService:          userService,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"` // username or email
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ForgotPasswordRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type VerifyPhoneRequest struct {
	Token string `json:"token" binding:"required"`
}

// Login exchanges credentials for a token pair
// POST /api/v1/auth/login
func (ctrl *AuthController) Login(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, tokens, err := ctrl.authService.Login(req.Username, req.Password)
	if err != nil {
		respondError(c, err, "log in")
		return
	}

	principal := service.PrincipalForUser(user)
	log.Info("User logged in", map[string]interface{}{
		"user_id": user.ID,
		"roles":   principal.Roles.Names(),
	})

	c.JSON(http.StatusOK, gin.H{
		"user":   user,
		"roles":  principal.Roles.Names(),
		"tokens": tokens,
	})
}

// RefreshToken rotates the refresh token and issues a new access token
// POST /api/v1/auth/refresh
func (ctrl *AuthController) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := ctrl.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err, "refresh token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout revokes the access token of the request and, when given, the
// refresh token.
// POST /api/v1/auth/logout
func (ctrl *AuthController) Logout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req LogoutRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)

	tokens := []string{middleware.GetAccessToken(c)}
	if req.RefreshToken != "" {
		tokens = append(tokens, req.RefreshToken)
	}

	if err := ctrl.authService.Logout(c.Request.Context(), tokens...); err != nil {
		respondError(c, err, "log out")
		return
	}

	userID, _ := middleware.GetUserID(c)
	log.Info("User logged out", map[string]interface{}{
		"user_id": userID,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Logged out."})
}

// GetMe returns the authenticated user
// GET /api/v1/auth/me
func (ctrl *AuthController) GetMe(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	user, err := ctrl.authService.GetMe(principal.UserID)
	if err != nil {
		respondError(c, err, "get user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  user,
		"roles": service.PrincipalForUser(user).Roles.Names(),
	})
}

// ForgotPassword texts a reset link to the phone number. The response does
// not reveal whether the number belongs to an account.
// POST /api/v1/auth/password-reset
func (ctrl *AuthController) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := ctrl.passwordResetService.RequestReset(c.Request.Context(), req.PhoneNumber); err != nil {
		respondError(c, err, "request password reset")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "If an account uses this phone number, a reset link has been sent.",
	})
}

// ResetPassword sets a new password using a reset token
// POST /api/v1/auth/password-reset/confirm
func (ctrl *AuthController) ResetPassword(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := ctrl.passwordResetService.ResetPassword(req.Token, req.NewPassword); err != nil {
		respondError(c, err, "reset password")
		return
	}

	log.Info("Password reset completed", nil)
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset."})
}

// VerifyPhone confirms ownership of the phone number on file
// POST /api/v1/auth/verify-phone
func (ctrl *AuthController) VerifyPhone(c *gin.Context) {
	var req VerifyPhoneRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := ctrl.userService.VerifyPhone(req.Token)
	if err != nil {
		respondError(c, err, "verify phone")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Phone number verified.",
		"user":    user,
	})
}
