package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

type UserController struct {
	userService service.UserService
}

func NewUserController(userService service.UserService) *UserController {
	return &UserController{userService: userService}
}

// CreateUser provisions an account
// POST /api/v1/users
func (ctrl *UserController) CreateUser(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req service.CreateUserInput
	if !bindJSON(c, &req) {
		return
	}

	user, err := ctrl.userService.CreateUser(c.Request.Context(), principal, req)
	if err != nil {
		respondError(c, err, "create user")
		return
	}

	log.Info("User created", map[string]interface{}{
		"user_id":    user.ID,
		"created_by": principal.UserID,
	})

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// GetUser returns one user
// GET /api/v1/users/:id
func (ctrl *UserController) GetUser(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	user, err := ctrl.userService.GetUser(principal, id)
	if err != nil {
		respondError(c, err, "get user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateUser applies a partial update
// PATCH /api/v1/users/:id
func (ctrl *UserController) UpdateUser(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdateUserInput
	if !bindJSON(c, &req) {
		return
	}

	user, err := ctrl.userService.UpdateUser(c.Request.Context(), principal, id, req)
	if err != nil {
		respondError(c, err, "update user")
		return
	}

	log.Info("User updated", map[string]interface{}{
		"user_id":    user.ID,
		"updated_by": principal.UserID,
	})

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ResendVerification texts a fresh phone verification link
// POST /api/v1/users/:id/resend-verification
func (ctrl *UserController) ResendVerification(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := ctrl.userService.ResendVerification(c.Request.Context(), principal, id); err != nil {
		respondError(c, err, "resend user verification")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification link sent."})
}
