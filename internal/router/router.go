package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/config"
	"github.com/ikkim/delivery-tracker/internal/app/controller"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

type Router struct {
	authController     *controller.AuthController
	userController     *controller.UserController
	orderController    *controller.OrderController
	attemptController  *controller.DeliveryAttemptController
	photoController    *controller.PhotoController
	templateController *controller.MessageTemplateController
	storeController    *controller.StoreController
	feedController     *controller.StatusFeedController
	authMiddleware     *middleware.AuthMiddleware
	config             *config.Config
}

func NewRouter(
	authController *controller.AuthController,
	userController *controller.UserController,
	orderController *controller.OrderController,
	attemptController *controller.DeliveryAttemptController,
	photoController *controller.PhotoController,
	templateController *controller.MessageTemplateController,
	storeController *controller.StoreController,
	feedController *controller.StatusFeedController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		authController:     authController,
		userController:     userController,
		orderController:    orderController,
		attemptController:  attemptController,
		photoController:    photoController,
		templateController: templateController,
		storeController:    storeController,
		feedController:     feedController,
		authMiddleware:     authMiddleware,
		config:             cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()
	// uploads beyond this spill to temp files
	router.MaxMultipartMemory = r.config.Photo.MaxUploadBytes

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"message":    "Delivery tracker API is running",
			"feed_users": r.feedController.ConnectedUsers(),
		})
	})

	authenticated := r.authMiddleware.Authenticate()
	templateEditors := r.authMiddleware.RequireRoles(service.RoleSuperuser | service.ManagerRoles)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authController.Login)
			auth.POST("/refresh", r.authController.RefreshToken)
			auth.POST("/password-reset", r.authController.ForgotPassword)
			auth.POST("/password-reset/confirm", r.authController.ResetPassword)
			auth.POST("/verify-phone", r.authController.VerifyPhone)
			auth.POST("/logout", authenticated, r.authController.Logout)
			auth.GET("/me", authenticated, r.authController.GetMe)
		}

		users := v1.Group("/users")
		users.Use(authenticated)
		{
			users.POST("", r.userController.CreateUser)
			users.GET("/:id", r.userController.GetUser)
			users.PATCH("/:id", r.userController.UpdateUser)
			users.POST("/:id/resend-verification", r.userController.ResendVerification)
		}

		orders := v1.Group("/orders")
		orders.Use(authenticated)
		{
			orders.POST("", r.orderController.CreateOrder)
			orders.GET("", r.orderController.GetOrders)
			orders.GET("/:id", r.orderController.GetOrderByID)
			orders.POST("/:id/attempts", r.attemptController.CreateAttempt)
			orders.GET("/:id/attempts", r.attemptController.ListAttempts)
		}

		attempts := v1.Group("/attempts")
		attempts.Use(authenticated)
		{
			attempts.GET("/:id", r.attemptController.GetAttempt)
			attempts.PATCH("/:id", r.attemptController.UpdateAttempt)
			attempts.GET("/:id/history", r.attemptController.StatusHistory)
			attempts.POST("/:id/photos", r.photoController.UploadPhotos)
			attempts.GET("/:id/photos", r.photoController.ListPhotos)
		}

		stores := v1.Group("/stores")
		stores.Use(authenticated)
		{
			stores.GET("", r.storeController.ListStores)
			stores.POST("", r.storeController.CreateStore)
			stores.GET("/:id", r.storeController.GetStore)
			stores.PATCH("/:id", r.storeController.UpdateStore)
			stores.GET("/:id/templates", templateEditors, r.templateController.ListTemplates)
			stores.PUT("/:id/templates/:event", templateEditors, r.templateController.UpsertTemplate)
		}

		v1.GET("/templates/variables", authenticated, templateEditors, r.templateController.Variables)

		v1.GET("/feed/attempts", authenticated, r.feedController.Subscribe)
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
