package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/meridian-courier/device-trust/controllers"
)

func SetupRoutes(
	router *gin.Engine,
	authController *controllers.AuthController,
	deviceController *controllers.DeviceController,
	activityController *controllers.ActivityController,
	streamController *controllers.StreamController,
) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.POST("/logout", authController.SessionMiddleware(), authController.Logout)
		auth.GET("/me", authController.SessionMiddleware(), authController.Me)
		auth.PATCH("/me", authController.SessionMiddleware(), authController.UpdateUser)
		auth.POST("/recover", authController.Recover)
		auth.POST("/recover/confirm", authController.ConfirmRecovery)
	}

	api := router.Group("/api/v1", authController.SessionMiddleware())
	{
		api.GET("/devices", deviceController.List)
		api.PUT("/devices", deviceController.Register)
		api.PATCH("/devices/:id/status", deviceController.SetStatus)
		api.DELETE("/devices/:id", deviceController.Delete)
		api.GET("/devices/moderation", authController.RequireElevated(), deviceController.Moderation)
		api.POST("/devices/:id/verification-hold", authController.RequireElevated(), deviceController.VerificationHold)
		api.GET("/devices/stream", streamController.Stream)

		api.POST("/activity", activityController.Append)
		api.GET("/activity", activityController.List)
	}
}
