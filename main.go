package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridian-courier/device-trust/audit"
	"github.com/meridian-courier/device-trust/config"
	"github.com/meridian-courier/device-trust/controllers"
	"github.com/meridian-courier/device-trust/database"
	"github.com/meridian-courier/device-trust/identity"
	"github.com/meridian-courier/device-trust/logs"
	"github.com/meridian-courier/device-trust/realtime"
	"github.com/meridian-courier/device-trust/registry"
	"github.com/meridian-courier/device-trust/routes"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		log.Fatal("Error loading .env:", err)
	}

	logger := logs.Init(logs.Options{Level: env.LogLevel, Format: env.LogFormat})

	pgClient, err := database.NewPostgresClient(env.DBHost, env.DBUser, env.DBPassword, env.DBName, env.DBPort)
	if err != nil {
		log.Fatal("Error connecting to database:", err)
	}
	if err := database.Migrate(pgClient, true); err != nil {
		log.Fatal("Error migrating database:", err)
	}

	redisClient, err := database.GetRedisClient(env.RedisAddr, env.RedisPass, env.RedisDB)
	if err != nil {
		log.Fatal("Error connecting to redis:", err)
	}

	broker := realtime.NewRedisBroker(redisClient.Raw(), logger)
	deviceStore := registry.NewStore(pgClient, broker, logger)
	recorder := audit.NewRecorder(pgClient, logger)
	defer recorder.Close()

	provider := identity.NewService(pgClient, redisClient, env.SessionTTL, logger)

	authController := controllers.NewAuthController(provider, deviceStore, recorder, env.SessionTTL, logger)
	deviceController := controllers.NewDeviceController(deviceStore, logger)
	activityController := controllers.NewActivityController(recorder, logger)
	streamController := controllers.NewStreamController(broker, logger)

	r := gin.Default()
	routes.SetupRoutes(r, authController, deviceController, activityController, streamController)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "device-trust service"})
	})

	if err := r.Run(env.ListenAddr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
