package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wesleyyjpark/506MBTAProject/config"
	"github.com/wesleyyjpark/506MBTAProject/handlers"
	"github.com/wesleyyjpark/506MBTAProject/middleware"
	"github.com/wesleyyjpark/506MBTAProject/services"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("db handle failed: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("db ping failed: %v", err)
	}

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("redis unavailable, serving without cache: %v", err)
	}
	defer cache.Close()

	auth := services.NewAuthService(cfg.JWT)
	router := newRouter(cfg, db, cache, auth)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("api listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("api server failed: %v", err)
	}
}

func newRouter(cfg *config.Config, db *gorm.DB, cache *services.CacheService, auth *services.AuthService) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "UP",
			"cache":  cache.Available(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authH := handlers.NewAuthHandler(db, auth)
	runs := handlers.NewRunHandler(db, cache)
	feats := handlers.NewFeatureHandler(db, cache)
	views := handlers.NewViewHandler(cache)
	alerts := handlers.NewAlertHandler(db)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", authH.Register)
		v1.POST("/auth/login", authH.Login)
		v1.POST("/auth/logout", authH.Logout)
		v1.GET("/ws/runs", handlers.RunsWebSocket(cache, auth))
	}

	protected := v1.Group("", middleware.RequireAuth(auth))
	{
		protected.GET("/runs", runs.ListRuns)
		protected.GET("/runs/latest", runs.LatestRun)
		protected.GET("/runs/:id", runs.GetRun)
		protected.GET("/features", feats.ListFeatures)
		protected.GET("/patterns", views.GetPatterns)
		protected.GET("/heatmaps/:name", views.GetHeatmap)
		protected.GET("/auth/me", authH.Me)
		protected.GET("/alerts", middleware.RequireRole(services.RoleAdmin), alerts.ListAlerts)
	}
	return router
}
