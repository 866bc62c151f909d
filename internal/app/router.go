package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/travyy/tour-booking-backend/internal/handlers"
	"github.com/travyy/tour-booking-backend/internal/middleware"
)

// NewRouter builds the HTTP surface
func (a *App) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(a.Logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.Config.CORS.AllowedOrigins,
		AllowMethods:     a.Config.CORS.AllowedMethods,
		AllowHeaders:     a.Config.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAnyOrigin(a.Config.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck(a.Health))

	paymentHandler := handlers.NewPaymentHandler(a.Payments, a.Logger)

	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			// MoMo calls this server-to-server; the signature is the authentication
			payments.POST("/momo/ipn", paymentHandler.IPN)

			protected := payments.Group("")
			protected.Use(middleware.AuthMiddleware(a.JWT, a.Logger))
			{
				protected.POST("/momo/initiate", paymentHandler.Initiate)
				protected.GET("/sessions/:orderId", paymentHandler.GetStatus)
				protected.POST("/sessions/:orderId/cancel", paymentHandler.Cancel)
			}
		}
	}

	return router
}

// gin-contrib/cors rejects credentials combined with a wildcard origin
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
