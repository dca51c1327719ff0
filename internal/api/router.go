// Package api contains the HTTP handlers and routing for the checkout service.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, ginMode string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		checkout := v1.Group("/checkout")
		{
			checkout.POST("", handler.CreateCheckout)
			checkout.GET("/:id", handler.GetState)
			checkout.POST("/:id/prepare", handler.PrepareCheckout)
			checkout.POST("/:id/tokenize", handler.TokenizeCard)
			checkout.POST("/:id/purchase", handler.Purchase)
			checkout.POST("/:id/poll", handler.Poll)
			checkout.POST("/:id/reset", handler.Reset)
			checkout.GET("/:id/widget", handler.OpenWidget)
			checkout.POST("/:id/widget-callback", handler.WidgetCallback)
		}

		v1.GET("/packages/:id", handler.GetPackage)
		v1.GET("/gateway-config", handler.GetGatewayConfig)
		v1.GET("/banks", handler.GetBanks)
		v1.GET("/session/fresh", handler.ConsumeFresh)
	}

	return router
}
