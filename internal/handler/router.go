package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oakmarket/marketplace-api/internal/middleware"
)

// RouterDeps collects everything the HTTP surface needs.
type RouterDeps struct {
	Auth      *AuthHandler
	Category  *CategoryHandler
	Product   *ProductHandler
	Cart      *CartHandler
	Order     *OrderHandler
	Review    *ReviewHandler
	Health    *HealthHandler
	JWTSecret string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", deps.Health.Healthz)
	router.GET("/readyz", deps.Health.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRequired := middleware.AuthMiddleware(deps.JWTSecret)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", deps.Auth.Register)
		auth.POST("/login", deps.Auth.Login)
		auth.GET("/profile", authRequired, deps.Auth.Profile)
		auth.PUT("/profile", authRequired, deps.Auth.UpdateProfile)

		categories := v1.Group("/categories")
		categories.GET("", deps.Category.List)
		categories.GET("/:id", deps.Category.GetByID)

		categoryAdmin := categories.Group("", authRequired, middleware.AdminOnly())
		categoryAdmin.POST("", deps.Category.Create)
		categoryAdmin.PUT("/:id", deps.Category.Update)
		categoryAdmin.DELETE("/:id", deps.Category.Delete)

		products := v1.Group("/products")
		products.GET("", deps.Product.List)
		products.GET("/:id", deps.Product.GetByID)
		products.POST("", authRequired, deps.Product.Create)
		products.PUT("/:id", authRequired, deps.Product.Update)
		products.DELETE("/:id", authRequired, deps.Product.Delete)

		cart := v1.Group("/cart", authRequired)
		cart.GET("", deps.Cart.Get)
		cart.POST("/items", deps.Cart.AddItem)
		cart.PUT("/items/:productId", deps.Cart.UpdateItem)
		cart.DELETE("/items/:productId", deps.Cart.RemoveItem)
		cart.DELETE("", deps.Cart.Clear)
		cart.POST("/sync", deps.Cart.Sync)

		orders := v1.Group("/orders", authRequired)
		orders.POST("", deps.Order.Create)
		orders.GET("", deps.Order.List)
		orders.GET("/:id", deps.Order.GetByID)
		orders.PUT("/:id/status", deps.Order.UpdateStatus)

		reviews := v1.Group("/reviews")
		reviews.GET("", deps.Review.List)
		reviews.GET("/:id", deps.Review.GetByID)
		reviews.POST("", authRequired, deps.Review.Create)
		reviews.PUT("/:id", authRequired, deps.Review.Update)
		reviews.DELETE("/:id", authRequired, deps.Review.Delete)
	}

	return router
}
