// Package service exposes the ledger core over a JSON HTTP API.
package service

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poolpay/poolpay/internal/auth"
	"github.com/poolpay/poolpay/internal/ledger"
	"github.com/poolpay/poolpay/internal/middleware"
	"github.com/poolpay/poolpay/internal/storage"
)

// NewRouter assembles the HTTP API: middleware, health and metrics
// endpoints, and the authenticated /api routes.
func NewRouter(store storage.Store, jwtManager *auth.JWTManager, remainder ledger.RemainderPolicy) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogging())
	r.Use(middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	groups := NewGroupService(store)
	payments := NewPaymentService(store, remainder)

	api := r.Group("/api")
	api.Use(middleware.RequireAuth(jwtManager))
	{
		api.POST("/groups", groups.CreateGroup)
		api.GET("/groups", groups.ListGroups)
		api.GET("/groups/:groupId", groups.GetGroup)
		api.POST("/groups/:groupId/members", groups.AddMember)
		api.GET("/groups/:groupId/wallet", groups.GetWallet)
		api.POST("/groups/:groupId/wallet/repair", groups.RepairWallet)

		api.POST("/groups/:groupId/requests", payments.CreateRequests)
		api.GET("/groups/:groupId/requests", payments.ListGroupRequests)
		api.GET("/requests", payments.ListMyRequests)
		api.POST("/requests/:requestId/respond", payments.Respond)
		api.POST("/requests/:requestId/expire", payments.Expire)
		api.POST("/groups/:groupId/payments", payments.PayMerchant)
		api.GET("/groups/:groupId/transactions", payments.ListTransactions)
	}

	return r
}
