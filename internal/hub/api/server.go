package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier-dispatch/internal/hub"
	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/logger"
)

// Server wires the HTTP surface of the dispatch hub: the REST API, the
// websocket endpoint and the prometheus scrape target.
type Server struct {
	httpServer *http.Server
}

func NewServer(cfg config.HubConfig, h *Handler, pushHub *hub.Hub, mylog *logger.Logger, env string) *Server {
	if env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), ErrorHandler())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		pushHub.ServeWS(c.Writer, c.Request)
	})

	orders := r.Group("/api/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/unclaimed", h.ListUnclaimed)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/claim", h.Claim)
		orders.POST("/:id/eta", h.SetETA)
		orders.POST("/:id/complete", h.Complete)
		orders.POST("/:id/cancel", h.Cancel)
	}
	r.GET("/api/couriers/:id/history", h.CourierHistory)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // websocket endpoint needs no write deadline here
		},
	}
}

func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
