package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
	"github.com/SugboTransitLab/marketplace/pkg/drivermetrics"
	"github.com/SugboTransitLab/marketplace/pkg/settlement"
)

// LocationStore receives driver position heartbeats for dispatch ranking.
type LocationStore interface {
	UpsertDriverLocation(ctx context.Context, driverID string, latitude float64, longitude float64, recordedAt time.Time) error
}

// Run boots the HTTP surface and blocks until the context ends or the server
// fails.
func Run(ctx context.Context, cfg Config, logger *zap.Logger,
	bookings *booking.Service, settlements *settlement.Service,
	metrics *drivermetrics.Service, locations LocationStore) error {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:      logger,
		bookings:    bookings,
		settlements: settlements,
		metrics:     metrics,
		locations:   locations,
		timeout:     cfg.RequestTimeout,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketd listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	api.POST("/bookings", handler.handleCreateBooking)
	api.GET("/bookings", handler.handleListBookings)
	api.GET("/bookings/:id", handler.handleGetBooking)
	api.GET("/bookings/:id/cancellation-policy", handler.handleCancellationPolicy)
	api.POST("/bookings/:id/accept", handler.handleDriverAccept)
	api.POST("/bookings/:id/start", handler.handleStart)
	api.POST("/bookings/:id/complete", handler.handleComplete)
	api.POST("/bookings/:id/cancel", handler.handleCustomerCancel)
	api.POST("/bookings/:id/driver-cancel", handler.handleDriverCancel)
	api.POST("/bookings/:id/rebook", handler.handleRebook)
	api.POST("/bookings/:id/cancel-timeout", handler.handleCancelTimedOut)

	api.GET("/customers/:id/bookings", handler.handleCustomerBookings)
	api.GET("/drivers/:id/bookings", handler.handleDriverBookings)
	api.GET("/drivers/:id/metrics", handler.handleDriverMetrics)
	api.PUT("/drivers/:id/location", handler.handleDriverLocation)

	api.POST("/sweeps/unpaid-cancellations", handler.handleUnpaidSweep)
	api.POST("/sweeps/pending-timeouts", handler.handlePendingSweep)

	api.POST("/refunds", handler.handleCreateRefund)
	api.GET("/refunds", handler.handleListRefunds)
	api.GET("/refunds/:id", handler.handleGetRefund)
	api.POST("/refunds/:id/approve", handler.handleApproveRefund)
	api.POST("/refunds/:id/reject", handler.handleRejectRefund)
	api.POST("/refunds/:id/void", handler.handleVoidRefund)

	api.GET("/settings/organization-percentage", handler.handleGetPercentage)
	api.PUT("/settings/organization-percentage", handler.handleUpdatePercentage)

	return router
}
