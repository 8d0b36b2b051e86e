package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/SugboTransitLab/marketplace/internal/audit"
	"github.com/SugboTransitLab/marketplace/internal/httpserver"
	"github.com/SugboTransitLab/marketplace/internal/notify"
	"github.com/SugboTransitLab/marketplace/internal/store/gormstore"
	"github.com/SugboTransitLab/marketplace/pkg/booking"
	"github.com/SugboTransitLab/marketplace/pkg/dispatch"
	"github.com/SugboTransitLab/marketplace/pkg/drivermetrics"
	"github.com/SugboTransitLab/marketplace/pkg/settlement"
)

const (
	flagDatabaseURL    = "database-url"
	flagListenAddr     = "listen-addr"
	flagAMQPURL        = "amqp-url"
	flagAllowedOrigins = "allowed-origins"

	configKeyDatabaseURL    = "database_url"
	configKeyListenAddr     = "listen_addr"
	configKeyAMQPURL        = "amqp_url"
	configKeyAllowedOrigins = "allowed_origins"

	defaultDatabaseURL = "sqlite:///tmp/marketplace.db"
	defaultListenAddr  = ":8080"

	notificationExchange = "marketplace.notifications"
	sweepInterval        = 5 * time.Minute
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	AMQPURL        string
	AllowedOrigins []string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "marketd",
		Short:         "Marketplace transaction and dispatch server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or SQLite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAMQPURL, "", "AMQP broker URL for notification fanout (optional)")
	cmd.Flags().StringSlice(flagAllowedOrigins, []string{"*"}, "CORS allowed origins")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv(configKeyDatabaseURL, "DATABASE_URL"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyListenAddr, "LISTEN_ADDR"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyAMQPURL, "AMQP_URL"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyAllowedOrigins, "ALLOWED_ORIGINS"); err != nil {
		return err
	}

	if err := viper.BindPFlag(configKeyDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyListenAddr, cmd.Flags().Lookup(flagListenAddr)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyAMQPURL, cmd.Flags().Lookup(flagAMQPURL)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyAllowedOrigins, cmd.Flags().Lookup(flagAllowedOrigins)); err != nil {
		return err
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AMQPURL = viper.GetString(configKeyAMQPURL)
	cfg.AllowedOrigins = viper.GetStringSlice(configKeyAllowedOrigins)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	store := gormstore.New(gormDB)
	if err := store.AutoMigrate(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	notifiers := []booking.Notifier{notify.NewRecorder(store)}
	if cfg.AMQPURL != "" {
		publisher, publisherErr := notify.NewAMQPPublisher(cfg.AMQPURL, notificationExchange)
		if publisherErr != nil {
			return fmt.Errorf("amqp connect: %w", publisherErr)
		}
		defer func() { _ = publisher.Close() }()
		notifiers = append(notifiers, publisher)
	}
	notifier := notify.NewFanout(logger, notifiers...)

	settlements, err := settlement.NewService(store, store)
	if err != nil {
		return fmt.Errorf("settlement service init: %w", err)
	}
	metrics, err := drivermetrics.NewService(store)
	if err != nil {
		return fmt.Errorf("metrics service init: %w", err)
	}
	dispatcher, err := dispatch.NewDispatcher(store, notifier, dispatch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("dispatcher init: %w", err)
	}

	bookings, err := booking.NewService(store, settlements, metrics, func() time.Time { return time.Now().UTC() },
		booking.WithDispatcher(dispatcher),
		booking.WithNotifier(notifier),
		booking.WithAuditor(audit.NewSink(store)),
		booking.WithOperationLogger(&zapOperationLogger{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	go runSweeps(ctx, logger, bookings)

	serverConfig := httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	return httpserver.Run(ctx, serverConfig, logger, bookings, settlements, metrics, store)
}

// runSweeps drives the timeout sweeps on a fixed interval until ctx ends.
func runSweeps(ctx context.Context, logger *zap.Logger, bookings *booking.Service) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if result, err := bookings.ProcessUnpaidTimeouts(ctx); err != nil {
				logger.Warn("unpaid sweep failed", zap.Error(err))
			} else if result.Changed > 0 {
				logger.Info("unpaid sweep",
					zap.Int("examined", result.Examined), zap.Int("changed", result.Changed))
			}
			if result, err := bookings.ProcessPendingTimeouts(ctx); err != nil {
				logger.Warn("pending sweep failed", zap.Error(err))
			} else if result.Changed > 0 {
				logger.Info("pending sweep",
					zap.Int("examined", result.Examined), zap.Int("changed", result.Changed))
			}
		}
	}
}

type zapOperationLogger struct {
	logger *zap.Logger
}

func (operationLogger *zapOperationLogger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("booking_id", entry.BookingID),
		zap.String("actor_id", entry.ActorID),
		zap.String("actor_role", entry.ActorRole),
		zap.String("status", entry.Status),
	}
	if len(entry.Warnings) > 0 {
		fields = append(fields, zap.Strings("warnings", entry.Warnings))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("operation failed", fields...)
		return
	}
	operationLogger.logger.Info("operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "marketplace.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
