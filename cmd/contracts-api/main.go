package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/audit"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/certificate"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/config"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/database"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/server"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signers"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/versions"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "contracts-api",
		Short: "Contract signature ledger and version history service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newFingerprintCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("audit-backend", defaults.GetString("audit.backend"), "Audit trail backend (sqlite, redis)")
	cmd.PersistentFlags().String("redis-url", defaults.GetString("redis.url"), "Redis URL for the redis audit backend")
	cmd.PersistentFlags().String("blob-root", defaults.GetString("blob.root"), "Directory for published certificates")
	cmd.PersistentFlags().String("blob-base-url", defaults.GetString("blob.base_url"), "Public URL prefix of published certificates")
	cmd.PersistentFlags().Int("max-manual-versions", defaults.GetInt("versions.max_manual"), "Named versions retained per document")
	cmd.PersistentFlags().Int("max-auto-versions", defaults.GetInt("versions.max_auto"), "Auto versions retained per document")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "audit.backend", "audit-backend")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "blob.root", "blob-root")
	bindFlag(cmd, "blob.base_url", "blob-base-url")
	bindFlag(cmd, "versions.max_manual", "max-manual-versions")
	bindFlag(cmd, "versions.max_auto", "max-auto-versions")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	trail, closeTrail, err := openAuditTrail(ctx, appConfig, db, logger)
	if err != nil {
		return err
	}
	defer closeTrail()

	signatureRepository, err := signatures.NewGormRepository(db)
	if err != nil {
		return err
	}
	ledger, err := signatures.NewLedger(signatures.LedgerConfig{
		Repository: signatureRepository,
		Trail:      trail,
		Clock:      time.Now,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger.Named("signatures"),
	})
	if err != nil {
		return err
	}

	versionRepository, err := versions.NewGormRepository(db)
	if err != nil {
		return err
	}
	versionStore, err := versions.NewStore(versions.Config{
		Repository: versionRepository,
		Clock:      time.Now,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger.Named("versions"),
		Limits: versions.Limits{
			MaxManual: appConfig.VersionsMaxManual,
			MaxAuto:   appConfig.VersionsMaxAuto,
		},
	})
	if err != nil {
		return err
	}

	signerService, err := signers.NewService(signers.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("signers"),
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	blobs, err := blobstore.NewDirectoryStore(appConfig.BlobRoot, appConfig.BlobBaseURL)
	if err != nil {
		return err
	}
	publisher, err := certificate.NewPublisher(blobs, logger.Named("certificates"))
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Signers:          signerService,
		Ledger:           ledger,
		Versions:         versionStore,
		Publisher:        publisher,
		Blobs:            blobs,
		Realtime:         server.NewRealtimeDispatcher(),
		Logger:           logger,
		AllowedOrigins:   appConfig.CORSAllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("audit_backend", appConfig.AuditBackend))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openAuditTrail(ctx context.Context, appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (audit.Trail, func(), error) {
	switch appConfig.AuditBackend {
	case config.AuditBackendRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := audit.DialRedis(dialCtx, appConfig.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect audit redis: %w", err)
		}
		trail, err := audit.NewRedisTrail(client, "")
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close failed", zap.Error(err))
			}
		}
		return trail, closeClient, nil
	default:
		trail, err := audit.NewGormTrail(db)
		if err != nil {
			return nil, nil, err
		}
		return trail, func() {}, nil
	}
}
