package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/techzone/intervention-manager/config"
	"github.com/techzone/intervention-manager/routes"
	"github.com/techzone/intervention-manager/services"
	"github.com/techzone/intervention-manager/sessions"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg)

	log.Info().Str("env", cfg.GoEnv).Msg("Starting intervention manager")

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := config.CloseDatabase(db); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	if err := config.MigrateDatabase(db); err != nil {
		return err
	}
	log.Info().Msg("Database migration completed successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	manager := sessions.NewManager(store, sessions.Options{
		Secret: []byte(cfg.SessionSecret),
		TTL:    config.SessionTTL,
		Secure: cfg.SecureCookies(),
	})
	if purged, err := manager.Purge(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to purge expired sessions")
	} else if purged > 0 {
		log.Info().Int64("sessions", purged).Msg("expired sessions purged")
	}

	if cfg.SeedEnabled() {
		created, err := services.SeedAdmin(ctx, db, cfg.SeedAdminEmail, cfg.SeedAdminPassword, cfg.BcryptCost)
		if err != nil {
			return err
		}
		if created {
			log.Warn().Str("email", cfg.SeedAdminEmail).Msg("default admin account created, change its password")
		}
	}

	images, uploadDir, err := newImageService(ctx, cfg)
	if err != nil {
		return err
	}

	auth, err := services.NewAuthService(db, cfg.BcryptCost)
	if err != nil {
		return err
	}

	router, err := routes.New(routes.Deps{
		DB:                 db,
		Sessions:           manager,
		Auth:               auth,
		Interventions:      services.NewInterventionService(db, images),
		Directory:          services.NewDirectoryService(db, cfg.BcryptCost),
		Dashboard:          services.NewDashboardService(db),
		UploadDir:          uploadDir,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return err
	}

	return serve(ctx, router, ":"+cfg.Port)
}

// setupLogger configures the global zerolog logger. Production writes JSON,
// every other environment a human readable console.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

// newSessionStore picks the session backend named by SESSION_STORE. The
// returned func releases whatever the store holds open.
func newSessionStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (sessions.Store, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return sessions.NewGormStore(db), func() {}, nil
	}

	rdb, err := sessions.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("Sessions stored in redis")
	return sessions.NewRedisStore(rdb), func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}, nil
}

// newImageService stores photos in S3 when a bucket is configured and on the
// local disk otherwise. The directory is returned only for local storage so
// the router can serve it.
func newImageService(ctx context.Context, cfg *config.Config) (services.ImageService, string, error) {
	if cfg.AWSS3Bucket != "" {
		s3, err := services.NewS3Service(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		log.Info().Str("bucket", cfg.AWSS3Bucket).Msg("Photos stored in S3")
		return services.NewS3ImageService(s3), "", nil
	}

	local, err := services.NewLocalImageService(cfg.UploadDir)
	if err != nil {
		return nil, "", err
	}
	log.Info().Str("dir", local.Dir()).Msg("Photos stored on local disk")
	return local, local.Dir(), nil
}

func serve(ctx context.Context, handler http.Handler, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
