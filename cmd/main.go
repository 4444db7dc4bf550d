package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	grpchealth "github.com/dtroode/gophaccount-server/internal/api/grpc/health"
	grpcrouter "github.com/dtroode/gophaccount-server/internal/api/grpc/router"
	grpcserver "github.com/dtroode/gophaccount-server/internal/api/grpc/server"
	httpctx "github.com/dtroode/gophaccount-server/internal/api/http/context"
	"github.com/dtroode/gophaccount-server/internal/api/http/handler"
	httprouter "github.com/dtroode/gophaccount-server/internal/api/http/router"
	httpserver "github.com/dtroode/gophaccount-server/internal/api/http/server"
	"github.com/dtroode/gophaccount-server/internal/config"
	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
	"github.com/dtroode/gophaccount-server/internal/password"
	"github.com/dtroode/gophaccount-server/internal/repository/memory"
	"github.com/dtroode/gophaccount-server/internal/repository/postgres"
	"github.com/dtroode/gophaccount-server/internal/server"
	"github.com/dtroode/gophaccount-server/internal/service"
	miniostorage "github.com/dtroode/gophaccount-server/internal/storage/minio"
	s3storage "github.com/dtroode/gophaccount-server/internal/storage/s3"
	"github.com/dtroode/gophaccount-server/internal/token"
	"github.com/dtroode/gophaccount-server/internal/totp"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	accounts, sessionStore, closeStore := openStores(ctx, cfg, logger)
	defer closeStore()

	blobs := openBlobStore(ctx, cfg, logger)

	avatarService := service.NewAvatars(blobs, cfg.Avatar.MaxBytes, logger)
	authService := service.NewAuth(
		accounts,
		password.NewHasher(cfg.Hash.Cost, cfg.Hash.Concurrency),
		totp.NewEngine(cfg.TOTP.Issuer, cfg.TOTP.Skew),
		avatarService,
		service.AuthPolicy{
			MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
			MinPasswordLength: cfg.Auth.MinPasswordLength,
		},
		logger,
	)
	sessionService := service.NewSessions(token.NewJWT(cfg.Session.Secret), sessionStore, cfg.Session.TTL, logger)

	httpRouter := httprouter.New(authService, sessionService, avatarService, authService, httpctx.NewManager(), httprouter.Options{
		Cookie: handler.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
		MinPasswordLength:  cfg.Auth.MinPasswordLength,
		GenericLoginErrors: cfg.Auth.GenericLoginErrors,
		MaxAvatarBytes:     cfg.Avatar.MaxBytes,
	}, logger)
	httpServer := httpserver.NewHTTPServer(
		httpRouter.Register(),
		fmt.Sprintf(":%s", cfg.HTTP.Port),
		cfg.HTTP.ReadTimeout,
		cfg.HTTP.WriteTimeout,
	)

	healthServer := health.NewServer()
	watcher := grpchealth.NewWatcher(healthServer, authService, cfg.GRPC.HealthInterval, logger)
	grpcServer := grpcserver.NewGRPCServer(
		grpcrouter.New(healthServer, logger).Register(),
		healthServer,
		fmt.Sprintf(":%s", cfg.GRPC.Port),
	)

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(watchCtx)
	}()

	servers := []model.Server{httpServer, grpcServer}
	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s)
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")
	stopWatch()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func openStores(ctx context.Context, cfg *config.Config, logger *logger.Logger) (model.AccountStore, model.SessionStore, func()) {
	if cfg.AccountsBackend == config.AccountsBackendMemory {
		logger.Warn("using in-memory account store, data is lost on restart")
		return memory.NewAccountRepository(), memory.NewSessionRepository(), func() {}
	}

	conn, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}

	closeConn := func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}

	return postgres.NewAccountRepository(conn.DB()), postgres.NewSessionRepository(conn.DB()), closeConn
}

func openBlobStore(ctx context.Context, cfg *config.Config, logger *logger.Logger) model.Storage {
	if cfg.BlobBackend == config.BlobBackendS3 {
		client, err := s3storage.Dial(ctx, s3storage.Options{
			Region:       cfg.S3.Region,
			BaseEndpoint: cfg.S3.BaseEndpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			Bucket:       cfg.S3.Bucket,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			logger.Fatal("failed to initialize s3 storage client", "error", err)
		}
		return client
	}

	client, err := miniostorage.Dial(ctx, miniostorage.Options{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed to initialize storage client", "error", err)
	}
	return client
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
