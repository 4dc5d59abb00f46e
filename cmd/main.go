package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/avoynich/wsprovd/internal/api/tcp"
	"github.com/avoynich/wsprovd/internal/config"
	"github.com/avoynich/wsprovd/internal/logger"
	"github.com/avoynich/wsprovd/internal/model"
	"github.com/avoynich/wsprovd/internal/repository/postgres"
	"github.com/avoynich/wsprovd/internal/server"
	"github.com/avoynich/wsprovd/internal/service"
	"github.com/avoynich/wsprovd/internal/storage/local"
	storage "github.com/avoynich/wsprovd/internal/storage/minio"
	"github.com/avoynich/wsprovd/internal/token"
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

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer db.Close()

	workspaceRepo := postgres.NewWorkspaceRepository(db)
	safeguardRepo := postgres.NewSafeguardRepository(db)
	failureRepo := postgres.NewFailureRepository(db)

	contentStore, err := newContentStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize content store", "error", err)
	}

	safeguard := service.NewSafeguard(
		safeguardRepo, failureRepo,
		cfg.Security.AccountTimeout, cfg.Security.MaxFailures, cfg.Security.LockoutDelay,
		logger)
	workspaces := service.NewWorkspace(
		workspaceRepo, contentStore, safeguard,
		token.NewSession(cfg.Session.Secret), service.NewPasswordVerifier(),
		cfg.Workspace.DefaultQuota, logger)

	engine := tcp.NewEngine(workspaces, logger)
	addr := net.JoinHostPort(cfg.Listen.Address, cfg.Listen.Port)
	commandServer := tcp.NewServer(engine, addr, cfg.Listen.IdleTimeout, cfg.Listen.WriteTimeout, logger)

	var sl model.SecurityLayer
	if cfg.Listen.EnableTLS {
		sl = server.NewTLSListener(cfg.Listen.CertFileName, cfg.Listen.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", addr)
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(commandServer)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := commandServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", commandServer.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func newContentStore(ctx context.Context, cfg *config.Config) (model.Storage, error) {
	switch cfg.Workspace.StorageBackend {
	case "minio":
		minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
			Secure: cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		return storage.NewClient(ctx, minioClient, cfg.Storage.Bucket)
	case "local":
		return local.New(cfg.Workspace.Dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Workspace.StorageBackend)
	}
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
