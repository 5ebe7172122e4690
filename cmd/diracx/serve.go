package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/diracgrid/diracx-go/internal/auth"
	"github.com/diracgrid/diracx-go/internal/authdb"
	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/extensions"
	"github.com/diracgrid/diracx-go/internal/httpapi"
	"github.com/diracgrid/diracx-go/internal/idp"
	"github.com/diracgrid/diracx-go/internal/jobdb"
	"github.com/diracgrid/diracx-go/internal/keystore"
	"github.com/diracgrid/diracx-go/internal/pilot"
	"github.com/diracgrid/diracx-go/internal/sandbox"
	"github.com/diracgrid/diracx-go/internal/search"
	"github.com/diracgrid/diracx-go/internal/settings"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

// commandServe builds the long-running server command, grounded on dex's
// cmd/dex/serve.go runServe: load settings, build every collaborator once
// at startup, then serve until signaled. Unlike dex, there is a single
// HTTP transport here, so the oklog/run multi-server coordination dex
// needs for its HTTP+gRPC+telemetry listeners has no job to do and is
// replaced by a plain signal.NotifyContext/http.Server.Shutdown pair.
func commandServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the diracx HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

func configSourceFromURL(rawURL string) (config.Source, error) {
	path, ok := strings.CutPrefix(rawURL, "file://")
	if !ok {
		return nil, fmt.Errorf("unsupported config source URL %q: only file:// is implemented", rawURL)
	}
	return config.NewFileSource(path), nil
}

func runServe(ctx context.Context) error {
	s, err := settings.Load()
	if err != nil {
		return err
	}
	logger := newLogger()

	signingKey, err := keystore.LoadRSAKey(s.TokenSigningKey)
	if err != nil {
		return fmt.Errorf("loading token signing key: %w", err)
	}
	keys := keystore.NewFromRSAKey(signingKey, "current", s.KeyRotationTTL)

	var redisClient *redis.Client
	if s.ConfigRedisURL != "" {
		opts, err := redis.ParseURL(s.ConfigRedisURL)
		if err != nil {
			return fmt.Errorf("parsing config redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
	}

	source, err := configSourceFromURL(s.ConfigSourceURL)
	if err != nil {
		return err
	}
	configView := config.NewView(source, s.ConfigCacheTTL, logger, redisClient)
	if err := configView.Start(ctx); err != nil {
		return fmt.Errorf("loading initial config snapshot: %w", err)
	}

	authDB, err := authdb.Open(s.DatabaseDriver, s.AuthDBDSN)
	if err != nil {
		return err
	}
	defer authDB.Close()

	pilotDB, err := pilot.Open(s.DatabaseDriver, s.PilotDBDSN)
	if err != nil {
		return err
	}
	defer pilotDB.Close()

	sandboxDB, err := sandbox.Open(s.DatabaseDriver, s.SandboxDBDSN)
	if err != nil {
		return err
	}
	defer sandboxDB.Close()

	jobDB, err := jobdb.Open(s.DatabaseDriver, s.JobDBDSN)
	if err != nil {
		return err
	}
	defer jobDB.Close()

	minter := tokens.NewMinter(keys, s.Issuer, "diracx", s.AccessTokenTTL)
	verifier := tokens.NewVerifier(keys, s.Issuer)

	identity := idp.NewRegistry(configView, s.UpstreamRedirectURI)
	core := auth.NewCore(authDB, minter, verifier, configView, identity, s)

	searchEngine := search.NewEngine(s.MaxPerPage)

	sandboxStore, err := sandbox.NewStore(ctx, s.S3Bucket, s.S3Endpoint, s.S3UsePathStyle,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.S3AccessKey, s.S3SecretKey, "")))
	if err != nil {
		return fmt.Errorf("connecting to sandbox object store: %w", err)
	}
	sandboxService := &sandbox.Service{
		DB:             sandboxDB,
		Store:          sandboxStore,
		Bucket:         s.S3Bucket,
		StorageElement: s.S3Endpoint,
		MaxSize:        s.MaxSandboxSizeBytes,
		UploadValidity: s.SandboxUploadTTL,
		Retention:      s.SandboxRetention,
	}

	extensionRegistry := extensions.New(s.Extensions)

	health := gosundheit.New()
	registerDBCheck := func(name string, ping func(context.Context) error) {
		health.RegisterCheck(&gosundheit.Config{
			Check: &checks.CustomCheck{
				CheckName: name,
				CheckFunc: func(ctx context.Context) (details interface{}, err error) {
					return nil, ping(ctx)
				},
			},
			ExecutionPeriod:  15 * time.Second,
			InitiallyPassing: true,
		})
	}
	registerDBCheck("auth_db", func(ctx context.Context) error { return authDB.Ping(ctx) })
	registerDBCheck("pilot_db", func(ctx context.Context) error { return pilotDB.Conn().PingContext(ctx) })
	registerDBCheck("job_db", func(ctx context.Context) error { return jobDB.Conn().PingContext(ctx) })

	router := httpapi.NewRouter(httpapi.Deps{
		Core:         core,
		Verifier:     verifier,
		ConfigView:   configView,
		SearchEngine: searchEngine,
		Sandbox:      sandboxService,
		PilotDB:      pilotDB,
		JobDB:        jobDB,
		Extensions:   extensionRegistry,
		Settings:     s,
		Logger:       logger,
		Health:       health,
	}, s.DevMode)

	httpServer := &http.Server{
		Addr:    s.HTTPAddr,
		Handler: router,
	}

	serveCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", s.HTTPAddr).Info("serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-serveCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		configView.Stop()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
