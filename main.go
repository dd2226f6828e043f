package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/musichost/hoster/config"
	"github.com/musichost/hoster/events"
	"github.com/musichost/hoster/hoster"
	"github.com/musichost/hoster/intake"
	"github.com/musichost/hoster/middleware"
	"github.com/musichost/hoster/provision"
	"github.com/musichost/hoster/registry"
	"github.com/musichost/hoster/routes"
	"github.com/musichost/hoster/store"
	"github.com/musichost/hoster/supervise"
	"github.com/musichost/hoster/telegram"
)

func main() {
	configPath := flag.String("config", "hoster.toml", "path to the TOML config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	log := slog.Default().With("component", "main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.BaseURL)
	identity, err := client.GetMe(ctx)
	if err != nil {
		log.Error("telegram credentials rejected", "err", err)
		os.Exit(1)
	}

	var fetcher provision.Fetcher
	if cfg.Artifact.ArchivePath != "" {
		fetcher = &provision.ArchiveFetcher{Path: cfg.Artifact.ArchivePath}
	} else {
		fetcher = &provision.GitFetcher{RepoURL: cfg.Artifact.RepoURL, Token: cfg.Artifact.Token}
	}
	if err := os.MkdirAll(cfg.WorkspaceRoot, 0o755); err != nil {
		log.Error("create workspace root", "path", cfg.WorkspaceRoot, "err", err)
		os.Exit(1)
	}
	provisioner := provision.NewProvisioner(cfg.WorkspaceRoot, fetcher, &provision.PipInstaller{})

	var runner supervise.Runner
	switch cfg.Runtime {
	case "docker":
		dockerRunner, err := supervise.NewDockerRunner(cfg.Docker.Image, cfg.Docker.Network)
		if err != nil {
			log.Error("docker runtime unavailable", "err", err)
			os.Exit(1)
		}
		runner = dockerRunner
	default:
		runner = supervise.NewProcessRunner()
	}

	var publisher *events.Publisher
	if cfg.Redis.Addr != "" {
		publisher = events.NewPublisher(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	}

	var runStore *store.RunStore
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Error("open database", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		runStore = store.NewRunStore(db)
	}

	reg := registry.NewRegistry()
	prober := telegram.NewProber(cfg.Telegram.BaseURL)

	service := hoster.NewService(hoster.Deps{
		AdminID: cfg.Telegram.AdminID,
		Intake: intake.NewManager(intake.Defaults{
			APIID:    cfg.Defaults.APIID,
			APIHash:  cfg.Defaults.APIHash,
			MongoURI: cfg.Defaults.MongoURI,
		}),
		Registry:    reg,
		Provisioner: provisioner,
		Runner:      runner,
		Transport:   client,
		Prober:      prober,
		Events:      publisher,
		Runs:        runStore,
	})

	monitor := registry.NewMonitor(reg, func(ctx context.Context, token string) error {
		_, err := prober.Lookup(ctx, token)
		return err
	}, cfg.MonitorInterval())
	monitor.OnEvict = func(t registry.Tenant) {
		publisher.Publish(context.Background(), events.Event{
			Type:        events.TypeEvicted,
			UserID:      t.UserID,
			BotUsername: t.BotUsername,
			Reason:      "process exited",
		})
	}
	go monitor.Run(ctx)

	if cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		routes.MountTenantRoutes(mux, reg, runStore, service)
		routes.NewEventsHandler(publisher).Mount(mux)

		server := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: middleware.ApplyBodyLimit(middleware.ApplyAdmin(cfg.HTTP.JWTSecret, mux)),
		}
		go func() {
			log.Info("status API listening", "addr", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status API failed", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	log.Info("hoster started",
		"bot", identity.Username,
		"runtime", cfg.Runtime,
		"workspace_root", cfg.WorkspaceRoot,
	)

	poller := telegram.NewPoller(client, service.HandleUpdate)
	poller.Run(ctx)

	// The registry does not survive restarts, so leave nothing orphaned.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	service.StopAll(shutdownCtx)
	log.Info("hoster stopped")
}
