package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/faradayfan/dedicated-server-manager/internal/api"
	"github.com/faradayfan/dedicated-server-manager/internal/config"
	"github.com/faradayfan/dedicated-server-manager/internal/instances"
	"github.com/faradayfan/dedicated-server-manager/internal/logger"
	"github.com/faradayfan/dedicated-server-manager/internal/manager"
	"github.com/faradayfan/dedicated-server-manager/internal/procs"
	"github.com/faradayfan/dedicated-server-manager/internal/profiles"
	"github.com/faradayfan/dedicated-server-manager/internal/rcon"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the manager and its HTTP API",
	Long: `Starts supervising every registered server and serves the control API.
Servers already running from an earlier session are adopted, not restarted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logger.New(&cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		zap.ReplaceGlobals(log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	src := procs.GopsutilSource{}
	reg := procs.NewRegistry(src, cfg.Manager.ProcessInterval, log)
	if err := reg.Refresh(ctx); err != nil {
		log.Warn("initial process scan failed", zap.Error(err))
	}

	mgr := manager.New(manager.Deps{
		Snapshots: reg,
		Launcher:  manager.ExecLauncher{Log: log},
		Killer:    src,
		Memory:    src,
		Rcon:      rcon.GorconClient{Timeout: cfg.Manager.RconTimeout},
	}, cfg.ManagerOptions(), log)
	defer mgr.Shutdown()

	profileStore := profiles.NewStore(catalog, cfg.Mode(), cfg.Profiles.ConfigFile, log)
	store := instances.NewStore(filepath.Join(cfg.Manager.DataDir, "instances.yaml"))
	svc, err := instances.NewService(mgr, profileStore, store, instances.Options{
		ProfilesDir: filepath.Join(cfg.Manager.DataDir, "profiles"),
		LogDir:      cfg.Manager.LogDir,
		Templates: instances.Templates{
			ServerExe:     cfg.Game.ServerExe,
			PluginHostExe: cfg.Game.PluginHostExe,
			RconHost:      cfg.Game.RconHost,
		},
	}, log)
	if err != nil {
		return fmt.Errorf("load instances: %w", err)
	}
	if err := svc.Restore(); err != nil {
		// one broken profile must not keep the others down
		log.Warn("some servers could not be restored", zap.Error(err))
	}

	srv := api.NewServer(svc, cfg.API.Addr, cfg.API.APIKey, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reg.Run(gctx) })
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error {
		if err := srv.Listen(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("api shutdown", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}
