package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/config"
	"github.com/faradayfan/dedicated-server-manager/internal/logger"
)

var (
	configFile string
	envDir     string
	baseURL    string
	apiKey     string
)

var rootCmd = &cobra.Command{
	Use:   "gsm",
	Short: "Dedicated game server manager",
	Long: `gsm supervises dedicated game servers: it keeps their settings profiles,
launches and stops them, and restarts them when they misbehave.

Run "gsm serve" on the game host; the other commands talk to it over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
		if logErr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		l.Error("command failed", zap.Error(err))
		_ = l.Sync()
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configFile, "config", "c", "", "YAML config file")
	f.StringVar(&envDir, "env-dir", ".", "directory holding the .env file")
	f.StringVar(&baseURL, "url", getenvDefault("GSM_URL", "http://127.0.0.1:8080"), "manager API address (GSM_URL)")
	f.StringVar(&apiKey, "api-key", os.Getenv("GSM_API_KEY"), "manager API key (GSM_API_KEY)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(envDir, configFile)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
