package config

import (
	"time"

	"github.com/faradayfan/dedicated-server-manager/internal/logger"
)

// Config holds all configuration for the application.
type Config struct {
	Log      logger.Config  `mapstructure:"log"`
	Manager  ManagerConfig  `mapstructure:"manager"`
	API      APIConfig      `mapstructure:"api"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Game     GameConfig     `mapstructure:"game"`
}

// ManagerConfig tunes supervision.
type ManagerConfig struct {
	// DataDir holds instances.yaml and the profiles created by the manager.
	DataDir string `mapstructure:"data_dir" default:"data"`
	// LogDir receives the output of servers without a dedicated console.
	LogDir string `mapstructure:"log_dir" default:"logs"`

	PollInterval       time.Duration `mapstructure:"poll_interval" default:"5s"`
	ProcessInterval    time.Duration `mapstructure:"process_interval" default:"5s"`
	PlayerPollInterval time.Duration `mapstructure:"player_poll_interval" default:"30s"`
	StartGrace         time.Duration `mapstructure:"start_grace" default:"30s"`
	UnknownGrace       time.Duration `mapstructure:"unknown_grace" default:"30s"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout" default:"1m"`
	KillWait           time.Duration `mapstructure:"kill_wait" default:"10s"`
	RconTimeout        time.Duration `mapstructure:"rcon_timeout" default:"10s"`
}

// APIConfig holds configuration for the control API.
type APIConfig struct {
	Addr string `mapstructure:"addr" default:"127.0.0.1:8080"`
	// APIKey is required in the X-API-Key header when set.
	APIKey string `mapstructure:"api_key" default:""`
}

type ProfilesConfig struct {
	// ConfigFile is the INI file written in every profile directory.
	ConfigFile string `mapstructure:"config_file" default:"GameUserSettings.ini"`
	// Catalog is an optional YAML file of settings merged over the built-in
	// catalog.
	Catalog string `mapstructure:"catalog" default:""`
	// Strict rejects values that do not match their setting instead of
	// falling back to the default.
	Strict bool `mapstructure:"strict" default:"false"`
}

// GameConfig locates server executables. Paths are text/template strings
// rendered with install_dir, profile_dir, id and name.
type GameConfig struct {
	ServerExe     string `mapstructure:"server_exe" default:"{{.install_dir}}/ShooterGame/Binaries/Win64/ArkAscendedServer.exe"`
	PluginHostExe string `mapstructure:"plugin_host_exe" default:"{{.install_dir}}/ShooterGame/Binaries/Win64/AsaApiLoader.exe"`
	RconHost      string `mapstructure:"rcon_host" default:"127.0.0.1"`
}
