// Package config loads the manager configuration from defaults, an optional
// YAML file, a .env file and the environment.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/faradayfan/dedicated-server-manager/internal/manager"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

// Load reads configuration. The .env file in dir overrides the process
// environment when present; file is an optional YAML config file.
// Environment variables map onto nested keys, so MANAGER_POLL_INTERVAL sets
// manager.poll_interval.
func Load(dir, file string) (*Config, error) {
	// Ignore error if file doesn't exist
	_ = godotenv.Overload(filepath.Join(dir, ".env"))

	v := viper.New()
	bindValues(v, Config{}, "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", file, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindValues sets every key's default from the 'default' struct tag, which
// also registers the key for AutomaticEnv.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Manager.DataDir) == "" {
		return fmt.Errorf("manager.data_dir is required")
	}
	if strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("api.addr is required")
	}
	if strings.TrimSpace(c.Game.ServerExe) == "" {
		return fmt.Errorf("game.server_exe is required")
	}
	if c.Manager.PollInterval <= 0 || c.Manager.ProcessInterval <= 0 {
		return fmt.Errorf("manager poll intervals must be positive")
	}
	return nil
}

// ManagerOptions converts the manager section for the supervisor.
func (c *Config) ManagerOptions() manager.Options {
	m := c.Manager
	return manager.Options{
		PollInterval:       m.PollInterval,
		StartGrace:         m.StartGrace,
		UnknownGrace:       m.UnknownGrace,
		StopTimeout:        m.StopTimeout,
		KillWait:           m.KillWait,
		RconTimeout:        m.RconTimeout,
		PlayerPollInterval: m.PlayerPollInterval,
	}
}

func (c *Config) Mode() settings.Mode {
	if c.Profiles.Strict {
		return settings.Strict
	}
	return settings.Lenient
}

// Catalog returns the built-in catalog merged with the user catalog file.
func (c *Config) Catalog() (*settings.Catalog, error) {
	base := settings.BuiltIn()
	if c.Profiles.Catalog == "" {
		return base, nil
	}
	user, err := settings.LoadCatalogFile(c.Profiles.Catalog)
	if err != nil {
		return nil, err
	}
	return base.Merge(user), nil
}
