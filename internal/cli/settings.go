package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/latch/internal/ir"
)

// DefaultDatabase is the store path used when nothing else is configured.
const DefaultDatabase = "latch.db"

// Settings holds the CLI defaults that flags override.
type Settings struct {
	Database  string    `mapstructure:"db"`
	Rules     string    `mapstructure:"rules"`
	Lifecycle ir.Config `mapstructure:"lifecycle"`
}

// LoadSettings reads latch.yaml and LATCH_* environment variables.
//
// With an explicit path the file must exist. Otherwise ./latch.yaml is
// read when present. Environment variables use "_" for nesting, e.g.
// LATCH_DB or LATCH_LIFECYCLE_COAST_TIMEOUT_MS.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()

	def := ir.DefaultConfig()
	v.SetDefault("db", DefaultDatabase)
	v.SetDefault("rules", "")
	v.SetDefault("lifecycle.dwell_ready_ms", def.DwellReadyMs)
	v.SetDefault("lifecycle.dwell_commit_ms", def.DwellCommitMs)
	v.SetDefault("lifecycle.coast_timeout_ms", def.CoastTimeoutMs)
	v.SetDefault("lifecycle.coast_conf_low", def.CoastConfLow)
	v.SetDefault("lifecycle.coast_conf_high", def.CoastConfHigh)
	v.SetDefault("lifecycle.conf_high", def.ConfHigh)
	v.SetDefault("lifecycle.conf_low", def.ConfLow)
	v.SetDefault("lifecycle.ready_gesture", def.ReadyGesture)
	v.SetDefault("lifecycle.release_gesture", def.ReleaseGesture)
	v.SetDefault("lifecycle.commit_gesture", def.CommitGesture)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("latch")
	}

	v.SetEnvPrefix("LATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}
