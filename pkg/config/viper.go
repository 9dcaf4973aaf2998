// Package config builds the Viper instance shared by the CLI: config file
// discovery plus SITEMAPS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every environment override, e.g.
// SITEMAPS_HTTP_TIMEOUT=30s.
const EnvPrefix = "SITEMAPS"

// New returns a Viper instance that reads path, or searches the working
// directory, /etc/edge-sitemaps and $HOME/.edge-sitemaps for config.{yaml,json,toml}
// when path is empty. A missing file is only an error when path was explicit.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/edge-sitemaps/")
		v.AddConfigPath("$HOME/.edge-sitemaps")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			zap.L().Warn("config file not found; using defaults and environment variables")
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	zap.L().Info("using config file", zap.String("path", v.ConfigFileUsed()))
	return v, nil
}
