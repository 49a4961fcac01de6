// Package config loads the indexer settings, either from a TOML file
// pointed at by $INDEXER_CONFIG_PATH or from CLI flags and environment
// variables wired up by the cmd packages.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/Zondax/namadexer/errs"
)

// EnvConfigPath points at a TOML settings file; when set it takes
// precedence over flags.
const EnvConfigPath = "INDEXER_CONFIG_PATH"

// Defaults, matching the reference deployment.
const (
	DefaultChainName = "public-testnet-14"

	DefaultServerAddr = "127.0.0.1"
	DefaultServerPort = 30303

	DefaultTendermintAddr = "http://127.0.0.1:26657"

	DefaultDBHost = "localhost"
	DefaultDBPort = 5432
	DefaultDBUser = "postgres"
	DefaultDBName = "blockchain"

	DefaultJaegerHost = "localhost"
	DefaultJaegerPort = 6831

	DefaultPrometheusHost = "localhost"
	DefaultPrometheusPort = 9000
)

type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Dbname   string `toml:"dbname"`
	// ConnectionTimeout limits, in seconds, how long to wait for a pooled
	// connection. Zero means the built-in 60s default.
	ConnectionTimeout int  `toml:"connection_timeout"`
	CreateIndex       bool `toml:"create_index"`
}

type ServerConfig struct {
	ServeAt          string   `toml:"serve_at"`
	Port             int      `toml:"port"`
	CorsAllowOrigins []string `toml:"cors_allow_origins"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.ServeAt, c.Port)
}

type IndexerConfig struct {
	TendermintAddr string `toml:"tendermint_addr"`
}

type JaegerConfig struct {
	Enable bool   `toml:"enable"`
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
}

type PrometheusConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

func (c PrometheusConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Settings is the full process configuration.
type Settings struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	ChainName string `toml:"chain_name"`

	Database   DatabaseConfig   `toml:"database"`
	Server     ServerConfig     `toml:"server"`
	Indexer    IndexerConfig    `toml:"indexer"`
	Jaeger     JaegerConfig     `toml:"jaeger"`
	Prometheus PrometheusConfig `toml:"prometheus"`
}

// Default returns the settings used when neither file nor flags override
// them.
func Default() Settings {
	return Settings{
		LogLevel:  "info",
		LogFormat: "pretty",
		ChainName: DefaultChainName,
		Database: DatabaseConfig{
			Host:   DefaultDBHost,
			Port:   DefaultDBPort,
			User:   DefaultDBUser,
			Dbname: DefaultDBName,
		},
		Server: ServerConfig{
			ServeAt: DefaultServerAddr,
			Port:    DefaultServerPort,
		},
		Indexer: IndexerConfig{
			TendermintAddr: DefaultTendermintAddr,
		},
		Jaeger: JaegerConfig{
			Host: DefaultJaegerHost,
			Port: DefaultJaegerPort,
		},
		Prometheus: PrometheusConfig{
			Host: DefaultPrometheusHost,
			Port: DefaultPrometheusPort,
		},
	}
}

// FromFile decodes a TOML settings file over the defaults.
func FromFile(path string) (Settings, error) {
	s := Default()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, errs.Wrap(errs.Config, err)
	}
	s.Validate()
	return s, nil
}

// Validate panics on a chain name that cannot name a SQL schema. A valid
// chain name looks like "public-testnet-14".
func (s Settings) Validate() {
	if strings.Contains(s.ChainName, ".") {
		panic(fmt.Sprintf("chain_name %q must not contain '.'", s.ChainName))
	}
}

// SchemaName is the database schema all tables for this chain live under.
func (s Settings) SchemaName() string {
	return strings.ReplaceAll(s.ChainName, "-", "_")
}

// SetupLogging configures the global logger from log_level / log_format.
func (s Settings) SetupLogging() error {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return errs.Wrap(errs.Config, err)
	}
	logrus.SetLevel(level)

	switch s.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "pretty", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return errs.E(errs.Config, "unknown log_format %q", s.LogFormat)
	}
	return nil
}
