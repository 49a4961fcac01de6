package config

import (
	"os"

	"github.com/urfave/cli/v2"
)

// CLI flags mirroring the TOML keys. Every flag has an environment
// fallback, so containerized deployments can skip the file entirely.
var (
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "log verbosity (trace, debug, info, warn, error)",
		EnvVars: []string{"LOG_LEVEL"},
		Value:   "info",
	}
	LogFormatFlag = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "log output format (pretty, json)",
		EnvVars: []string{"LOG_FORMAT"},
		Value:   "pretty",
	}
	ChainNameFlag = &cli.StringFlag{
		Name:    "chain-name",
		Usage:   "chain id, names the database schema",
		EnvVars: []string{"CHAIN_NAME"},
		Value:   DefaultChainName,
	}
	TendermintAddrFlag = &cli.StringFlag{
		Name:    "tendermint-addr",
		Usage:   "rpc address of the node to sync from",
		EnvVars: []string{"TENDERMINT_ADDR"},
		Value:   DefaultTendermintAddr,
	}
	DBHostFlag = &cli.StringFlag{
		Name:    "db-host",
		EnvVars: []string{"DATABASE_HOST"},
		Value:   DefaultDBHost,
	}
	DBPortFlag = &cli.IntFlag{
		Name:    "db-port",
		EnvVars: []string{"DATABASE_PORT"},
		Value:   DefaultDBPort,
	}
	DBUserFlag = &cli.StringFlag{
		Name:    "db-user",
		EnvVars: []string{"DATABASE_USER"},
		Value:   DefaultDBUser,
	}
	DBPasswordFlag = &cli.StringFlag{
		Name:    "db-password",
		EnvVars: []string{"DATABASE_PASSWORD"},
	}
	DBNameFlag = &cli.StringFlag{
		Name:    "db-name",
		EnvVars: []string{"DATABASE_NAME"},
		Value:   DefaultDBName,
	}
	DBConnTimeoutFlag = &cli.IntFlag{
		Name:    "db-connection-timeout",
		Usage:   "seconds to wait for a database connection",
		EnvVars: []string{"DATABASE_CONNECTION_TIMEOUT"},
	}
	DBCreateIndexFlag = &cli.BoolFlag{
		Name:    "db-create-index",
		Usage:   "build query indexes once the sync catches up",
		EnvVars: []string{"DATABASE_CREATE_INDEX"},
	}
	ServeAtFlag = &cli.StringFlag{
		Name:    "serve-at",
		Usage:   "api listen address",
		EnvVars: []string{"SERVE_AT"},
		Value:   DefaultServerAddr,
	}
	ServerPortFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "api listen port",
		EnvVars: []string{"SERVER_PORT"},
		Value:   DefaultServerPort,
	}
	CorsAllowOriginsFlag = &cli.StringSliceFlag{
		Name:    "cors-allow-origins",
		Usage:   "origins allowed to call the api; empty allows all",
		EnvVars: []string{"CORS_ALLOW_ORIGINS"},
	}
	PrometheusHostFlag = &cli.StringFlag{
		Name:    "prometheus-host",
		EnvVars: []string{"PROMETHEUS_HOST"},
		Value:   DefaultPrometheusHost,
	}
	PrometheusPortFlag = &cli.IntFlag{
		Name:    "prometheus-port",
		EnvVars: []string{"PROMETHEUS_PORT"},
		Value:   DefaultPrometheusPort,
	}
)

// Flags is the full flag set shared by both binaries.
func Flags() []cli.Flag {
	return []cli.Flag{
		LogLevelFlag, LogFormatFlag, ChainNameFlag, TendermintAddrFlag,
		DBHostFlag, DBPortFlag, DBUserFlag, DBPasswordFlag, DBNameFlag,
		DBConnTimeoutFlag, DBCreateIndexFlag,
		ServeAtFlag, ServerPortFlag, CorsAllowOriginsFlag,
		PrometheusHostFlag, PrometheusPortFlag,
	}
}

// FromContext builds the settings for a CLI invocation. A TOML file named
// by $INDEXER_CONFIG_PATH takes precedence over the flags.
func FromContext(c *cli.Context) (Settings, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return FromFile(path)
	}

	s := Default()
	s.LogLevel = c.String(LogLevelFlag.Name)
	s.LogFormat = c.String(LogFormatFlag.Name)
	s.ChainName = c.String(ChainNameFlag.Name)
	s.Indexer.TendermintAddr = c.String(TendermintAddrFlag.Name)
	s.Database.Host = c.String(DBHostFlag.Name)
	s.Database.Port = c.Int(DBPortFlag.Name)
	s.Database.User = c.String(DBUserFlag.Name)
	s.Database.Password = c.String(DBPasswordFlag.Name)
	s.Database.Dbname = c.String(DBNameFlag.Name)
	s.Database.ConnectionTimeout = c.Int(DBConnTimeoutFlag.Name)
	s.Database.CreateIndex = c.Bool(DBCreateIndexFlag.Name)
	s.Server.ServeAt = c.String(ServeAtFlag.Name)
	s.Server.Port = c.Int(ServerPortFlag.Name)
	s.Server.CorsAllowOrigins = c.StringSlice(CorsAllowOriginsFlag.Name)
	s.Prometheus.Host = c.String(PrometheusHostFlag.Name)
	s.Prometheus.Port = c.Int(PrometheusPortFlag.Name)

	s.Validate()
	return s, nil
}
