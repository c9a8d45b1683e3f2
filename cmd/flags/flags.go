// Package flags holds the CLI flags and setup helpers shared by the
// engine binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/fhe16/confidential-compute-backend/common"
	"github.com/fhe16/confidential-compute-backend/httpserver"
)

// SetupLogger builds the process logger from the common logging flags.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the HTTP server config from the common server
// flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var KMSTypeFlag = &cli.StringFlag{
	Name:  "kms-type",
	Value: "simple",
	Usage: "master key custody: 'simple', 'passphrase' or 'shamir'",
}

var MasterKeyFlag = &cli.StringFlag{
	Name:  "master-key",
	Usage: "hex-encoded 32-byte master key (required for 'simple')",
}

var PassphraseFlag = &cli.StringFlag{
	Name:  "passphrase",
	Usage: "operator passphrase for Argon2id key derivation (required for 'passphrase')",
}

var PassphraseSaltFlag = &cli.StringFlag{
	Name:  "passphrase-salt",
	Usage: "hex-encoded salt for passphrase derivation, must be stable across restarts",
}

var ShamirThresholdFlag = &cli.IntFlag{
	Name:  "shamir-threshold",
	Value: 3,
	Usage: "number of shares required to reconstruct the master key",
}

var ShamirShareFilesFlag = &cli.StringSliceFlag{
	Name:  "shamir-share-file",
	Usage: "file holding one hex-encoded key share; repeat per share",
}

var ExportLocationsFlag = &cli.StringSliceFlag{
	Name:  "export-location",
	Value: cli.NewStringSlice("memory://"),
	Usage: "audit export backend URI (memory://, file://, s3://, ipfs://, vault://); repeat for redundancy",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "confidential-compute-engine",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

// CommonFlags are shared by every binary.
var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
