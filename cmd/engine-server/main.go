package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/fhe16/confidential-compute-backend/api"
	"github.com/fhe16/confidential-compute-backend/cmd/flags"
	"github.com/fhe16/confidential-compute-backend/httpserver"
	"github.com/fhe16/confidential-compute-backend/kms"
	"github.com/fhe16/confidential-compute-backend/session"
	"github.com/fhe16/confidential-compute-backend/storage"
)

func main() {
	app := &cli.App{
		Name:  "engine-server",
		Usage: "Serve the confidential computation engine API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.KMSTypeFlag,
			flags.MasterKeyFlag,
			flags.PassphraseFlag,
			flags.PassphraseSaltFlag,
			flags.ShamirThresholdFlag,
			flags.ShamirShareFilesFlag,
			flags.ExportLocationsFlag,
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	keySource, err := buildKeySource(cCtx)
	if err != nil {
		logger.Error("Failed to initialize KMS", "err", err)
		return err
	}

	manager := session.NewManagerWithSource(keySource, logger)
	exportFactory := storage.NewFactory(logger)

	// Validate export locations up front so misconfiguration fails at
	// startup, not on the first export.
	for _, uri := range cCtx.StringSlice(flags.ExportLocationsFlag.Name) {
		if _, err := exportFactory.BackendFor(uri); err != nil {
			logger.Error("Invalid export location", "uri", uri, "err", err)
			return err
		}
	}

	handler := api.NewHandler(manager, exportFactory, logger)

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}

func buildKeySource(cCtx *cli.Context) (session.KeySource, error) {
	switch cCtx.String(flags.KMSTypeFlag.Name) {
	case "simple":
		keyHex := cCtx.String(flags.MasterKeyFlag.Name)
		if keyHex == "" {
			return nil, errors.New("master-key is required for simple KMS")
		}
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid master-key: %w", err)
		}
		inner, err := kms.NewSessionKMS(key)
		if err != nil {
			return nil, err
		}
		return session.DirectKeySource(inner), nil

	case "passphrase":
		passphrase := cCtx.String(flags.PassphraseFlag.Name)
		if passphrase == "" {
			return nil, errors.New("passphrase is required for passphrase KMS")
		}
		salt, err := hex.DecodeString(cCtx.String(flags.PassphraseSaltFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("invalid passphrase-salt: %w", err)
		}
		inner, err := kms.NewSessionKMSFromPassphrase([]byte(passphrase), salt)
		if err != nil {
			return nil, err
		}
		return session.DirectKeySource(inner), nil

	case "shamir":
		shareFiles := cCtx.StringSlice(flags.ShamirShareFilesFlag.Name)
		threshold := cCtx.Int(flags.ShamirThresholdFlag.Name)
		if len(shareFiles) < threshold {
			return nil, fmt.Errorf("shamir KMS needs at least %d share files, got %d", threshold, len(shareFiles))
		}

		shamirKMS := kms.NewShamirKMSRecovery(threshold)
		for i, file := range shareFiles {
			raw, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read share file %s: %w", file, err)
			}
			share, err := hex.DecodeString(strings.TrimSpace(string(raw)))
			if err != nil {
				return nil, fmt.Errorf("share file %s is not hex encoded: %w", file, err)
			}
			if err := shamirKMS.SubmitShare(i, share); err != nil {
				return nil, fmt.Errorf("failed to submit share from %s: %w", file, err)
			}
		}
		if !shamirKMS.IsUnlocked() {
			return nil, errors.New("shamir KMS did not unlock with the provided shares")
		}
		return shamirKMS, nil

	default:
		return nil, fmt.Errorf("invalid kms-type: %s", cCtx.String(flags.KMSTypeFlag.Name))
	}
}
