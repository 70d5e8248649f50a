// Copyright 2025 The ChainDeed Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/chaindeed/deedsync/internal/config"
	"github.com/chaindeed/deedsync/internal/version"
	"github.com/chaindeed/deedsync/ledger/evm"
)

const (
	programName = "deedsync"
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...),
		"component", programName,
	)
}

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

func commonRun() *slog.Logger {
	// Configure logger
	logLevel := slog.LevelInfo
	addSource := false
	if globalFlags.debug {
		logLevel = slog.LevelDebug
		addSource = true
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     logLevel,
		}),
	)
	slog.SetDefault(logger)
	// Configure max processes with our logger wrapper, toss undo func
	_, err := maxprocs.Set(maxprocs.Logger(slogPrintf))
	if err != nil {
		// If we hit this, something really wrong happened
		slog.Error(err.Error())
		os.Exit(1)
	}
	logger.Info(
		"version: "+version.GetVersionString(),
		"component", programName,
	)
	return logger
}

// parseDuration parses a config duration string, falling back to the
// given default on empty or malformed values
func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn(
			"ignoring malformed duration",
			"component", programName,
			"value", value,
		)
		return fallback
	}
	return parsed
}

// registryClient dials the registry contract using the loaded config
func registryClient(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*evm.Client, error) {
	return evm.NewClient(ctx, evm.ClientConfig{
		Logger:          logger,
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
		PrivateKeyHex:   cfg.PrivateKey,
	})
}

// scopeAccount resolves the account to operate as: the configured
// account address, or the signing key's address when unset
func scopeAccount(cfg *config.Config, client *evm.Client) (common.Address, error) {
	if cfg.Account != "" {
		if !common.IsHexAddress(cfg.Account) {
			return common.Address{}, fmt.Errorf(
				"invalid account address: %q",
				cfg.Account,
			)
		}
		return common.HexToAddress(cfg.Account), nil
	}
	account := client.SignerAddress()
	if account == (common.Address{}) {
		return common.Address{}, fmt.Errorf(
			"no account configured and no signing key to derive one from",
		)
	}
	return account, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use: programName,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			watchRun(cmd, args, cfg)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	// Subcommands
	rootCmd.AddCommand(watchCommand())
	rootCmd.AddCommand(submitCommand())
	rootCmd.AddCommand(requestsCommand())
	rootCmd.AddCommand(pendingCommand())
	rootCmd.AddCommand(approveCommand())
	rootCmd.AddCommand(rejectCommand())
	rootCmd.AddCommand(versionCommand())

	// Execute cobra command
	if err := rootCmd.Execute(); err != nil {
		// NOTE: we purposely don't display the error, since cobra will have already displayed it
		os.Exit(1)
	}
}
