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
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/chaindeed/deedsync"
	"github.com/chaindeed/deedsync/internal/config"
	"github.com/chaindeed/deedsync/store"
)

func watchRun(_ *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()

	promRegistry := prometheus.NewRegistry()
	opts := []deedsync.ConfigOptionFunc{
		deedsync.WithLogger(logger),
		deedsync.WithPrometheusRegistry(promRegistry),
		deedsync.WithRPCURL(cfg.RPCURL),
		deedsync.WithContractAddress(cfg.ContractAddress),
		deedsync.WithPrivateKey(cfg.PrivateKey),
		deedsync.WithGateways(cfg.Gateways),
		deedsync.WithRefreshInterval(
			parseDuration(cfg.RefreshInterval, 30*time.Second),
		),
		deedsync.WithFetchTimeout(parseDuration(cfg.FetchTimeout, 10*time.Second)),
		deedsync.WithPollInterval(parseDuration(cfg.PollInterval, 15*time.Second)),
		deedsync.WithShutdownTimeout(
			parseDuration(cfg.ShutdownTimeout, 30*time.Second),
		),
		deedsync.WithTracing(cfg.Tracing),
		deedsync.WithTracingStdout(cfg.TracingStdout),
	}
	if cfg.Account != "" {
		if !common.IsHexAddress(cfg.Account) {
			slog.Error("invalid account address: " + cfg.Account)
			os.Exit(1)
		}
		opts = append(
			opts,
			deedsync.WithAccount(common.HexToAddress(cfg.Account)),
		)
	}
	engine, err := deedsync.New(deedsync.NewConfig(opts...))
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	// Serve metrics
	if cfg.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(
			"/metrics",
			promhttp.HandlerFor(
				promRegistry,
				promhttp.HandlerOpts{},
			),
		)
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 60 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				err != http.ErrServerClosed {
				logger.Error(
					"metrics listener failed",
					"component", programName,
					"error", err,
				)
			}
		}()
		logger.Info(
			fmt.Sprintf("serving prometheus metrics on :%d", cfg.MetricsPort),
			"component", programName,
		)
	}

	// Log cache updates as they land
	unsubscribe := engine.Subscribe(func(key store.EntryKey, entry store.CacheEntry) {
		logger.Info(
			"cache update",
			"component", programName,
			"kind", key.Kind,
			"identity", key.Identity,
			"state", entry.State,
		)
	})
	defer unsubscribe()

	// Stop the engine on SIGINT/SIGTERM
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		logger.Info(
			"signal received, shutting down",
			"component", programName,
			"signal", sig.String(),
		)
		if err := engine.Stop(); err != nil {
			logger.Error(
				"shutdown error",
				"component", programName,
				"error", err,
			)
		}
	}()

	if err := engine.Run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Synchronize certificates for an account and watch for updates",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			watchRun(cmd, args, cfg)
		},
	}
	return cmd
}
