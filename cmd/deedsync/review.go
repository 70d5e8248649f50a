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
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaindeed/deedsync/internal/config"
	"github.com/chaindeed/deedsync/mintflow"
)

var rejectReason string

func parseRequestID(arg string) (*big.Int, error) {
	requestID, ok := new(big.Int).SetString(arg, 10)
	if !ok {
		return nil, fmt.Errorf("invalid request id: %q", arg)
	}
	return requestID, nil
}

func reviewWorkflow(
	cmd *cobra.Command,
	cfg *config.Config,
) (*mintflow.Workflow, func()) {
	logger := commonRun()
	client, err := registryClient(cmd.Context(), cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	workflow := mintflow.New(mintflow.WorkflowConfig{
		Logger: logger,
		Writer: client,
	})
	return workflow, client.Close
}

func approveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a pending mint request",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			requestID, err := parseRequestID(args[0])
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			workflow, closeClient := reviewWorkflow(cmd, cfg)
			defer closeClient()
			if err := workflow.Approve(cmd.Context(), requestID); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf("approved request %s\n", requestID.String())
		},
	}
	return cmd
}

func rejectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending mint request",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			requestID, err := parseRequestID(args[0])
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			workflow, closeClient := reviewWorkflow(cmd, cfg)
			defer closeClient()
			err = workflow.Reject(cmd.Context(), requestID, rejectReason)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf("rejected request %s\n", requestID.String())
		},
	}
	cmd.Flags().StringVar(
		&rejectReason,
		"reason",
		"",
		"reason for rejection (required)",
	)
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
