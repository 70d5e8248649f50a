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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chaindeed/deedsync/internal/config"
	"github.com/chaindeed/deedsync/ledger"
)

func requestsRun(cmd *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()
	ctx := cmd.Context()

	client, err := registryClient(ctx, cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	defer client.Close()

	account, err := scopeAccount(cfg, client)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	ids, err := client.GetUserRequests(ctx, account)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSUBMITTED\tDESCRIPTION\tDETAIL")
	for _, id := range ids {
		req, err := client.GetRequest(ctx, id)
		if err != nil {
			slog.Error(err.Error())
			continue
		}
		detail := req.TokenURI
		if req.Status == ledger.StatusRejected && req.RejectReason != "" {
			detail = "rejected: " + req.RejectReason
		}
		fmt.Fprintf(
			w,
			"%s\t%s\t%s\t%s\t%s\n",
			req.RequestID.String(),
			req.Status.String(),
			req.SubmittedAt.Format("2006-01-02 15:04:05"),
			req.Description,
			detail,
		)
	}
	w.Flush()
}

func requestsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List the account's mint requests",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			requestsRun(cmd, args, cfg)
		},
	}
	return cmd
}
