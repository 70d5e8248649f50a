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
)

func pendingRun(cmd *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()
	ctx := cmd.Context()

	client, err := registryClient(ctx, cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	defer client.Close()

	pending, err := client.GetPendingRequests(ctx)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	if len(pending) == 0 {
		fmt.Println("no pending requests")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREQUESTER\tSUBMITTED\tDESCRIPTION")
	for _, req := range pending {
		fmt.Fprintf(
			w,
			"%s\t%s\t%s\t%s\n",
			req.RequestID.String(),
			req.Requester.Hex(),
			req.SubmittedAt.Format("2006-01-02 15:04:05"),
			req.Description,
		)
	}
	w.Flush()
}

func pendingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List all mint requests awaiting review",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			pendingRun(cmd, args, cfg)
		},
	}
	return cmd
}
