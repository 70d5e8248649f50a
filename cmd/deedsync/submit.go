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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chaindeed/deedsync/internal/config"
	"github.com/chaindeed/deedsync/metadata"
	"github.com/chaindeed/deedsync/mintflow"
	"github.com/chaindeed/deedsync/pinner"
)

var submitFlags = struct {
	tokenURI    string
	file        string
	name        string
	description string
}{}

func submitRun(cmd *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()
	ctx := cmd.Context()

	tokenURI := submitFlags.tokenURI
	if tokenURI == "" {
		// Pin the certificate content first
		if submitFlags.file == "" {
			slog.Error("either --token-uri or --file is required")
			os.Exit(1)
		}
		if cfg.PinataJWT == "" {
			slog.Error("no pinning service JWT configured")
			os.Exit(1)
		}
		file, err := os.Open(submitFlags.file)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		defer file.Close()
		name := submitFlags.name
		if name == "" {
			name = filepath.Base(submitFlags.file)
		}
		pinClient := pinner.NewClient(
			cfg.PinataJWT,
			pinner.WithBaseURL(cfg.PinataBaseURL),
			pinner.WithLogger(logger),
		)
		tokenURI, err = pinClient.UploadCertificate(
			ctx,
			file,
			filepath.Base(submitFlags.file),
			name,
			submitFlags.description,
			[]metadata.Attribute{},
		)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
	}

	client, err := registryClient(ctx, cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	defer client.Close()

	workflow := mintflow.New(mintflow.WorkflowConfig{
		Logger: logger,
		Writer: client,
	})
	requestID, err := workflow.Submit(ctx, tokenURI, submitFlags.description)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	fmt.Printf("submitted mint request %s for %s\n", requestID.String(), tokenURI)
}

func submitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a certificate mint request",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			submitRun(cmd, args, cfg)
		},
	}
	cmd.Flags().StringVar(
		&submitFlags.tokenURI,
		"token-uri",
		"",
		"content reference of already-pinned certificate metadata",
	)
	cmd.Flags().StringVar(
		&submitFlags.file,
		"file",
		"",
		"certificate file to pin before submitting",
	)
	cmd.Flags().StringVar(
		&submitFlags.name,
		"name",
		"",
		"certificate name (defaults to the file name)",
	)
	cmd.Flags().StringVar(
		&submitFlags.description,
		"description",
		"",
		"certificate description (required)",
	)
	_ = cmd.MarkFlagRequired("description")
	return cmd
}
