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

// Package mintflow implements the mint-request workflow on top of the
// registry writer. Inputs are validated locally before anything touches
// the ledger, so a malformed submission never costs a transaction.
package mintflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"github.com/chaindeed/deedsync/gateway"
	"github.com/chaindeed/deedsync/ledger"
)

// ValidationError reports a locally rejected input. It is returned
// before any ledger interaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf(
		"invalid %s: %s",
		e.Field,
		e.Reason,
	)
}

// WorkflowConfig holds dependencies for a Workflow.
type WorkflowConfig struct {
	Logger *slog.Logger
	Writer ledger.Writer
}

// Workflow submits and reviews mint requests.
type Workflow struct {
	config WorkflowConfig
	logger *slog.Logger
	writer ledger.Writer
}

// New creates a Workflow.
func New(config WorkflowConfig) *Workflow {
	w := &Workflow{
		config: config,
		writer: config.Writer,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		w.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		w.logger = config.Logger
	}
	return w
}

// Submit validates and submits a new mint request. The returned id is
// the one the registry assigned.
func (w *Workflow) Submit(
	ctx context.Context,
	tokenURI string,
	description string,
) (*big.Int, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ValidationError{
			Field:  "description",
			Reason: "must not be empty",
		}
	}
	if _, err := gateway.ParseRef(tokenURI); err != nil {
		return nil, ValidationError{
			Field:  "tokenURI",
			Reason: err.Error(),
		}
	}
	requestID, err := w.writer.SubmitRequest(ctx, tokenURI, description)
	if err != nil {
		return nil, fmt.Errorf("submit mint request: %w", err)
	}
	w.logger.Info(
		"mint request submitted",
		"component", "mintflow",
		"request_id", requestID.String(),
	)
	return requestID, nil
}

// Approve approves a pending request, minting its certificate. The
// transition is terminal.
func (w *Workflow) Approve(ctx context.Context, requestID *big.Int) error {
	if requestID == nil {
		return ValidationError{
			Field:  "requestID",
			Reason: "must not be nil",
		}
	}
	if err := w.writer.Approve(ctx, requestID); err != nil {
		return fmt.Errorf("approve request %s: %w", requestID.String(), err)
	}
	w.logger.Info(
		"mint request approved",
		"component", "mintflow",
		"request_id", requestID.String(),
	)
	return nil
}

// Reject rejects a pending request. A reason is required; the
// transition is terminal.
func (w *Workflow) Reject(
	ctx context.Context,
	requestID *big.Int,
	reason string,
) error {
	if requestID == nil {
		return ValidationError{
			Field:  "requestID",
			Reason: "must not be nil",
		}
	}
	if strings.TrimSpace(reason) == "" {
		return ValidationError{
			Field:  "reason",
			Reason: "must not be empty",
		}
	}
	if err := w.writer.RejectRequest(ctx, requestID, reason); err != nil {
		return fmt.Errorf("reject request %s: %w", requestID.String(), err)
	}
	w.logger.Info(
		"mint request rejected",
		"component", "mintflow",
		"request_id", requestID.String(),
		"reason", reason,
	)
	return nil
}
