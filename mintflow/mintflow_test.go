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

package mintflow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	submitCalls int
	approveIds  []string
	rejectIds   []string
	rejectRsns  []string
	submitErr   error
	nextId      *big.Int
}

func (m *mockWriter) SubmitRequest(
	_ context.Context,
	tokenURI string,
	description string,
) (*big.Int, error) {
	m.submitCalls++
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.nextId, nil
}

func (m *mockWriter) Approve(_ context.Context, requestID *big.Int) error {
	m.approveIds = append(m.approveIds, requestID.String())
	return nil
}

func (m *mockWriter) RejectRequest(
	_ context.Context,
	requestID *big.Int,
	reason string,
) error {
	m.rejectIds = append(m.rejectIds, requestID.String())
	m.rejectRsns = append(m.rejectRsns, reason)
	return nil
}

func TestSubmit(t *testing.T) {
	writer := &mockWriter{nextId: big.NewInt(42)}
	w := New(WorkflowConfig{Writer: writer})
	id, err := w.Submit(
		context.Background(),
		"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		"deed: plot 12",
	)
	require.NoError(t, err)
	assert.Equal(t, "42", id.String())
	assert.Equal(t, 1, writer.submitCalls)
}

func TestSubmitValidation(t *testing.T) {
	testDefs := []struct {
		name        string
		tokenURI    string
		description string
		field       string
	}{
		{
			name:        "empty description",
			tokenURI:    "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
			description: "   ",
			field:       "description",
		},
		{
			name:        "malformed token URI",
			tokenURI:    "ipfs://not-a-cid",
			description: "deed: plot 12",
			field:       "tokenURI",
		},
		{
			name:        "empty token URI",
			tokenURI:    "",
			description: "deed: plot 12",
			field:       "tokenURI",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			writer := &mockWriter{nextId: big.NewInt(1)}
			w := New(WorkflowConfig{Writer: writer})
			_, err := w.Submit(
				context.Background(),
				testDef.tokenURI,
				testDef.description,
			)
			var validationErr ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, testDef.field, validationErr.Field)
			// Validation failures never reach the ledger
			assert.Equal(t, 0, writer.submitCalls)
		})
	}
}

func TestSubmitWrapsLedgerError(t *testing.T) {
	ledgerErr := errors.New("transaction reverted")
	writer := &mockWriter{submitErr: ledgerErr}
	w := New(WorkflowConfig{Writer: writer})
	_, err := w.Submit(
		context.Background(),
		"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		"deed: plot 12",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledgerErr)
}

func TestApprove(t *testing.T) {
	writer := &mockWriter{}
	w := New(WorkflowConfig{Writer: writer})
	require.NoError(t, w.Approve(context.Background(), big.NewInt(7)))
	assert.Equal(t, []string{"7"}, writer.approveIds)
}

func TestRejectRequiresReason(t *testing.T) {
	writer := &mockWriter{}
	w := New(WorkflowConfig{Writer: writer})
	err := w.Reject(context.Background(), big.NewInt(7), "")
	var validationErr ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "reason", validationErr.Field)
	assert.Empty(t, writer.rejectIds)

	require.NoError(
		t,
		w.Reject(context.Background(), big.NewInt(7), "duplicate claim"),
	)
	assert.Equal(t, []string{"7"}, writer.rejectIds)
	assert.Equal(t, []string{"duplicate claim"}, writer.rejectRsns)
}
