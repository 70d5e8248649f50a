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

// Package evm implements the ledger interfaces against a ChainDeed
// registry contract on an Ethereum-compatible chain.
package evm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chaindeed/deedsync/ledger"
)

// ErrNoSigner is returned from write operations when the client was
// created without a signing key.
var ErrNoSigner = errors.New("no signing key configured")

// ClientConfig holds the connection parameters for the registry
// contract.
type ClientConfig struct {
	Logger *slog.Logger
	// RPCURL is the JSON-RPC endpoint of the chain node.
	RPCURL string
	// ContractAddress is the deployed ChainDeed registry address.
	ContractAddress string
	// PrivateKeyHex enables the Writer interface when set. Read-only
	// clients leave it empty.
	PrivateKeyHex string
}

// Client talks to the ChainDeed registry contract. It implements
// ledger.Reader always and ledger.Writer when a signing key is
// configured.
type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	signer   *bind.TransactOpts
	logger   *slog.Logger
	address  common.Address
}

// NewClient dials the RPC endpoint and binds the registry contract.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("no RPC URL configured")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf(
			"invalid contract address: %q",
			cfg.ContractAddress,
		)
	}
	parsedAbi, err := abi.JSON(strings.NewReader(chainDeedABI))
	if err != nil {
		return nil, fmt.Errorf("parsing contract ABI: %w", err)
	}
	ethClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing RPC endpoint: %w", err)
	}
	c := &Client{
		eth:     ethClient,
		abi:     parsedAbi,
		address: common.HexToAddress(cfg.ContractAddress),
		logger:  cfg.Logger,
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c.contract = bind.NewBoundContract(
		c.address,
		parsedAbi,
		ethClient,
		ethClient,
		ethClient,
	)
	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(
			strings.TrimPrefix(cfg.PrivateKeyHex, "0x"),
		)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		chainID, err := ethClient.ChainID(ctx)
		if err != nil {
			return nil, ledger.Unavailable("fetching chain id", err)
		}
		signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, fmt.Errorf("creating transactor: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Address returns the bound registry contract address.
func (c *Client) Address() common.Address {
	return c.address
}

// SignerAddress returns the account of the configured signing key, or
// the zero address for a read-only client.
func (c *Client) SignerAddress() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.From
}

func (c *Client) call(
	ctx context.Context,
	results *[]any,
	method string,
	params ...any,
) error {
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, results, method, params...); err != nil {
		return ledger.Unavailable("calling "+method, err)
	}
	return nil
}

// GetRequest implements ledger.Reader.
func (c *Client) GetRequest(
	ctx context.Context,
	requestID *big.Int,
) (*ledger.MintRequest, error) {
	var out []any
	if err := c.call(ctx, &out, "getRequest", requestID); err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, ledger.Unavailable(
			"decoding getRequest",
			fmt.Errorf("unexpected result arity %d", len(out)),
		)
	}
	requester, ok := out[0].(common.Address)
	if !ok {
		return nil, ledger.Unavailable(
			"decoding getRequest",
			errors.New("unexpected requester type"),
		)
	}
	tokenURI, _ := out[1].(string)
	description, _ := out[2].(string)
	timestamp, ok := out[3].(*big.Int)
	if !ok {
		return nil, ledger.Unavailable(
			"decoding getRequest",
			errors.New("unexpected timestamp type"),
		)
	}
	status, _ := out[4].(uint8)
	rejectReason, _ := out[5].(string)
	// The registry returns the zero requester for unknown ids
	if requester == (common.Address{}) {
		return nil, ledger.NotFound(requestID)
	}
	return &ledger.MintRequest{
		RequestID:    new(big.Int).Set(requestID),
		Requester:    requester,
		TokenURI:     tokenURI,
		Description:  description,
		SubmittedAt:  time.Unix(timestamp.Int64(), 0),
		Status:       ledger.RequestStatus(status),
		RejectReason: rejectReason,
	}, nil
}

// GetUserRequests implements ledger.Reader.
func (c *Client) GetUserRequests(
	ctx context.Context,
	account common.Address,
) ([]*big.Int, error) {
	var out []any
	if err := c.call(ctx, &out, "getUserRequests", account); err != nil {
		return nil, err
	}
	return decodeBigIntSlice(out, "getUserRequests")
}

// GetPendingRequests implements ledger.Reader. The registry exposes the
// pending set as ids; details are fetched per id.
func (c *Client) GetPendingRequests(
	ctx context.Context,
) ([]ledger.MintRequest, error) {
	var out []any
	if err := c.call(ctx, &out, "getPendingRequests"); err != nil {
		return nil, err
	}
	ids, err := decodeBigIntSlice(out, "getPendingRequests")
	if err != nil {
		return nil, err
	}
	pending := make([]ledger.MintRequest, 0, len(ids))
	for _, id := range ids {
		req, err := c.GetRequest(ctx, id)
		if err != nil {
			if errors.Is(err, ledger.ErrRequestNotFound) {
				// Raced with an approval in the same poll window
				continue
			}
			return nil, err
		}
		pending = append(pending, *req)
	}
	return pending, nil
}

// GetBalance implements ledger.Reader.
func (c *Client) GetBalance(
	ctx context.Context,
	account common.Address,
) (uint64, error) {
	var out []any
	if err := c.call(ctx, &out, "balanceOf", account); err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, ledger.Unavailable(
			"decoding balanceOf",
			fmt.Errorf("unexpected result arity %d", len(out)),
		)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return 0, ledger.Unavailable(
			"decoding balanceOf",
			errors.New("unexpected balance type"),
		)
	}
	return balance.Uint64(), nil
}

// GetOwnedTokens implements ledger.Reader using ERC-721 enumeration.
func (c *Client) GetOwnedTokens(
	ctx context.Context,
	account common.Address,
) ([]ledger.OwnedToken, error) {
	balance, err := c.GetBalance(ctx, account)
	if err != nil {
		return nil, err
	}
	tokens := make([]ledger.OwnedToken, 0, balance)
	for i := uint64(0); i < balance; i++ {
		var out []any
		err := c.call(
			ctx,
			&out,
			"tokenOfOwnerByIndex",
			account,
			new(big.Int).SetUint64(i),
		)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, ledger.Unavailable(
				"decoding tokenOfOwnerByIndex",
				fmt.Errorf("unexpected result arity %d", len(out)),
			)
		}
		tokenID, ok := out[0].(*big.Int)
		if !ok {
			return nil, ledger.Unavailable(
				"decoding tokenOfOwnerByIndex",
				errors.New("unexpected token id type"),
			)
		}
		var uriOut []any
		if err := c.call(ctx, &uriOut, "tokenURI", tokenID); err != nil {
			return nil, err
		}
		tokenURI := ""
		if len(uriOut) == 1 {
			tokenURI, _ = uriOut[0].(string)
		}
		tokens = append(tokens, ledger.OwnedToken{
			TokenID:  tokenID,
			TokenURI: tokenURI,
		})
	}
	return tokens, nil
}

// ContractOwner implements ledger.Reader.
func (c *Client) ContractOwner(
	ctx context.Context,
) (common.Address, error) {
	var out []any
	if err := c.call(ctx, &out, "owner"); err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, ledger.Unavailable(
			"decoding owner",
			fmt.Errorf("unexpected result arity %d", len(out)),
		)
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, ledger.Unavailable(
			"decoding owner",
			errors.New("unexpected owner type"),
		)
	}
	return owner, nil
}

// SubmitRequest implements ledger.Writer. The returned request id is
// taken from the MintRequestSubmitted event in the mined receipt, never
// guessed locally.
func (c *Client) SubmitRequest(
	ctx context.Context,
	tokenURI string,
	description string,
) (*big.Int, error) {
	receipt, err := c.transact(
		ctx,
		"submitMintRequest",
		tokenURI,
		description,
	)
	if err != nil {
		return nil, err
	}
	submittedID := c.abi.Events["MintRequestSubmitted"].ID
	for _, txLog := range receipt.Logs {
		if txLog.Address != c.address || len(txLog.Topics) < 2 {
			continue
		}
		if txLog.Topics[0] != submittedID {
			continue
		}
		return new(big.Int).SetBytes(txLog.Topics[1].Bytes()), nil
	}
	return nil, errors.New(
		"transaction mined without MintRequestSubmitted event",
	)
}

// Approve implements ledger.Writer.
func (c *Client) Approve(ctx context.Context, requestID *big.Int) error {
	_, err := c.transact(ctx, "approveMintRequest", requestID)
	return err
}

// RejectRequest implements ledger.Writer.
func (c *Client) RejectRequest(
	ctx context.Context,
	requestID *big.Int,
	reason string,
) error {
	_, err := c.transact(ctx, "rejectMintRequest", requestID, reason)
	return err
}

func (c *Client) transact(
	ctx context.Context,
	method string,
	params ...any,
) (*types.Receipt, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	opts := *c.signer
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, ledger.Unavailable("sending "+method, err)
	}
	c.logger.Debug(
		"submitted transaction",
		"component", "ledger",
		"method", method,
		"tx_hash", tx.Hash().Hex(),
	)
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, ledger.Unavailable("waiting for "+method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf(
			"%s transaction reverted: %s",
			method,
			tx.Hash().Hex(),
		)
	}
	return receipt, nil
}

func decodeBigIntSlice(out []any, method string) ([]*big.Int, error) {
	if len(out) != 1 {
		return nil, ledger.Unavailable(
			"decoding "+method,
			fmt.Errorf("unexpected result arity %d", len(out)),
		)
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, ledger.Unavailable(
			"decoding "+method,
			errors.New("unexpected id slice type"),
		)
	}
	return ids, nil
}
