// Package signer holds the signing collaborator used by the funding flow:
// EIP-712 typed-data signing for permits, plain message signing, and
// transaction submission. The pipeline only depends on the Signer interface;
// PrivateKeySigner is the local-key implementation used by tools and tests.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/eip1559"
)

// ErrNoBackend is returned when a signer without an attached backend is asked
// to estimate or submit a transaction.
var ErrNoBackend = errors.New("signer: no backend attached")

// Signer defines the interface for an EIP-712 capable signing entity that can
// also submit transactions.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	SignMessage(message []byte) ([]byte, error)
	SignTypedData(domain *apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage, primaryType string) ([]byte, error)
	SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error)
}

// Backend is the subset of an RPC client a PrivateKeySigner needs to build
// and submit transactions. *ethclient.Client satisfies it.
type Backend interface {
	eip1559.FeeReader
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
}

// PrivateKeySigner implements Signer using a local private key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	backend Backend
}

// NewPrivateKeySigner creates a new signer from a hex-encoded private key.
func NewPrivateKeySigner(hexKey string, chainID int64) (*PrivateKeySigner, error) {
	if len(hexKey) > 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

// WithBackend attaches an RPC backend for gas estimation and submission.
func (s *PrivateKeySigner) WithBackend(backend Backend) *PrivateKeySigner {
	s.backend = backend
	return s
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignMessage signs a message with the EIP-191 prefix.
func (s *PrivateKeySigner) SignMessage(message []byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, errors.New("message is required")
	}
	hash := accounts.TextHash(message)
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return sig, nil
}

// SignTypedData signs EIP-712 typed data and normalizes V to 27/28.
func (s *PrivateKeySigner) SignTypedData(domain *apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage, primaryType string) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       types,
		PrimaryType: primaryType,
		Domain:      *domain,
		Message:     message,
	}

	sighash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	signature, err := crypto.Sign(sighash, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}

	if signature[64] < 27 {
		signature[64] += 27
	}

	return signature, nil
}

// SendTransaction builds an EIP-1559 transaction, signs it, and submits it.
func (s *PrivateKeySigner) SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if s.backend == nil {
		return common.Hash{}, ErrNoBackend
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}

	maxFee, tip, err := eip1559.SuggestFee(ctx, s.backend)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest fee: %w", err)
	}

	if value == nil {
		value = big.NewInt(0)
	}
	gasLimit, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	// 20% headroom over the estimate; simulation-time state can differ from
	// inclusion-time state.
	gasLimit = gasLimit + gasLimit/5

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash(), nil
}
