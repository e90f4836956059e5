// Package erc20 provides the token read surface the pipeline needs: metadata
// (name, symbol, decimals, permit support), balances, allowances, and permit
// nonces. Metadata is cached; balance-class reads never are.
package erc20

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"nonces","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// domainSeparatorSelector is DOMAIN_SEPARATOR(). A successful 32-byte answer
// is treated as proof of EIP-2612 permit support.
var domainSeparatorSelector = []byte{0x36, 0x44, 0xe5, 0x15}

// NativeSentinel is the conventional stand-in address for the chain's native
// currency in places that expect a token address.
var NativeSentinel = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// IsNative reports whether the address denotes the native currency rather
// than a token contract: either the zero address or the sentinel.
func IsNative(token common.Address) bool {
	return token == (common.Address{}) || token == NativeSentinel
}

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// Metadata describes one token. SupportsPermit reflects the domain-separator
// probe at fetch time.
type Metadata struct {
	Address        common.Address `json:"address"`
	Name           string         `json:"name"`
	Symbol         string         `json:"symbol"`
	Decimals       uint8          `json:"decimals"`
	SupportsPermit bool           `json:"supportsPermit"`
}

// Caller is the single-read subset of an RPC client. *ethclient.Client
// satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BatchCaller executes several eth_call reads in one round trip.
// *rpc.Client satisfies it.
type BatchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// Service reads token state with a metadata cache in front. Balance-class
// reads (balanceOf, allowance, nonces) always hit the chain.
type Service struct {
	caller       Caller
	batch        BatchCaller
	cache        *bigcache.BigCache
	logger       logger.Logger
	nativeSymbol string
}

// NewService builds a Service. batch may be nil, in which case metadata reads
// fall back to sequential calls.
func NewService(caller Caller, batch BatchCaller, log logger.Logger) (*Service, error) {
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(10*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("init metadata cache: %w", err)
	}
	return &Service{
		caller:       caller,
		batch:        batch,
		cache:        cache,
		logger:       logger.EnsureLogger(log),
		nativeSymbol: "ETH",
	}, nil
}

// WithNativeSymbol overrides the symbol reported for the native currency.
func (s *Service) WithNativeSymbol(symbol string) *Service {
	if symbol != "" {
		s.nativeSymbol = symbol
	}
	return s
}

// NativeMetadata describes the chain's native currency in token terms.
func (s *Service) NativeMetadata() *Metadata {
	return &Metadata{Symbol: s.nativeSymbol, Name: s.nativeSymbol, Decimals: 18}
}

func cacheKey(token common.Address) string {
	return fmt.Sprintf("erc20:%s", strings.ToLower(token.Hex()))
}

// Metadata returns cached token metadata, fetching and probing on a miss.
func (s *Service) Metadata(ctx context.Context, token common.Address) (*Metadata, error) {
	if data, err := s.cache.Get(cacheKey(token)); err == nil {
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err == nil {
			return &meta, nil
		}
	}

	meta, err := s.fetchMetadata(ctx, token)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(meta); err == nil {
		// Cache failures only cost a refetch.
		s.cache.Set(cacheKey(token), data)
	}
	return meta, nil
}

func (s *Service) fetchMetadata(ctx context.Context, token common.Address) (*Metadata, error) {
	nameData, _ := erc20ABI.Pack("name")
	symbolData, _ := erc20ABI.Pack("symbol")
	decimalsData, _ := erc20ABI.Pack("decimals")

	var rawName, rawSymbol, rawDecimals []byte
	if s.batch != nil {
		results, err := s.batchCalls(ctx, token, [][]byte{nameData, symbolData, decimalsData})
		if err != nil {
			return nil, fmt.Errorf("batch metadata read for %s: %w", token.Hex(), err)
		}
		rawName, rawSymbol, rawDecimals = results[0], results[1], results[2]
	} else {
		var err error
		if rawName, err = s.call(ctx, token, nameData); err != nil {
			return nil, fmt.Errorf("read name of %s: %w", token.Hex(), err)
		}
		if rawSymbol, err = s.call(ctx, token, symbolData); err != nil {
			return nil, fmt.Errorf("read symbol of %s: %w", token.Hex(), err)
		}
		if rawDecimals, err = s.call(ctx, token, decimalsData); err != nil {
			return nil, fmt.Errorf("read decimals of %s: %w", token.Hex(), err)
		}
	}

	meta := &Metadata{
		Address: token,
		Name:    decodeString(rawName),
		Symbol:  decodeString(rawSymbol),
	}
	if len(rawDecimals) >= 32 {
		meta.Decimals = uint8(new(big.Int).SetBytes(rawDecimals[:32]).Uint64())
	}

	supports, err := s.SupportsPermit(ctx, token)
	if err == nil {
		meta.SupportsPermit = supports
	}

	s.logger.Debug("fetched token metadata",
		"token", token.Hex(),
		"symbol", meta.Symbol,
		"decimals", meta.Decimals,
		"permit", meta.SupportsPermit)
	return meta, nil
}

func (s *Service) batchCalls(ctx context.Context, token common.Address, payloads [][]byte) ([][]byte, error) {
	elems := make([]rpc.BatchElem, len(payloads))
	results := make([]string, len(payloads))
	for i, data := range payloads {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   token.Hex(),
					"data": hexutil.Encode(data),
				},
				"latest",
			},
			Result: &results[i],
		}
	}
	if err := s.batch.BatchCallContext(ctx, elems); err != nil {
		return nil, err
	}

	out := make([][]byte, len(payloads))
	for i := range elems {
		if elems[i].Error != nil {
			return nil, elems[i].Error
		}
		decoded, err := hexutil.Decode(results[i])
		if err != nil {
			return nil, fmt.Errorf("batch result %d: %w", i, err)
		}
		out[i] = decoded
	}
	return out, nil
}

func (s *Service) call(ctx context.Context, token common.Address, data []byte) ([]byte, error) {
	return s.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
}

// decodeString handles both ABI-encoded strings and the bytes32 style some
// older tokens use for name/symbol.
func decodeString(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var decoded string
	if err := erc20ABI.UnpackIntoInterface(&decoded, "symbol", raw); err == nil {
		return decoded
	}
	if len(raw) >= 32 {
		return string(common.TrimRightZeroes(raw[:32]))
	}
	return ""
}

// BalanceOf reads the current token balance of owner.
func (s *Service) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	raw, err := s.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// Allowance reads the owner→spender allowance.
func (s *Service) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	raw, err := s.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("allowance %s: %w", token.Hex(), err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// Nonces reads the EIP-2612 permit nonce of owner. Tokens without permit
// support revert here; callers should probe SupportsPermit first.
func (s *Service) Nonces(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("nonces", owner)
	if err != nil {
		return nil, err
	}
	raw, err := s.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("nonces %s: %w", token.Hex(), err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// SupportsPermit probes DOMAIN_SEPARATOR(). A revert or short answer means
// the token cannot authorize spending by signature.
func (s *Service) SupportsPermit(ctx context.Context, token common.Address) (bool, error) {
	raw, err := s.call(ctx, token, domainSeparatorSelector)
	if err != nil {
		return false, nil
	}
	return len(raw) == 32, nil
}

// ApproveCalldata encodes approve(spender, amount) for submission.
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}
