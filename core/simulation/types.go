package simulation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/erc20"
)

// TransactionParams describes one call to dry-run.
type TransactionParams struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// StateOverride fakes chain state for one address during a simulation:
// a spendable balance, contract storage slots, or both.
type StateOverride struct {
	Balance *big.Int
	Storage map[common.Hash]common.Hash
}

// Overrides maps addresses to their faked state.
type Overrides map[common.Address]StateOverride

// AssetChange is one net balance movement of the simulated sender. Pre and
// Post stay nil until EnrichBalances fills them from live reads; Diff is
// always set.
type AssetChange struct {
	Token    common.Address // zero address for the native currency
	Symbol   string
	Decimals uint8
	Pre      *big.Int
	Post     *big.Int
	Diff     *big.Int
}

// Native reports whether the change concerns the native currency.
func (a *AssetChange) Native() bool {
	return erc20.IsNative(a.Token)
}

// Result is the outcome of one simulated call.
type Result struct {
	Status  bool
	GasUsed uint64
	Changes []AssetChange
}

// JSON-RPC envelope, the shape the gateway speaks.
type jsonRPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Id      int           `json:"id"`
}

type jsonRPCResponse struct {
	Jsonrpc string      `json:"jsonrpc"`
	Id      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Gateway simulateTransaction result, decoded loosely: gateways disagree on
// exact field types, so everything passes through mapstructure with weak
// typing.
type rpcSimResult struct {
	Status       bool             `mapstructure:"status"`
	GasUsed      string           `mapstructure:"gasUsed"`
	AssetChanges []rpcAssetChange `mapstructure:"assetChanges"`
}

type rpcAssetChange struct {
	AssetInfo rpcAssetInfo `mapstructure:"assetInfo"`
	Type      string       `mapstructure:"type"`
	From      string       `mapstructure:"from"`
	To        string       `mapstructure:"to"`
	RawAmount string       `mapstructure:"rawAmount"`
}

type rpcAssetInfo struct {
	Standard        string `mapstructure:"standard"`
	Type            string `mapstructure:"type"`
	ContractAddress string `mapstructure:"contractAddress"`
	Symbol          string `mapstructure:"symbol"`
	Decimals        uint8  `mapstructure:"decimals"`
}

// HTTP Simulation API envelope. Same information, snake_case keys, one more
// nesting level.
type httpSimEnvelope struct {
	Transaction httpSimTransaction `mapstructure:"transaction"`
}

type httpSimTransaction struct {
	Status          bool                   `mapstructure:"status"`
	GasUsed         uint64                 `mapstructure:"gas_used"`
	TransactionInfo httpSimTransactionInfo `mapstructure:"transaction_info"`
}

type httpSimTransactionInfo struct {
	AssetChanges []httpAssetChange `mapstructure:"asset_changes"`
}

type httpAssetChange struct {
	TokenInfo httpTokenInfo `mapstructure:"token_info"`
	Type      string        `mapstructure:"type"`
	From      string        `mapstructure:"from"`
	To        string        `mapstructure:"to"`
	RawAmount string        `mapstructure:"raw_amount"`
}

type httpTokenInfo struct {
	Standard        string `mapstructure:"standard"`
	Type            string `mapstructure:"type"`
	ContractAddress string `mapstructure:"contract_address"`
	Symbol          string `mapstructure:"symbol"`
	Decimals        uint8  `mapstructure:"decimals"`
}

// transfer is the normalized form both wire shapes reduce to before
// aggregation.
type transfer struct {
	token    common.Address
	symbol   string
	decimals uint8
	from     common.Address
	to       common.Address
	amount   *big.Int
}

func decodeWeakly(input interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// parseAmount accepts both hex-quantity and decimal-string amounts. Hex is
// parsed leniently: traced amounts often arrive zero-padded, which strict
// quantity parsing rejects.
func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		digits := raw[2:]
		if digits == "" {
			return nil, fmt.Errorf("empty hex amount")
		}
		v, ok := new(big.Int).SetString(digits, 16)
		if !ok {
			return nil, fmt.Errorf("unparseable hex amount %q", raw)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("unparseable amount %q", raw)
	}
	return v, nil
}

func assetToken(standard, assetType, contractAddress string) common.Address {
	if strings.EqualFold(assetType, "native") || strings.EqualFold(standard, "native") {
		return common.Address{}
	}
	addr := common.HexToAddress(contractAddress)
	if erc20.IsNative(addr) {
		return common.Address{}
	}
	return addr
}

// aggregate folds raw transfers into one net change per token for the given
// account. Tokens whose movements cancel out exactly are dropped.
func aggregate(transfers []transfer, account common.Address) []AssetChange {
	totals := make(map[common.Address]*AssetChange)
	order := make([]common.Address, 0, len(transfers))

	for _, tr := range transfers {
		direction := 0
		if tr.from == account {
			direction--
		}
		if tr.to == account {
			direction++
		}
		// A self-transfer moves nothing.
		if direction == 0 {
			continue
		}

		change, ok := totals[tr.token]
		if !ok {
			change = &AssetChange{
				Token:    tr.token,
				Symbol:   tr.symbol,
				Decimals: tr.decimals,
				Diff:     new(big.Int),
			}
			totals[tr.token] = change
			order = append(order, tr.token)
		}
		if direction < 0 {
			change.Diff.Sub(change.Diff, tr.amount)
		} else {
			change.Diff.Add(change.Diff, tr.amount)
		}
	}

	changes := make([]AssetChange, 0, len(order))
	for _, token := range order {
		if totals[token].Diff.Sign() == 0 {
			continue
		}
		changes = append(changes, *totals[token])
	}
	return changes
}
