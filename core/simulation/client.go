// Package simulation dry-runs transactions with asset-change tracing and
// distills the result into per-token balance diffs for one account.
//
// Two transports are supported: the Tenderly Gateway JSON-RPC endpoint
// (tenderly_simulateTransaction) and the HTTP Simulation API. The HTTP API is
// preferred when account, project, and access key are all configured because
// it honors storage overrides reliably; the gateway is the zero-setup path.
package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
)

// Config locates the simulation backend.
type Config struct {
	// GatewayURL is a full Tenderly Gateway RPC URL, or empty to use the
	// HTTP Simulation API exclusively.
	GatewayURL string

	// Account, Project, and AccessKey enable the HTTP Simulation API when
	// all three are set.
	Account   string
	Project   string
	AccessKey string

	// APIBaseURL overrides the HTTP Simulation API host. Defaults to the
	// hosted service.
	APIBaseURL string

	// NetworkID is the chain id simulations run against.
	NetworkID int64
}

const defaultAPIBaseURL = "https://api.tenderly.co"

// Client talks to the simulation backend.
type Client struct {
	httpClient *resty.Client
	logger     logger.Logger
	cfg        Config
}

// NewClient builds a client from explicit configuration.
func NewClient(cfg Config, log logger.Logger) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(30 * time.Second)
	httpClient.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: httpClient,
		logger:     logger.EnsureLogger(log),
		cfg:        cfg,
	}
}

// NewClientFromEnv builds a client from the canonical environment variables:
// TENDERLY_API_KEY (full gateway URL or bare key), and optionally
// TENDERLY_ACCOUNT, TENDERLY_PROJECT, TENDERLY_ACCESS_KEY for the HTTP API.
func NewClientFromEnv(networkID int64, log logger.Logger) *Client {
	cfg := Config{NetworkID: networkID}

	if env := os.Getenv("TENDERLY_API_KEY"); env != "" {
		if strings.HasPrefix(env, "https://") {
			cfg.GatewayURL = env
		} else {
			cfg.GatewayURL = "https://mainnet.gateway.tenderly.co/" + env
		}
	}
	cfg.Account = os.Getenv("TENDERLY_ACCOUNT")
	cfg.Project = os.Getenv("TENDERLY_PROJECT")
	cfg.AccessKey = os.Getenv("TENDERLY_ACCESS_KEY")

	return NewClient(cfg, log)
}

func (c *Client) useHTTP() bool {
	return c.cfg.Account != "" && c.cfg.Project != "" && c.cfg.AccessKey != ""
}

// SimulateTransaction dry-runs the call with asset-change tracing and returns
// the sender's net balance movements. Overrides fake state for the run; when
// the backend rejects them the call is retried once without storage
// overrides, since a wrong balances-mapping slot guess must not sink the
// whole simulation.
func (c *Client) SimulateTransaction(ctx context.Context, tx TransactionParams, overrides Overrides) (*Result, error) {
	if c.useHTTP() {
		return c.simulateHTTP(ctx, tx, overrides)
	}
	return c.simulateRPC(ctx, tx, overrides)
}

func (c *Client) simulateHTTP(ctx context.Context, tx TransactionParams, overrides Overrides) (*Result, error) {
	base := c.cfg.APIBaseURL
	if base == "" {
		base = defaultAPIBaseURL
	}
	simURL := fmt.Sprintf("%s/api/v1/account/%s/project/%s/simulate", base, c.cfg.Account, c.cfg.Project)

	body := map[string]interface{}{
		"network_id":      fmt.Sprintf("%d", c.cfg.NetworkID),
		"from":            strings.ToLower(tx.From.Hex()),
		"to":              strings.ToLower(tx.To.Hex()),
		"gas":             gasOrDefault(tx.Gas),
		"gas_price":       0,
		"value":           valueOrZero(tx.Value).String(),
		"input":           hexutil.Encode(tx.Data),
		"simulation_type": "quick",
	}
	if len(overrides) > 0 {
		body["state_objects"] = encodeStateObjects(overrides)
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Access-Key", c.cfg.AccessKey).
		SetBody(body).
		Post(simURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SimulateCallError, err)
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("%s: %w", ParseSimulationError, err)
	}

	// The HTTP API reports errors inside a 200 body. A rejected storage
	// override gets one retry without storage; other errors surface as-is.
	if errObj, ok := envelope["error"].(map[string]interface{}); ok {
		msg, _ := errObj["message"].(string)
		slug, _ := errObj["slug"].(string)
		if slug != "invalid_state_storage" {
			return nil, fmt.Errorf("%s: %s (%s)", SimulateCallError, msg, slug)
		}

		c.logger.Info("simulation backend rejected storage overrides, retrying without them")
		body["state_objects"] = encodeStateObjects(stripStorage(overrides))
		retryResp, retryErr := c.httpClient.R().
			SetContext(ctx).
			SetHeader("X-Access-Key", c.cfg.AccessKey).
			SetBody(body).
			Post(simURL)
		if retryErr != nil {
			return nil, fmt.Errorf("%s: %w", SimulateCallError, retryErr)
		}
		envelope = map[string]interface{}{}
		if err := json.Unmarshal(retryResp.Body(), &envelope); err != nil {
			return nil, fmt.Errorf("%s: %w", ParseSimulationError, err)
		}
		if retryErrObj, ok := envelope["error"].(map[string]interface{}); ok {
			retryMsg, _ := retryErrObj["message"].(string)
			retrySlug, _ := retryErrObj["slug"].(string)
			return nil, fmt.Errorf("%s: %s (%s)", SimulateCallError, retryMsg, retrySlug)
		}
	}

	return parseHTTPResult(envelope, tx.From)
}

func (c *Client) simulateRPC(ctx context.Context, tx TransactionParams, overrides Overrides) (*Result, error) {
	if c.cfg.GatewayURL == "" {
		return nil, fmt.Errorf("%s", MissingGatewayURLError)
	}

	txObject := map[string]interface{}{
		"from":     strings.ToLower(tx.From.Hex()),
		"to":       strings.ToLower(tx.To.Hex()),
		"gas":      hexutil.EncodeUint64(gasOrDefault(tx.Gas)),
		"gasPrice": "0x0",
		"value":    hexutil.EncodeBig(valueOrZero(tx.Value)),
		"data":     hexutil.Encode(tx.Data),
	}

	params := []interface{}{txObject, "latest"}
	if len(overrides) > 0 {
		params = append(params, encodeRPCOverrides(overrides))
	}

	response, err := c.postRPC(ctx, "tenderly_simulateTransaction", params)
	if err != nil && len(overrides) > 0 {
		// Some gateways reject the overrides param outright.
		c.logger.Info("simulation gateway rejected overrides, retrying without them", "err", err)
		response, err = c.postRPC(ctx, "tenderly_simulateTransaction", []interface{}{txObject, "latest"})
	}
	if err != nil {
		return nil, err
	}

	return parseRPCResult(response.Result, tx.From)
}

func (c *Client) postRPC(ctx context.Context, method string, params []interface{}) (*jsonRPCResponse, error) {
	request := jsonRPCRequest{Jsonrpc: "2.0", Method: method, Params: params, Id: 1}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		Post(c.cfg.GatewayURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SimulateCallError, err)
	}

	var response jsonRPCResponse
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("%s: %w", ParseSimulationError, err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%s: rpc error %d: %s", SimulateCallError, response.Error.Code, response.Error.Message)
	}
	return &response, nil
}

// GetLatestBlockNumber returns the gateway's view of the chain head as a hex
// quantity.
func (c *Client) GetLatestBlockNumber(ctx context.Context) (string, error) {
	response, err := c.postRPC(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return "", err
	}
	blockHex, ok := response.Result.(string)
	if !ok {
		return "", fmt.Errorf("%s: block number has type %T", ParseSimulationError, response.Result)
	}
	return blockHex, nil
}

// GetLatestBaseFee reads baseFeePerGas from the latest block header, for
// constructing fee fields that survive base-fee checks.
func (c *Client) GetLatestBaseFee(ctx context.Context) (*big.Int, error) {
	response, err := c.postRPC(ctx, "eth_getBlockByNumber", []interface{}{"latest", false})
	if err != nil {
		return nil, err
	}
	block, ok := response.Result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: block has type %T", ParseSimulationError, response.Result)
	}
	baseFeeHex, ok := block["baseFeePerGas"].(string)
	if !ok {
		// Pre-1559 chain.
		return big.NewInt(0), nil
	}
	return hexutil.DecodeBig(baseFeeHex)
}

func parseRPCResult(raw interface{}, account common.Address) (*Result, error) {
	var decoded rpcSimResult
	if err := decodeWeakly(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%s: %w", ParseSimulationError, err)
	}

	result := &Result{Status: decoded.Status}
	if decoded.GasUsed != "" {
		gasUsed, err := hexutil.DecodeUint64(decoded.GasUsed)
		if err == nil {
			result.GasUsed = gasUsed
		}
	}

	transfers := make([]transfer, 0, len(decoded.AssetChanges))
	for _, ac := range decoded.AssetChanges {
		amount, err := parseAmount(ac.RawAmount)
		if err != nil {
			return nil, fmt.Errorf("%s: asset change amount: %w", ParseSimulationError, err)
		}
		transfers = append(transfers, transfer{
			token:    assetToken(ac.AssetInfo.Standard, ac.AssetInfo.Type, ac.AssetInfo.ContractAddress),
			symbol:   ac.AssetInfo.Symbol,
			decimals: ac.AssetInfo.Decimals,
			from:     common.HexToAddress(ac.From),
			to:       common.HexToAddress(ac.To),
			amount:   amount,
		})
	}
	result.Changes = aggregate(transfers, account)
	return result, nil
}

func parseHTTPResult(envelope map[string]interface{}, account common.Address) (*Result, error) {
	var decoded httpSimEnvelope
	if err := decodeWeakly(envelope, &decoded); err != nil {
		return nil, fmt.Errorf("%s: %w", ParseSimulationError, err)
	}

	result := &Result{
		Status:  decoded.Transaction.Status,
		GasUsed: decoded.Transaction.GasUsed,
	}

	transfers := make([]transfer, 0, len(decoded.Transaction.TransactionInfo.AssetChanges))
	for _, ac := range decoded.Transaction.TransactionInfo.AssetChanges {
		amount, err := parseAmount(ac.RawAmount)
		if err != nil {
			return nil, fmt.Errorf("%s: asset change amount: %w", ParseSimulationError, err)
		}
		transfers = append(transfers, transfer{
			token:    assetToken(ac.TokenInfo.Standard, ac.TokenInfo.Type, ac.TokenInfo.ContractAddress),
			symbol:   ac.TokenInfo.Symbol,
			decimals: ac.TokenInfo.Decimals,
			from:     common.HexToAddress(ac.From),
			to:       common.HexToAddress(ac.To),
			amount:   amount,
		})
	}
	result.Changes = aggregate(transfers, account)
	return result, nil
}

func gasOrDefault(gas uint64) uint64 {
	if gas == 0 {
		return 8_000_000
	}
	return gas
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
