package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON    = "application/json"
	flashbotsXHeader   = "X-Flashbots-Signature"
	methodGetUserStats = "flashbots_getUserStatsV2"
	methodSendBundle   = "eth_sendBundle"
	methodCallBundle   = "eth_callBundle"
)

// Client represents a Flashbots RPC client
type Client struct {
	httpClient *http.Client
	relayURL   string
	authSigner *ecdsa.PrivateKey
	limiter    *rate.Limiter
}

// NewClient creates a new Flashbots client. authKey only identifies the
// searcher to the relay; it never holds funds. A nil limiter is unlimited.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey, limiter *rate.Limiter) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 3,
		},
		relayURL:   relayURL,
		authSigner: authKey,
		limiter:    limiter,
	}
}

// Bundle represents a Flashbots transaction bundle
type Bundle struct {
	Txs               []hexutil.Bytes // RLP-encoded transactions
	BlockNumber       uint64          // Target block number
	MinTimestamp      uint64          // Optional: Minimum timestamp for the bundle
	MaxTimestamp      uint64          // Optional: Maximum timestamp for the bundle
	RevertingTxHashes []common.Hash   // Optional: Tx hashes allowed to revert
}

// BundleSimulation represents the result of simulating a bundle
type BundleSimulation struct {
	Success          bool
	Error            string
	GasUsed          uint64
	CoinbaseDiff     *big.Int
	StateBlockNumber uint64
}

type sendBundleParams struct {
	Txs               []hexutil.Bytes `json:"txs"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	MinTimestamp      uint64          `json:"minTimestamp,omitempty"`
	MaxTimestamp      uint64          `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []common.Hash   `json:"revertingTxHashes,omitempty"`
}

type callBundleParams struct {
	Txs              []hexutil.Bytes `json:"txs"`
	BlockNumber      hexutil.Uint64  `json:"blockNumber"`
	StateBlockNumber string          `json:"stateBlockNumber"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// SendBundle sends a bundle to Flashbots and returns its bundle hash
func (c *Client) SendBundle(ctx context.Context, bundle *Bundle) (common.Hash, error) {
	params := sendBundleParams{
		Txs:               bundle.Txs,
		BlockNumber:       hexutil.Uint64(bundle.BlockNumber),
		MinTimestamp:      bundle.MinTimestamp,
		MaxTimestamp:      bundle.MaxTimestamp,
		RevertingTxHashes: bundle.RevertingTxHashes,
	}

	var result struct {
		BundleHash common.Hash `json:"bundleHash"`
	}
	if err := c.call(ctx, methodSendBundle, params, &result); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send bundle: %w", err)
	}
	return result.BundleHash, nil
}

// SimulateBundle simulates a bundle on top of the parent of its target block
func (c *Client) SimulateBundle(ctx context.Context, bundle *Bundle) (*BundleSimulation, error) {
	if bundle.BlockNumber == 0 {
		return nil, fmt.Errorf("bundle has no target block")
	}
	params := callBundleParams{
		Txs:              bundle.Txs,
		BlockNumber:      hexutil.Uint64(bundle.BlockNumber),
		StateBlockNumber: hexutil.EncodeUint64(bundle.BlockNumber - 1),
	}

	var result struct {
		CoinbaseDiff     string `json:"coinbaseDiff"`
		TotalGasUsed     uint64 `json:"totalGasUsed"`
		StateBlockNumber uint64 `json:"stateBlockNumber"`
		Results          []struct {
			Error  string `json:"error"`
			Revert string `json:"revert"`
		} `json:"results"`
	}
	if err := c.call(ctx, methodCallBundle, params, &result); err != nil {
		return nil, fmt.Errorf("failed to simulate bundle: %w", err)
	}

	sim := &BundleSimulation{
		Success:          true,
		GasUsed:          result.TotalGasUsed,
		StateBlockNumber: result.StateBlockNumber,
		CoinbaseDiff:     new(big.Int),
	}
	if diff, ok := new(big.Int).SetString(result.CoinbaseDiff, 10); ok {
		sim.CoinbaseDiff = diff
	}
	for _, r := range result.Results {
		if r.Error != "" || r.Revert != "" {
			sim.Success = false
			sim.Error = r.Error + r.Revert
			break
		}
	}
	return sim, nil
}

// GetStats retrieves searcher reputation stats from Flashbots
func (c *Client) GetStats(ctx context.Context, blockNumber uint64) (map[string]interface{}, error) {
	params := map[string]string{"blockNumber": hexutil.EncodeUint64(blockNumber)}

	var result map[string]interface{}
	if err := c.call(ctx, methodGetUserStats, params, &result); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return result, nil
}

// call posts one signed JSON-RPC request to the relay
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	header, err := c.signature(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flashbots request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// signature builds the X-Flashbots-Signature header value for payload
func (c *Client) signature(payload []byte) (string, error) {
	sig, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		c.authSigner,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}

	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(c.authSigner.PublicKey).Hex(),
		hexutil.Encode(sig),
	), nil
}
