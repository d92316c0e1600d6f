// Package chain talks to a Neo N3 node over JSON-RPC. The vault uses it to
// pay out withdrawals from the node wallet and to check node health.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GAS native contract hash on Neo N3.
const gasTokenHash = "0xd2a4cff31913016155e38e474a2c06d08be276cf"

// Client is a minimal Neo N3 RPC client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	networkID  uint32
}

// Config holds client configuration.
type Config struct {
	RPCURL    string
	NetworkID uint32 // MainNet: 860833102, TestNet: 894710606
	Timeout   time.Duration
}

// NewClient creates a new Neo N3 client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		networkID: cfg.NetworkID,
	}, nil
}

// Call makes an RPC call to the Neo N3 node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// GetBlockCount returns the current block height.
func (c *Client) GetBlockCount(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SendGas transfers GAS from the node wallet to the recipient address.
// amount is in GAS minor units (1e-8 GAS). It returns the hash of the
// submitted transaction.
func (c *Client) SendGas(ctx context.Context, to string, amount int64) (string, error) {
	if to == "" {
		return "", fmt.Errorf("recipient address required")
	}
	if amount <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}

	result, err := c.Call(ctx, "sendtoaddress", []interface{}{gasTokenHash, to, amount})
	if err != nil {
		return "", err
	}

	var tx struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(result, &tx); err != nil {
		return "", fmt.Errorf("unmarshal send result: %w", err)
	}
	if tx.Hash == "" {
		return "", fmt.Errorf("node accepted transfer but returned no transaction hash")
	}
	return tx.Hash, nil
}
