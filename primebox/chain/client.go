package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultRequestTimeout  = 15 * time.Second
	confirmPollInterval    = 2 * time.Second
	defaultConfirmDeadline = 60 * time.Second
)

// Client talks JSON-RPC 2.0 to a single chain endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call performs one JSON-RPC request and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read rpc response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode rpc result: %w", err)
	}
	return nil
}

// SendTransaction submits an encoded transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, encoded string) (string, error) {
	var sig string
	if err := c.Call(ctx, "sendTransaction", []interface{}{encoded}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

type signatureStatus struct {
	Confirmed bool   `json:"confirmed"`
	Err       string `json:"err,omitempty"`
}

// ConfirmTransaction polls until the signature is confirmed or the
// deadline passes.
func (c *Client) ConfirmTransaction(ctx context.Context, sig string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultConfirmDeadline)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		var statuses []*signatureStatus
		if err := c.Call(ctx, "getSignatureStatuses", []interface{}{[]string{sig}}, &statuses); err == nil {
			if len(statuses) > 0 && statuses[0] != nil {
				if statuses[0].Err != "" {
					return fmt.Errorf("transaction %s failed: %s", sig, statuses[0].Err)
				}
				if statuses[0].Confirmed {
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation of %s timed out: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// AccountInfo is the decoded state of an on-chain account.
type AccountInfo struct {
	Owner    string
	Lamports uint64
	Data     []byte
}

type rawAccountInfo struct {
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     string `json:"data"`
}

// GetAccountInfo returns nil when the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var result struct {
		Value *rawAccountInfo `json:"value"`
	}
	if err := c.Call(ctx, "getAccountInfo", []interface{}{address}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(result.Value.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode account data: %w", err)
	}
	return &AccountInfo{
		Owner:    result.Value.Owner,
		Lamports: result.Value.Lamports,
		Data:     data,
	}, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction building.
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.Call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

type ownedAsset struct {
	Grouping []struct {
		GroupKey   string `json:"group_key"`
		GroupValue string `json:"group_value"`
	} `json:"grouping"`
}

// OwnsAssetInCollection reports whether the wallet holds any asset
// grouped under the given collection.
func (c *Client) OwnsAssetInCollection(ctx context.Context, wallet, collection string) (bool, error) {
	var result struct {
		Items []ownedAsset `json:"items"`
	}
	params := []interface{}{map[string]interface{}{"ownerAddress": wallet}}
	if err := c.Call(ctx, "getAssetsByOwner", params, &result); err != nil {
		return false, err
	}
	for _, item := range result.Items {
		for _, g := range item.Grouping {
			if g.GroupKey == "collection" && g.GroupValue == collection {
				return true, nil
			}
		}
	}
	return false, nil
}
