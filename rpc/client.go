package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"escrowchain/core/types"
	"escrowchain/crypto"
)

// Client talks to an escrowd RPC endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the node at baseURL (e.g. http://127.0.0.1:8080).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SubmitTransaction posts a signed transaction and waits for its receipt.
func (c *Client) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*ReceiptView, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	var receipt ReceiptView
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", bytes.NewReader(payload), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) Account(ctx context.Context, addr crypto.Address) (*AccountView, error) {
	var view AccountView
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+addr.String(), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) Escrow(ctx context.Context, addr crypto.Address) (*EscrowView, error) {
	var view EscrowView
	if err := c.do(ctx, http.MethodGet, "/v1/escrows/"+addr.String(), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) Job(ctx context.Context, escrowAddr, authority crypto.Address) (*JobView, error) {
	var view JobView
	path := "/v1/escrows/" + escrowAddr.String() + "/jobs/" + authority.String()
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// DeriveEscrow asks the node for the escrow and custody addresses of mint.
func (c *Client) DeriveEscrow(ctx context.Context, mint crypto.Address) (*DerivedEscrowView, error) {
	var view DerivedEscrowView
	query := url.Values{"mint": []string{mint.String()}}
	if err := c.do(ctx, http.MethodGet, "/v1/derive/escrow?"+query.Encode(), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
		if err := json.Unmarshal(raw, &apiErr.ErrorView); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
