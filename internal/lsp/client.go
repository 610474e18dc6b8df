// Package lsp provides the HTTP client for the liquidity service provider.
package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/photon-wallet/photon/internal/swap"
)

// Client talks JSON over HTTP to the LSP. It implements swap.Lsp.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates an LSP client for the given base URL.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// get performs a GET request and decodes the JSON response into result.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

// post performs a POST request with a JSON body.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lsp request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("lsp response read failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &httpError{status: resp.StatusCode, body: string(body)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("lsp response decode failed: %w", err)
	}
	return nil
}

// httpError carries the LSP's HTTP status for rejection classification.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("lsp returned %d: %s", e.status, e.body)
}

// RegisterSwap implements swap.Lsp.
func (c *Client) RegisterSwap(ctx context.Context, paymentHash, repayPubkey string) (*swap.SwapRegistration, error) {
	var reg swap.SwapRegistration
	err := c.post(ctx, "/v1/swap/register", map[string]string{
		"payment_hash": paymentHash,
		"repay_pubkey": repayPubkey,
	}, &reg)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// QuoteFee implements swap.Lsp.
func (c *Client) QuoteFee(ctx context.Context, amountSats uint64) (uint64, error) {
	var result struct {
		FeeSats uint64 `json:"fee_sats"`
	}
	path := "/v1/swap/fee?amount=" + url.QueryEscape(strconv.FormatUint(amountSats, 10))
	if err := c.get(ctx, path, &result); err != nil {
		return 0, err
	}
	return result.FeeSats, nil
}

// SendInvoice implements swap.Lsp. A 4xx answer is a definitive rejection;
// anything else is transient.
func (c *Client) SendInvoice(ctx context.Context, paymentHash, invoice string) error {
	err := c.post(ctx, "/v1/swap/invoice", map[string]string{
		"payment_hash": paymentHash,
		"invoice":      invoice,
	}, nil)
	if err == nil {
		return nil
	}
	if he, ok := err.(*httpError); ok && he.status >= 400 && he.status < 500 {
		return fmt.Errorf("%w: %v", swap.ErrInvoiceRejected, err)
	}
	return err
}

// RefundCsvHeight implements swap.Lsp.
func (c *Client) RefundCsvHeight(ctx context.Context) (uint32, error) {
	var result struct {
		CsvHeight uint32 `json:"csv_height"`
	}
	if err := c.get(ctx, "/v1/swap/refund-csv", &result); err != nil {
		return 0, err
	}
	return result.CsvHeight, nil
}

// SubmitRefundTx implements swap.Lsp.
func (c *Client) SubmitRefundTx(ctx context.Context, inputs []swap.RefundInput, destAddress, label string) (string, error) {
	var result struct {
		Txid string `json:"txid"`
	}
	err := c.post(ctx, "/v1/swap/refund", map[string]interface{}{
		"inputs":  inputs,
		"address": destAddress,
		"label":   label,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Txid, nil
}

var _ swap.Lsp = (*Client)(nil)
