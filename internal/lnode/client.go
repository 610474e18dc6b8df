// Package lnode provides the JSON-RPC client for the local Lightning node
// daemon, plus its websocket transaction feed.
package lnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/photon-wallet/photon/internal/swap"
	"github.com/photon-wallet/photon/pkg/logging"
)

// Client talks JSON-RPC 2.0 to the local node. It implements swap.Node.
type Client struct {
	rpcURL     string
	wsURL      string
	httpClient *http.Client
	requestID  atomic.Uint64
	log        *logging.Logger

	mu        sync.Mutex
	feedStop  chan struct{}
	invoiceCb func(paymentHash string, amountSats uint64)
}

// New creates a node client.
func New(rpcURL, wsURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		wsURL:  wsURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logging.GetDefault().Component("lnode"),
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC request.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("node request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return fmt.Errorf("node response read failed: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("node response decode failed: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// CreateInvoice implements swap.Node.
func (c *Client) CreateInvoice(ctx context.Context, amountSats uint64, description string, expirySec int64, preimageHex string, privateHints bool) (string, error) {
	var result struct {
		Invoice string `json:"invoice"`
	}
	err := c.call(ctx, "invoice_create", map[string]interface{}{
		"amount_sats":   amountSats,
		"description":   description,
		"expiry_sec":    expirySec,
		"preimage":      preimageHex,
		"private_hints": privateHints,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Invoice, nil
}

// wireTx mirrors the node's transaction encoding: one amount plus the list
// of destination addresses, in output order.
type wireTx struct {
	Txid          string   `json:"txid"`
	DestAddresses []string `json:"dest_addresses"`
	Amounts       []uint64 `json:"amounts"`
	Height        uint32   `json:"height"`
	Confirmations uint32   `json:"confirmations"`
}

func (w *wireTx) toTransaction() swap.Transaction {
	tx := swap.Transaction{
		Txid:          w.Txid,
		Height:        w.Height,
		Confirmations: w.Confirmations,
	}
	for i, addr := range w.DestAddresses {
		var amount uint64
		if i < len(w.Amounts) {
			amount = w.Amounts[i]
		}
		tx.Outputs = append(tx.Outputs, swap.TxOutput{
			Address: addr,
			Index:   int64(i),
			Amount:  amount,
		})
	}
	return tx
}

// ListTransactions implements swap.Node.
func (c *Client) ListTransactions(ctx context.Context, fromHeight, toHeight uint32) ([]swap.Transaction, error) {
	var result []wireTx
	err := c.call(ctx, "onchain_listtransactions", map[string]interface{}{
		"from_height": fromHeight,
		"to_height":   toHeight,
	}, &result)
	if err != nil {
		return nil, err
	}

	txs := make([]swap.Transaction, 0, len(result))
	for i := range result {
		txs = append(txs, result[i].toTransaction())
	}
	return txs, nil
}

// ReceivableSats implements swap.Node.
func (c *Client) ReceivableSats(ctx context.Context) (uint64, error) {
	var result struct {
		ReceivableSats uint64 `json:"receivable_sats"`
	}
	if err := c.call(ctx, "channels_receivable", nil, &result); err != nil {
		return 0, err
	}
	return result.ReceivableSats, nil
}

// BlockHeight returns the node's current chain tip height.
func (c *Client) BlockHeight(ctx context.Context) (uint32, error) {
	var result struct {
		Height uint32 `json:"height"`
	}
	if err := c.call(ctx, "onchain_height", nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

// ChannelCapacitySats implements swap.Node.
func (c *Client) ChannelCapacitySats(ctx context.Context) (uint64, error) {
	var result struct {
		CapacitySats uint64 `json:"capacity_sats"`
	}
	if err := c.call(ctx, "channels_capacity", nil, &result); err != nil {
		return 0, err
	}
	return result.CapacitySats, nil
}

// OnInvoicePaid registers a callback for invoice settlement notifications
// arriving on the node feed. Must be called before SubscribeTransactions.
func (c *Client) OnInvoicePaid(cb func(paymentHash string, amountSats uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invoiceCb = cb
}

// SubscribeTransactions implements swap.Node. It maintains a websocket to
// the node's event feed and invokes cb for every new on-chain transaction,
// reconnecting with a flat backoff on failure.
func (c *Client) SubscribeTransactions(cb func(swap.Transaction)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.feedStop != nil {
		return fmt.Errorf("transaction feed already running")
	}
	stop := make(chan struct{})
	c.feedStop = stop

	go c.runFeed(stop, cb)
	return nil
}

// Close stops the transaction feed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.feedStop != nil {
		close(c.feedStop)
		c.feedStop = nil
	}
}

func (c *Client) runFeed(stop chan struct{}, cb func(swap.Transaction)) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := c.readFeed(stop, cb); err != nil {
			c.log.Warn("Transaction feed disconnected", "error", err)
		}

		select {
		case <-stop:
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (c *Client) readFeed(stop chan struct{}, cb func(swap.Transaction)) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial transaction feed: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when asked to stop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-stop:
			conn.Close()
		case <-done:
		}
	}()

	c.log.Info("Node feed connected", "url", c.wsURL)

	c.mu.Lock()
	invoiceCb := c.invoiceCb
	c.mu.Unlock()

	for {
		var msg wireFeedMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		switch {
		case msg.Transaction != nil:
			cb(msg.Transaction.toTransaction())
		case msg.Type == "invoice_paid" && invoiceCb != nil:
			invoiceCb(msg.PaymentHash, msg.AmountSats)
		}
	}
}

// wireFeedMsg is one message on the node's websocket feed: either an
// on-chain transaction or an invoice settlement.
type wireFeedMsg struct {
	Type        string  `json:"type"`
	Transaction *wireTx `json:"transaction,omitempty"`
	PaymentHash string  `json:"payment_hash,omitempty"`
	AmountSats  uint64  `json:"amount_sats,omitempty"`
}

var _ swap.Node = (*Client)(nil)
