package exchange

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

// ErrServerError is wrapped by client errors caused by an error response.
var ErrServerError = errors.New("exchange returned an error")

// Client sends single requests to an exchange server.
type Client struct {
	dial    func(ctx context.Context) (net.Conn, error)
	Timeout time.Duration
}

// NewTCPClient returns a client for a server listening on addr.
func NewTCPClient(addr string) *Client {
	var dialer net.Dialer
	return &Client{
		dial: func(ctx context.Context) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
		Timeout: 30 * time.Second,
	}
}

// NewVsockClient returns a client for a server listening on a vsock context id and port.
func NewVsockClient(contextID, port uint32) *Client {
	return &Client{
		dial: func(context.Context) (net.Conn, error) {
			return vsock.Dial(contextID, port, nil)
		},
		Timeout: 30 * time.Second,
	}
}

// closeWriter is implemented by connections that support half-close.
type closeWriter interface {
	CloseWrite() error
}

// Do sends req and decodes the reply into resp. An error-typed reply is
// returned as an error wrapping ErrServerError.
func (c *Client) Do(ctx context.Context, req, resp any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	// The server reads until EOF
	if cw, ok := conn.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			return fmt.Errorf("failed to close write side: %w", err)
		}
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("connection closed without a response")
	}

	var envelope exchangeapi.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Type == exchangeapi.MessageTypeError {
		return fmt.Errorf("%w: %s", ErrServerError, envelope.Message)
	}

	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ping checks that the server is up.
func (c *Client) Ping(ctx context.Context) (*exchangeapi.PingResponse, error) {
	var resp exchangeapi.PingResponse
	if err := c.Do(ctx, exchangeapi.Envelope{Type: exchangeapi.MessageTypePing}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitBid places bid on side of marketID. A rejected bid is reported in the
// response, not as an error.
func (c *Client) SubmitBid(ctx context.Context, marketID string, side core.Side, bid core.Bid) (*exchangeapi.SubmitBidResponse, error) {
	req := exchangeapi.SubmitBidRequest{
		Type:     exchangeapi.MessageTypeSubmitBid,
		MarketID: marketID,
		Side:     side,
		Bid:      bid,
	}
	var resp exchangeapi.SubmitBidResponse
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitSealedBid places bid with its price sealed to bidKey, so the price is
// only readable by the exchange.
func (c *Client) SubmitSealedBid(ctx context.Context, marketID string, side core.Side, bid core.Bid, bidKey *rsa.PublicKey) (*exchangeapi.SubmitBidResponse, error) {
	sealed, err := SealPrice(bid.Price, bidKey, HashAlgorithmSHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to seal price: %w", err)
	}
	bid.Price = 0

	req := exchangeapi.SubmitBidRequest{
		Type:           exchangeapi.MessageTypeSubmitBid,
		MarketID:       marketID,
		Side:           side,
		Bid:            bid,
		EncryptedPrice: sealed,
	}
	var resp exchangeapi.SubmitBidResponse
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearInterval clears the open interval of marketID.
func (c *Client) ClearInterval(ctx context.Context, marketID string) (*exchangeapi.ClearingResponse, error) {
	req := exchangeapi.ClearIntervalRequest{
		Type:     exchangeapi.MessageTypeClearInterval,
		MarketID: marketID,
	}
	var resp exchangeapi.ClearingResponse
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicKey fetches the PEM key receipts are signed with.
func (c *Client) PublicKey(ctx context.Context) (*exchangeapi.PublicKeyResponse, error) {
	var resp exchangeapi.PublicKeyResponse
	if err := c.Do(ctx, exchangeapi.Envelope{Type: exchangeapi.MessageTypePublicKey}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
