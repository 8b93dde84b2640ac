package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

const maxRequestBytes = 1 << 20

// handlerFunc answers one decoded request. The returned value is JSON-encoded
// back to the caller.
type handlerFunc func(ctx context.Context, raw []byte) any

// ServerOptions configures a Server. Only MaxWorkers is required.
type ServerOptions struct {
	Logger      *zap.Logger
	Key         *SigningKey // generated when nil
	BidKey      *BidKey     // generated when nil
	Ledger      *Ledger     // receipts are not persisted when nil
	Notifier    Notifier    // trades are not delivered when nil
	MaxWorkers  int
	ReadTimeout time.Duration
}

// Server accepts one request per connection and dispatches it by message type.
type Server struct {
	logger      *zap.Logger
	engine      *core.Engine
	key         *SigningKey
	bidKey      *BidKey
	ledger      *Ledger
	notifier    Notifier
	maxWorkers  int
	readTimeout time.Duration

	mu    sync.Mutex
	books map[string]*Book

	handlers map[exchangeapi.MessageType]handlerFunc
}

// NewServer builds a Server from opts.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.MaxWorkers <= 0 {
		return nil, fmt.Errorf("max workers must be positive, got %d", opts.MaxWorkers)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	key := opts.Key
	if key == nil {
		var err error
		key, err = NewSigningKey()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize signing key: %w", err)
		}
		logger.Info("generated ephemeral receipt signing key")
	}
	bidKey := opts.BidKey
	if bidKey == nil {
		var err error
		bidKey, err = NewBidKey()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bid key: %w", err)
		}
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}

	s := &Server{
		logger:      logger,
		engine:      core.NewEngine(logger),
		key:         key,
		bidKey:      bidKey,
		ledger:      opts.Ledger,
		notifier:    opts.Notifier,
		maxWorkers:  opts.MaxWorkers,
		readTimeout: readTimeout,
		books:       make(map[string]*Book),
	}
	s.handlers = map[exchangeapi.MessageType]handlerFunc{
		exchangeapi.MessageTypePing:          s.handlePing,
		exchangeapi.MessageTypeSubmitBid:     s.handleSubmitBid,
		exchangeapi.MessageTypeClearInterval: s.handleClearInterval,
		exchangeapi.MessageTypePublicKey:     s.handlePublicKey,
	}
	return s, nil
}

// Serve accepts connections on listener until ctx is cancelled. Each
// connection is handled by a worker; when all workers are busy the
// connection is closed immediately.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("failed to close listener", zap.Error(err))
		}
	}()

	semaphore := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup
	defer wg.Wait()

	s.logger.Info("exchange listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int("max_workers", s.maxWorkers))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("failed to accept connection", zap.Error(err))
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			wg.Add(1)
			go func(c net.Conn) {
				defer wg.Done()
				defer func() { <-semaphore }()
				s.handleConnection(ctx, c)
			}(conn)
		default:
			s.logger.Warn("no workers available, rejecting connection")
			if err := conn.Close(); err != nil {
				s.logger.Error("failed to close rejected connection", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in connection handler", zap.Any("panic", r))
		}
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close connection", zap.Error(err))
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(conn, maxRequestBytes)); err != nil {
		s.logger.Error("failed to read request", zap.Error(err))
		return
	}

	response := s.handleRequest(ctx, buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// handleRequest decodes the envelope and dispatches to the registered handler.
func (s *Server) handleRequest(ctx context.Context, raw []byte) any {
	var envelope exchangeapi.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("failed to decode request", zap.Error(err))
		return errorResponse("Failed to decode request: %v", err)
	}

	handler, ok := s.handlers[envelope.Type]
	if !ok {
		return errorResponse("Unknown request type: %s", envelope.Type)
	}

	s.logger.Debug("received request", zap.String("type", string(envelope.Type)))
	return handler(ctx, raw)
}

func (s *Server) handlePing(context.Context, []byte) any {
	return exchangeapi.PingResponse{
		Type:      exchangeapi.MessageTypePong,
		Message:   "exchange is healthy",
		Timestamp: time.Now().Unix(),
	}
}

func (s *Server) handlePublicKey(context.Context, []byte) any {
	publicKeyPEM, err := s.key.PublicKeyPEM()
	if err != nil {
		return errorResponse("Failed to export public key: %v", err)
	}
	bidKeyPEM, err := s.bidKey.PublicKeyPEM()
	if err != nil {
		return errorResponse("Failed to export bid key: %v", err)
	}
	return exchangeapi.PublicKeyResponse{
		Type:      exchangeapi.MessageTypePublicKeyResult,
		PublicKey: publicKeyPEM,
		Algorithm: ReceiptAlgorithm.String(),
		BidKey:    bidKeyPEM,
	}
}

func (s *Server) handleSubmitBid(_ context.Context, raw []byte) any {
	var req exchangeapi.SubmitBidRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Failed to decode submit_bid request: %v", err)
	}

	resp := exchangeapi.SubmitBidResponse{Type: exchangeapi.MessageTypeSubmitBidResult}

	book, err := s.book(req.MarketID)
	if err != nil {
		resp.Message = err.Error()
		return resp
	}

	if req.EncryptedPrice != nil {
		price, err := s.bidKey.OpenPrice(req.EncryptedPrice)
		if err != nil {
			s.logger.Info("failed to open sealed price",
				zap.String("market", req.MarketID),
				zap.String("participant", req.Bid.ParticipantID),
				zap.Error(err))
			resp.Message = fmt.Sprintf("Failed to open sealed price: %v", err)
			return resp
		}
		req.Bid.Price = price
	}

	bidID, interval, err := book.Submit(req.Side, req.Bid)
	if err != nil {
		s.logger.Info("rejected bid",
			zap.String("market", req.MarketID),
			zap.String("participant", req.Bid.ParticipantID),
			zap.Error(err))
		resp.Message = err.Error()
		return resp
	}

	resp.Success = true
	resp.Message = fmt.Sprintf("Accepted %s bid for interval %d", req.Side, interval)
	resp.BidID = bidID
	resp.Interval = interval
	return resp
}

func (s *Server) handleClearInterval(ctx context.Context, raw []byte) any {
	startTime := time.Now()

	var req exchangeapi.ClearIntervalRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Failed to decode clear_interval request: %v", err)
	}

	resp := exchangeapi.ClearingResponse{
		Type:     exchangeapi.MessageTypeClearingResponse,
		MarketID: req.MarketID,
	}

	book, err := s.book(req.MarketID)
	if err != nil {
		resp.Message = err.Error()
		return resp
	}

	// The receipt is issued and stored before the book opens the next interval
	var receipt exchangeapi.ReceiptCOSE
	outcome, err := book.ClearAndCommit(func(outcome *IntervalOutcome) error {
		issued, err := IssueReceipt(s.key, outcome)
		if err != nil {
			return fmt.Errorf("receipt generation failed: %w", err)
		}
		if s.ledger != nil {
			if err := s.ledger.PutReceipt(outcome.MarketID, outcome.Interval, issued); err != nil {
				return fmt.Errorf("receipt persistence failed: %w", err)
			}
		}
		receipt = issued
		return nil
	})
	if err != nil {
		s.logger.Error("failed to clear interval",
			zap.String("market", req.MarketID),
			zap.Error(err))
		resp.Message = fmt.Sprintf("Clearing failed: %v", err)
		resp.ProcessingTime = time.Since(startTime).Milliseconds()
		return resp
	}
	resp.Interval = outcome.Interval

	if s.notifier != nil {
		if err := Deliver(ctx, s.notifier, outcome); err != nil {
			// Trades are final once the receipt is stored; delivery failures are reported, not rolled back
			s.logger.Error("failed to deliver some notices", zap.Error(err))
		}
	}

	result := outcome.Result
	resp.Success = true
	resp.Message = fmt.Sprintf("Cleared %d bids into %d trades", len(outcome.Bids), len(result.Trades))
	resp.Trades = result.Trades
	resp.ClearingPrice = result.ClearingPrice
	resp.Termination = result.Termination
	resp.Receipt = receipt.EncodeBase64()
	resp.ProcessingTime = time.Since(startTime).Milliseconds()

	s.logger.Info("interval cleared",
		zap.String("market", outcome.MarketID),
		zap.Int("interval", outcome.Interval),
		zap.Int("bids", len(outcome.Bids)),
		zap.Int("trades", len(result.Trades)),
		zap.String("termination", string(result.Termination)),
		zap.Int64("processing_ms", resp.ProcessingTime))

	return resp
}

// book returns the book of marketID, creating it on first use. A new book
// resumes after the last interval recorded in the ledger.
func (s *Server) book(marketID string) (*Book, error) {
	if err := validateMarketID(marketID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if book, ok := s.books[marketID]; ok {
		return book, nil
	}

	next := 1
	if s.ledger != nil {
		last, found, err := s.ledger.LastInterval(marketID)
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger for %s: %w", marketID, err)
		}
		if found {
			next = last + 1
		}
	}

	book := NewBookAt(marketID, s.engine, next)
	s.books[marketID] = book
	s.logger.Info("opened market", zap.String("market", marketID), zap.Int("interval", next))
	return book, nil
}

func validateMarketID(marketID string) error {
	if marketID == "" {
		return errors.New("market_id is required")
	}
	if strings.ContainsAny(marketID, "/~") {
		return fmt.Errorf("invalid market_id %q", marketID)
	}
	return nil
}

func errorResponse(format string, args ...any) exchangeapi.ErrorResponse {
	return exchangeapi.ErrorResponse{
		Type:    exchangeapi.MessageTypeError,
		Message: fmt.Sprintf(format, args...),
	}
}
