package exchange

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/openmerit/elmarket/exchangeapi"
)

// ErrReceiptNotFound is returned when no receipt is stored for an interval.
var ErrReceiptNotFound = errors.New("receipt not found")

// Ledger stores signed clearing receipts per market and interval.
type Ledger struct {
	db *pebble.DB
}

// OpenLedger opens (or creates) a ledger in dir. Storage engine messages go
// to logger; a nil logger discards them.
func OpenLedger(dir string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(dir, &pebble.Options{
		Logger: logger.Named("pebble").Sugar(),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", dir, err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// PutReceipt stores receipt durably, replacing any previous one for the interval.
func (l *Ledger) PutReceipt(marketID string, interval int, receipt exchangeapi.ReceiptCOSE) error {
	return l.db.Set(receiptKey(marketID, interval), receipt, pebble.Sync)
}

// Receipt returns the receipt stored for an interval.
func (l *Ledger) Receipt(marketID string, interval int) (exchangeapi.ReceiptCOSE, error) {
	val, closer, err := l.db.Get(receiptKey(marketID, interval))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s interval %d", ErrReceiptNotFound, marketID, interval)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return exchangeapi.ReceiptCOSE(bytes.Clone(val)), nil
}

// ScanReceipts calls fn for every receipt of marketID in interval order.
func (l *Ledger) ScanReceipts(marketID string, fn func(interval int, receipt exchangeapi.ReceiptCOSE) error) error {
	iter, err := l.db.NewIter(marketBounds(marketID))
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		interval, err := parseReceiptKey(marketID, iter.Key())
		if err != nil {
			return err
		}
		if err := fn(interval, exchangeapi.ReceiptCOSE(bytes.Clone(iter.Value()))); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastInterval returns the highest interval with a stored receipt for marketID.
func (l *Ledger) LastInterval(marketID string) (int, bool, error) {
	iter, err := l.db.NewIter(marketBounds(marketID))
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false, iter.Error()
	}

	interval, err := parseReceiptKey(marketID, iter.Key())
	if err != nil {
		return 0, false, err
	}
	return interval, true, nil
}

// -------------------- Helpers --------------------

func receiptPrefix(marketID string) string {
	return "receipt/" + marketID + "/"
}

func receiptKey(marketID string, interval int) []byte {
	return []byte(fmt.Sprintf("%s%020d", receiptPrefix(marketID), interval))
}

func marketBounds(marketID string) *pebble.IterOptions {
	prefix := receiptPrefix(marketID)
	return &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	}
}

func parseReceiptKey(marketID string, key []byte) (int, error) {
	var interval int
	_, err := fmt.Sscanf(strings.TrimPrefix(string(key), receiptPrefix(marketID)), "%d", &interval)
	if err != nil {
		return 0, fmt.Errorf("malformed ledger key %q: %w", key, err)
	}
	return interval, nil
}
