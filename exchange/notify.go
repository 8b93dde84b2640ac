package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openmerit/elmarket/exchangeapi"
)

// Notifier delivers a cleared-bid notice to one participant.
type Notifier interface {
	Notify(ctx context.Context, recipient string, notice exchangeapi.ClearedBidNotice) error
}

// Notices builds one notice per trade of outcome, in match order.
func Notices(outcome *IntervalOutcome) []exchangeapi.ClearedBidNotice {
	if outcome == nil || outcome.Result == nil {
		return nil
	}

	notices := make([]exchangeapi.ClearedBidNotice, 0, len(outcome.Result.Trades))
	for _, trade := range outcome.Result.Trades {
		notices = append(notices, exchangeapi.ClearedBidNotice{
			MarketID: outcome.MarketID,
			Interval: outcome.Interval,
			SellerID: trade.SellerID,
			BuyerID:  trade.BuyerID,
			Quantity: trade.Quantity,
			Price:    trade.Price,
			Time:     outcome.ClearedAt,
		})
	}
	return notices
}

// Deliver sends every trade of outcome to its seller and to its buyer, once
// when both are the same participant.
// Delivery continues past individual failures; all failures are returned joined.
func Deliver(ctx context.Context, notifier Notifier, outcome *IntervalOutcome) error {
	var errs []error
	for _, notice := range Notices(outcome) {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		recipients := []string{notice.SellerID, notice.BuyerID}
		if notice.SellerID == notice.BuyerID {
			recipients = recipients[:1]
		}
		for _, recipient := range recipients {
			if err := notifier.Notify(ctx, recipient, notice); err != nil {
				errs = append(errs, fmt.Errorf("notify %s: %w", recipient, err))
			}
		}
	}
	return errors.Join(errs...)
}

// MemoryNotifier keeps notices in per-participant mailboxes.
type MemoryNotifier struct {
	mu        sync.Mutex
	mailboxes map[string][]exchangeapi.ClearedBidNotice
}

// NewMemoryNotifier returns an empty MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{mailboxes: make(map[string][]exchangeapi.ClearedBidNotice)}
}

func (m *MemoryNotifier) Notify(_ context.Context, recipient string, notice exchangeapi.ClearedBidNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mailboxes[recipient] = append(m.mailboxes[recipient], notice)
	return nil
}

// Drain returns and removes all notices addressed to recipient.
func (m *MemoryNotifier) Drain(recipient string) []exchangeapi.ClearedBidNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	notices := m.mailboxes[recipient]
	delete(m.mailboxes, recipient)
	return notices
}
