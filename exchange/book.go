package exchange

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmerit/elmarket/core"
)

var (
	// ErrDuplicateBid is returned when a participant bids twice on the same side of one interval.
	ErrDuplicateBid = errors.New("participant already has a bid on this side for the open interval")
	// ErrUnknownSide is returned for a side other than supply or demand.
	ErrUnknownSide = errors.New("unknown market side")
)

// SubmittedBid is a bid accepted into an interval, tagged with its bid id.
type SubmittedBid struct {
	ID   string    `json:"id"`
	Side core.Side `json:"side"`
	core.Bid
}

// IntervalOutcome is everything the exchange knows about one cleared interval.
type IntervalOutcome struct {
	MarketID  string
	Interval  int
	Bids      []SubmittedBid // submission order, supply and demand interleaved
	Result    *core.ClearingResult
	ClearedAt time.Time
}

// Book collects the bids of one market for its open interval. Calls are
// serialized by a mutex so that an interval clears exactly once and no bid
// can land between collection and clearing.
type Book struct {
	mu       sync.Mutex
	marketID string
	engine   *core.Engine
	interval int
	bids     []SubmittedBid
	seen     map[core.Side]map[string]bool
	now      func() time.Time
}

// NewBook opens interval 1 of marketID.
func NewBook(marketID string, engine *core.Engine) *Book {
	return NewBookAt(marketID, engine, 1)
}

// NewBookAt opens the given interval of marketID, used when resuming from a ledger.
func NewBookAt(marketID string, engine *core.Engine, interval int) *Book {
	if engine == nil {
		engine = core.NewEngine(nil)
	}
	if interval < 1 {
		interval = 1
	}
	b := &Book{
		marketID: marketID,
		engine:   engine,
		interval: interval,
		now:      time.Now,
	}
	b.reset()
	return b
}

func (b *Book) reset() {
	b.bids = make([]SubmittedBid, 0)
	b.seen = map[core.Side]map[string]bool{
		core.SideSupply: make(map[string]bool),
		core.SideDemand: make(map[string]bool),
	}
}

// MarketID returns the market this book collects bids for.
func (b *Book) MarketID() string {
	return b.marketID
}

// Interval returns the number of the open interval.
func (b *Book) Interval() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interval
}

// Pending returns how many supply and demand bids wait for the open interval.
func (b *Book) Pending() (supply, demand int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen[core.SideSupply]), len(b.seen[core.SideDemand])
}

// Discard drops the bids collected for the open interval and returns how
// many were dropped. The interval number is unchanged.
func (b *Book) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.bids)
	b.reset()
	return n
}

// Submit validates bid and adds it to the open interval. It returns the
// assigned bid id and the interval the bid belongs to.
func (b *Book) Submit(side core.Side, bid core.Bid) (string, int, error) {
	if !side.Valid() {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}
	if err := core.ValidateBid(bid); err != nil {
		return "", 0, &core.InvalidBidError{Side: side, Index: -1, Bid: bid, Reason: err.Error()}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seen[side][bid.ParticipantID] {
		return "", 0, fmt.Errorf("%w: %s bid from %s in interval %d", ErrDuplicateBid, side, bid.ParticipantID, b.interval)
	}

	id := uuid.New().String()
	b.seen[side][bid.ParticipantID] = true
	b.bids = append(b.bids, SubmittedBid{ID: id, Side: side, Bid: bid})

	return id, b.interval, nil
}

// Clear closes the open interval, clears it and opens the next one.
// If clearing fails the collected batch is discarded and the interval stays open.
func (b *Book) Clear() (*IntervalOutcome, error) {
	return b.ClearAndCommit(nil)
}

// ClearAndCommit clears the open interval and hands the outcome to commit
// before the next interval opens. If commit returns an error the bids and the
// interval number are kept, so the interval can be cleared again.
func (b *Book) ClearAndCommit(commit func(*IntervalOutcome) error) (*IntervalOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	supply, demand := splitSides(b.bids)
	result, err := b.engine.Clear(supply, demand)
	if err != nil {
		b.reset()
		return nil, fmt.Errorf("clear %s interval %d: %w", b.marketID, b.interval, err)
	}

	outcome := &IntervalOutcome{
		MarketID:  b.marketID,
		Interval:  b.interval,
		Bids:      b.bids,
		Result:    result,
		ClearedAt: b.now(),
	}

	if commit != nil {
		if err := commit(outcome); err != nil {
			return nil, fmt.Errorf("commit %s interval %d: %w", b.marketID, b.interval, err)
		}
	}

	b.reset()
	b.interval++

	return outcome, nil
}

func splitSides(bids []SubmittedBid) (supply, demand core.BidSet) {
	supply = make(core.BidSet, 0, len(bids))
	demand = make(core.BidSet, 0, len(bids))
	for _, sb := range bids {
		if sb.Side == core.SideSupply {
			supply = append(supply, sb.Bid)
		} else {
			demand = append(demand, sb.Bid)
		}
	}
	return supply, demand
}
