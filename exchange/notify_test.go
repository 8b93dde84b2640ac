package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/segmentio/kafka-go"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

func clearedOutcome(t *testing.T) *IntervalOutcome {
	t.Helper()
	book := NewBookAt("dk1", nil, 3)
	book.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	for _, bid := range []core.Bid{{ParticipantID: "G1", Quantity: 50, Price: 10}, {ParticipantID: "G2", Quantity: 50, Price: 20}} {
		_, _, err := book.Submit(core.SideSupply, bid)
		assert.Nil(t, err)
	}
	_, _, err := book.Submit(core.SideDemand, core.Bid{ParticipantID: "D1", Quantity: 80, Price: 40})
	assert.Nil(t, err)

	outcome, err := book.Clear()
	assert.Nil(t, err)
	return outcome
}

func TestNotices(t *testing.T) {
	outcome := clearedOutcome(t)

	notices := Notices(outcome)
	assert.Equal(t, 2, len(notices))
	check.Equal(t, exchangeapi.ClearedBidNotice{
		MarketID: "dk1",
		Interval: 3,
		SellerID: "G1",
		BuyerID:  "D1",
		Quantity: 50,
		Price:    20,
		Time:     time.Unix(1700000000, 0).UTC(),
	}, notices[0])
	check.Equal(t, "G2", notices[1].SellerID)
	check.Equal(t, 30.0, notices[1].Quantity)

	check.Nil(t, Notices(nil))
}

func TestDeliver_MemoryNotifier(t *testing.T) {
	outcome := clearedOutcome(t)
	notifier := NewMemoryNotifier()

	assert.Nil(t, Deliver(context.Background(), notifier, outcome))

	check.Equal(t, 1, len(notifier.Drain("G1")))
	check.Equal(t, 1, len(notifier.Drain("G2")))

	buyer := notifier.Drain("D1")
	check.Equal(t, 2, len(buyer))
	check.Equal(t, 80.0, buyer[0].Quantity+buyer[1].Quantity)

	// Drained mailboxes are empty
	check.Equal(t, 0, len(notifier.Drain("D1")))
}

type failingNotifier struct {
	fail  string
	calls []string
}

func (f *failingNotifier) Notify(_ context.Context, recipient string, _ exchangeapi.ClearedBidNotice) error {
	f.calls = append(f.calls, recipient)
	if recipient == f.fail {
		return errors.New("mailbox unavailable")
	}
	return nil
}

func TestDeliver_ContinuesPastFailures(t *testing.T) {
	outcome := clearedOutcome(t)
	notifier := &failingNotifier{fail: "D1"}

	err := Deliver(context.Background(), notifier, outcome)
	assert.NotNil(t, err)
	check.Equal(t, []string{"G1", "D1", "G2", "D1"}, notifier.calls)
	check.True(t, strings.Contains(err.Error(), "notify D1"))
}

func TestDeliver_StopsOnCancelledContext(t *testing.T) {
	outcome := clearedOutcome(t)
	notifier := &failingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Deliver(ctx, notifier, outcome)
	check.True(t, errors.Is(err, context.Canceled))
	check.Equal(t, 0, len(notifier.calls))
}

type recordingWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_KeysByRecipient(t *testing.T) {
	outcome := clearedOutcome(t)
	writer := &recordingWriter{}
	notifier := &KafkaNotifier{writer: writer}

	assert.Nil(t, Deliver(context.Background(), notifier, outcome))
	assert.Equal(t, 4, len(writer.messages))

	check.Equal(t, "G1", string(writer.messages[0].Key))
	check.Equal(t, "D1", string(writer.messages[1].Key))

	var notice exchangeapi.ClearedBidNotice
	assert.Nil(t, json.Unmarshal(writer.messages[0].Value, &notice))
	check.Equal(t, core.Trade{SellerID: "G1", BuyerID: "D1", Quantity: 50, Price: 20}, notice.Trade())

	assert.Nil(t, notifier.Close())
	check.True(t, writer.closed)
}

func TestNewKafkaNotifier(t *testing.T) {
	notifier := NewKafkaNotifier([]string{"localhost:9092"}, "cleared-bids")

	writer, ok := notifier.writer.(*kafka.Writer)
	assert.True(t, ok)
	check.Equal(t, "cleared-bids", writer.Topic)
	check.Equal(t, kafka.RequireAll, writer.RequiredAcks)
}
