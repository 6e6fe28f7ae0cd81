package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medconnect-backend/internal/domain"
)

func TestLoopbackPointToPointDelivery(t *testing.T) {
	board := NewSwitchboard()
	alice, bob := uuid.New(), uuid.New()

	ta := board.Transport()
	tb := board.Transport()
	require.NoError(t, ta.Initialize(context.Background(), alice))
	require.NoError(t, tb.Initialize(context.Background(), bob))
	defer ta.Disconnect()
	defer tb.Disconnect()

	inbox, cancel := tb.Subscribe()
	defer cancel()

	msg, err := domain.NewSignalMessage(domain.SignalCallAnswer, alice, bob, nil)
	require.NoError(t, err)
	require.NoError(t, ta.Send(msg))

	select {
	case got := <-inbox:
		assert.Equal(t, domain.SignalCallAnswer, got.Type)
		assert.Equal(t, alice, got.From)
		assert.Equal(t, bob, got.To)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestLoopbackDropsUnknownRecipient(t *testing.T) {
	board := NewSwitchboard()
	alice := uuid.New()

	ta := board.Transport()
	require.NoError(t, ta.Initialize(context.Background(), alice))
	defer ta.Disconnect()

	msg, err := domain.NewSignalMessage(domain.SignalOffer, alice, uuid.New(), domain.SDPPayload{SDP: "v=0"})
	require.NoError(t, err)

	// At-most-once delivery: unaddressable envelopes vanish silently.
	assert.NoError(t, ta.Send(msg))
}

func TestFanoutDeliversToEverySubscriber(t *testing.T) {
	board := NewSwitchboard()
	alice, bob := uuid.New(), uuid.New()

	ta := board.Transport()
	tb := board.Transport()
	require.NoError(t, ta.Initialize(context.Background(), alice))
	require.NoError(t, tb.Initialize(context.Background(), bob))
	defer ta.Disconnect()
	defer tb.Disconnect()

	first, cancelFirst := tb.Subscribe()
	second, cancelSecond := tb.Subscribe()
	defer cancelFirst()
	defer cancelSecond()

	msg, err := domain.NewSignalMessage(domain.SignalCallEnd, alice, bob, nil)
	require.NoError(t, err)
	require.NoError(t, ta.Send(msg))

	for _, inbox := range []<-chan *domain.SignalMessage{first, second} {
		select {
		case got := <-inbox:
			assert.Equal(t, domain.SignalCallEnd, got.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the envelope")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	board := NewSwitchboard()
	alice, bob := uuid.New(), uuid.New()

	ta := board.Transport()
	tb := board.Transport()
	require.NoError(t, ta.Initialize(context.Background(), alice))
	require.NoError(t, tb.Initialize(context.Background(), bob))
	defer ta.Disconnect()
	defer tb.Disconnect()

	inbox, cancel := tb.Subscribe()
	cancel()

	// The cancel closed the channel.
	_, open := <-inbox
	assert.False(t, open)
}

func TestDisconnectClosesSubscribersAndIsIdempotent(t *testing.T) {
	board := NewSwitchboard()
	alice := uuid.New()

	ta := board.Transport()
	require.NoError(t, ta.Initialize(context.Background(), alice))

	inbox, _ := ta.Subscribe()

	require.NoError(t, ta.Disconnect())
	require.NoError(t, ta.Disconnect())

	_, open := <-inbox
	assert.False(t, open)
	assert.Equal(t, StateClosed, ta.State())

	msg, err := domain.NewSignalMessage(domain.SignalCallEnd, alice, uuid.New(), nil)
	require.NoError(t, err)
	assert.Error(t, ta.Send(msg))
}

func TestLoopbackRetryRejoinsSwitchboard(t *testing.T) {
	board := NewSwitchboard()
	alice, bob := uuid.New(), uuid.New()

	ta := board.Transport()
	tb := board.Transport()
	require.NoError(t, ta.Initialize(context.Background(), alice))
	require.NoError(t, tb.Initialize(context.Background(), bob))
	defer ta.Disconnect()

	require.NoError(t, tb.Disconnect())
	require.NoError(t, tb.Retry(context.Background()))
	assert.Equal(t, StateConnected, tb.State())

	inbox, cancel := tb.Subscribe()
	defer cancel()

	msg, err := domain.NewSignalMessage(domain.SignalCallAnswer, alice, bob, nil)
	require.NoError(t, err)
	require.NoError(t, ta.Send(msg))

	select {
	case <-inbox:
	case <-time.After(time.Second):
		t.Fatal("retried transport never received the envelope")
	}
}

func TestRetryRequiresInitialize(t *testing.T) {
	board := NewSwitchboard()
	ta := board.Transport()
	assert.Error(t, ta.Retry(context.Background()))
}

func TestWSTransportFallsBackAfterMaxAttempts(t *testing.T) {
	transport := NewWSTransport(&WSConfig{
		URL:              "ws://127.0.0.1:1/ws/signal", // nothing listens here
		BaseRetryDelay:   time.Millisecond,
		MaxRetryAttempts: 3,
	})

	var states []ConnState
	unregister := transport.OnStateChange(func(s ConnState) {
		states = append(states, s)
	})
	defer unregister()

	err := transport.Initialize(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, StateFallback, transport.State())
	assert.Equal(t, []ConnState{StateConnecting, StateFallback}, states)

	// Fallback refuses sends until a manual retry succeeds.
	msg, merr := domain.NewSignalMessage(domain.SignalCallEnd, uuid.New(), uuid.New(), nil)
	require.NoError(t, merr)
	assert.Error(t, transport.Send(msg))

	assert.Error(t, transport.Retry(context.Background()))
	assert.Equal(t, StateFallback, transport.State())
}

func TestWSTransportRetryDelayEscalates(t *testing.T) {
	base := 20 * time.Millisecond
	transport := NewWSTransport(&WSConfig{
		URL:              "ws://127.0.0.1:1/ws/signal",
		BaseRetryDelay:   base,
		MaxRetryAttempts: 3,
	})

	start := time.Now()
	err := transport.Initialize(context.Background(), uuid.New())
	elapsed := time.Since(start)

	require.Error(t, err)
	// attempt*base between attempts: 1x + 2x + 3x of the base delay.
	assert.GreaterOrEqual(t, elapsed, 6*base)
}
