package core_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/Proctor/internal/core"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relay(tag string) core.Message {
	return core.Message{Type: domain.EventWebRTCOffer, Frame: core.Frame(tag)}
}

func update(tag string) core.Message {
	return core.Message{Type: domain.EventProctoringUpdate, Frame: core.Frame(tag)}
}

func frames(ms []core.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, string(m.Frame))
	}
	return out
}

func TestConn_SendPreservesOrder(t *testing.T) {
	c := core.NewConn("a", core.ConnOptions{QueueSize: 8})

	require.NoError(t, c.Send(relay("1")))
	require.NoError(t, c.Send(update("2")))
	require.NoError(t, c.Send(relay("3")))

	select {
	case <-c.Wake():
	default:
		t.Fatal("expected wake signal after send")
	}
	assert.Equal(t, []string{"1", "2", "3"}, frames(c.Drain()))
	assert.Nil(t, c.Drain())
}

func TestConn_FullQueueEvictsOldestLossy(t *testing.T) {
	var drops []domain.EventType
	c := core.NewConn("a", core.ConnOptions{
		QueueSize: 3,
		OnDrop:    func(et domain.EventType) { drops = append(drops, et) },
	})

	require.NoError(t, c.Send(update("u1")))
	require.NoError(t, c.Send(relay("r1")))
	require.NoError(t, c.Send(update("u2")))

	// Full: u1 goes, r2 is appended behind u2.
	require.NoError(t, c.Send(relay("r2")))

	assert.Equal(t, []string{"r1", "u2", "r2"}, frames(c.Drain()))
	assert.Equal(t, []domain.EventType{domain.EventProctoringUpdate}, drops)
}

func TestConn_FullOfRelaysDropsIncomingUpdate(t *testing.T) {
	dropped := 0
	c := core.NewConn("a", core.ConnOptions{QueueSize: 2, OnDrop: func(domain.EventType) { dropped++ }})

	require.NoError(t, c.Send(relay("r1")))
	require.NoError(t, c.Send(relay("r2")))

	assert.ErrorIs(t, c.Send(update("u1")), core.ErrDropped)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"r1", "r2"}, frames(c.Drain()))
}

func TestConn_FullOfRelaysRefusesRelay(t *testing.T) {
	c := core.NewConn("a", core.ConnOptions{QueueSize: 2})

	require.NoError(t, c.Send(relay("r1")))
	require.NoError(t, c.Send(relay("r2")))

	assert.ErrorIs(t, c.Send(relay("r3")), core.ErrBackpressure)
	assert.Equal(t, 2, c.Pending())
}

func TestConn_CloseIsIdempotentAndCancelsPending(t *testing.T) {
	var closes int32
	c := core.NewConn("a", core.ConnOptions{OnClose: func(id domain.ConnectionID) {
		assert.Equal(t, domain.ConnectionID("a"), id)
		atomic.AddInt32(&closes, 1)
	}})
	require.NoError(t, c.Send(relay("r1")))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&closes))
	assert.Equal(t, 0, c.Pending())
	assert.ErrorIs(t, c.Send(relay("r2")), core.ErrConnClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestConn_DefaultQueueSize(t *testing.T) {
	c := core.NewConn("a", core.ConnOptions{})
	for i := 0; i < core.DefaultQueueSize; i++ {
		require.NoError(t, c.Send(relay("r")))
	}
	assert.ErrorIs(t, c.Send(relay("overflow")), core.ErrBackpressure)
}
