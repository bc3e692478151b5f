package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mnemoerrors "mnemo/internal/errors"
	"mnemo/internal/llm"
	"mnemo/internal/session"
)

// fakePoller serves scripted update batches, then blocks until the
// context ends.
type fakePoller struct {
	mu      sync.Mutex
	batches [][]Update
	offsets []int64
}

func (f *fakePoller) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

// slowFirstGenerator delays its first reply so a reordering bug would
// let the second message overtake the first.
type slowFirstGenerator struct {
	scriptedGenerator
	once sync.Once
}

func (g *slowFirstGenerator) Generate(ctx context.Context, primary, backup session.ProviderID, req llm.Request, config mnemoerrors.RetryConfig) (*llm.Result, error) {
	g.once.Do(func() { time.Sleep(100 * time.Millisecond) })
	return g.scriptedGenerator.Generate(ctx, primary, backup, req, config)
}

func TestRunnerKeepsSameUserArrivalOrder(t *testing.T) {
	first := textMessage(7, "first")
	first.UpdateID = 10
	second := textMessage(7, "second")
	second.UpdateID = 11
	poller := &fakePoller{batches: [][]Update{{first, second}}}

	tg := &fakeTransport{}
	store := newMemStore()
	gen := &slowFirstGenerator{scriptedGenerator: scriptedGenerator{reply: "ok"}}
	h := NewHandler(tg, store, gen, &consolidatorShim{}, nil)
	h.now = func() time.Time { return handlerNow }
	h.pace = 0
	r := NewRunner(poller, h, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		s, ok := store.sessions["7"]
		return ok && len(s.History) == 4
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	s := store.sessions["7"]
	assert.Equal(t, "first", s.History[0].Text)
	assert.Equal(t, "second", s.History[2].Text)
}

func TestRunnerAdvancesOffsetAndDispatches(t *testing.T) {
	poller := &fakePoller{batches: [][]Update{
		{textMessage(1, "/help"), {UpdateID: 41, Message: &Message{Chat: Chat{ID: 2}, Text: "/help"}}},
	}}
	poller.batches[0][0].UpdateID = 40

	tg := &fakeTransport{}
	h := newTestHandler(tg, newMemStore(), &scriptedGenerator{reply: "x"})
	r := NewRunner(poller, h, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		tg.mu.Lock()
		defer tg.mu.Unlock()
		return len(tg.sent) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))

	poller.mu.Lock()
	defer poller.mu.Unlock()
	require.GreaterOrEqual(t, len(poller.offsets), 2)
	assert.Equal(t, int64(0), poller.offsets[0])
	assert.Equal(t, int64(42), poller.offsets[1], "offset moves past the highest update ID")
}
