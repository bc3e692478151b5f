package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mnemoerrors "mnemo/internal/errors"
	"mnemo/internal/session"
)

// fakeClient scripts a sequence of replies for one provider.
type fakeClient struct {
	name    string
	replies []fakeReply
	calls   int
	closed  int
}

type fakeReply struct {
	text string
	err  error
}

func (c *fakeClient) Generate(ctx context.Context, req Request) (string, error) {
	idx := c.calls
	c.calls++
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	r := c.replies[idx]
	return r.text, r.err
}

func (c *fakeClient) Name() string { return c.name }
func (c *fakeClient) Close() error { c.closed++; return nil }

type fakeFactory struct {
	clients map[session.ProviderID]*fakeClient
}

func (f *fakeFactory) NewClient(provider session.ProviderID) (Client, error) {
	c, ok := f.clients[provider]
	if !ok {
		return nil, fmt.Errorf("no configuration for provider %q", provider)
	}
	return c, nil
}

func newTestDispatcher(clients map[session.ProviderID]*fakeClient) *Dispatcher {
	d := NewDispatcher(nil, nil)
	d.factory = &fakeFactory{clients: clients}
	return d
}

// Immediate retries keep the tests off the clock.
func immediateRetries(attempts int) mnemoerrors.RetryConfig {
	return mnemoerrors.RetryConfig{MaxAttempts: attempts}
}

func TestDispatchPrimarySucceeds(t *testing.T) {
	primary := &fakeClient{name: "gemini", replies: []fakeReply{{text: "hi there"}}}
	backup := &fakeClient{name: "openai", replies: []fakeReply{{text: "unused"}}}
	d := newTestDispatcher(map[session.ProviderID]*fakeClient{
		session.ProviderGemini: primary,
		session.ProviderOpenAI: backup,
	})

	result, err := d.Generate(context.Background(), session.ProviderGemini, session.ProviderOpenAI, Request{}, immediateRetries(3))
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Text)
	assert.Equal(t, session.ProviderGemini, result.Provider)
	assert.False(t, result.UsedBackup)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls, "backup must not be touched on primary success")
	assert.Equal(t, 1, primary.closed)
}

func TestDispatchRetriesTransientThenSucceeds(t *testing.T) {
	transient := mnemoerrors.NewTransientError(errors.New("503 unavailable"), "busy")
	primary := &fakeClient{name: "gemini", replies: []fakeReply{
		{err: transient},
		{err: transient},
		{text: "third time lucky"},
	}}
	d := newTestDispatcher(map[session.ProviderID]*fakeClient{
		session.ProviderGemini: primary,
	})

	result, err := d.Generate(context.Background(), session.ProviderGemini, "", Request{}, immediateRetries(3))
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", result.Text)
	assert.Equal(t, 3, primary.calls)
}

func TestDispatchFallsBackToBackup(t *testing.T) {
	primaryErr := mnemoerrors.NewTransientError(errors.New("429 rate limited"), "slow down")
	primary := &fakeClient{name: "gemini", replies: []fakeReply{{err: primaryErr}}}
	backup := &fakeClient{name: "openai", replies: []fakeReply{{text: "backup answer"}}}
	d := newTestDispatcher(map[session.ProviderID]*fakeClient{
		session.ProviderGemini: primary,
		session.ProviderOpenAI: backup,
	})

	result, err := d.Generate(context.Background(), session.ProviderGemini, session.ProviderOpenAI, Request{}, immediateRetries(2))
	require.NoError(t, err)
	assert.Equal(t, "backup answer", result.Text)
	assert.Equal(t, session.ProviderOpenAI, result.Provider)
	assert.True(t, result.UsedBackup)
	assert.Equal(t, 2, primary.calls, "primary gets its full retry budget first")
	assert.Equal(t, 1, backup.calls)
	assert.Equal(t, 1, primary.closed)
	assert.Equal(t, 1, backup.closed)
}

func TestDispatchSurfacesPrimaryErrorOnDoubleFailure(t *testing.T) {
	primaryErr := mnemoerrors.NewPermanentError(errors.New("401 unauthorized"), "bad key")
	backupErr := mnemoerrors.NewTransientError(errors.New("503 unavailable"), "busy")
	primary := &fakeClient{name: "gemini", replies: []fakeReply{{err: primaryErr}}}
	backup := &fakeClient{name: "openai", replies: []fakeReply{{err: backupErr}}}
	d := newTestDispatcher(map[session.ProviderID]*fakeClient{
		session.ProviderGemini: primary,
		session.ProviderOpenAI: backup,
	})

	result, err := d.Generate(context.Background(), session.ProviderGemini, session.ProviderOpenAI, Request{}, immediateRetries(1))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, primaryErr, err, "the primary's error is the one reported")
}

func TestDispatchPermanentErrorNotRetried(t *testing.T) {
	permanent := mnemoerrors.NewPermanentError(errors.New("404 not found"), "no such model")
	primary := &fakeClient{name: "gemini", replies: []fakeReply{{err: permanent}}}
	d := newTestDispatcher(map[session.ProviderID]*fakeClient{
		session.ProviderGemini: primary,
	})

	_, err := d.Generate(context.Background(), session.ProviderGemini, "", Request{}, immediateRetries(3))
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls, "permanent errors must not consume the retry budget")
}

func TestDispatchContentBlockPassesThrough(t *testing.T) {
	blocked := newBlockError("SAFETY")
	primary := &fakeClient{name: "gemini", replies: []fakeReply{{err: blocked}}}
	backup := &fakeClient{name: "openai", replies: []fakeReply{{err: blocked}}}
	d := newTestDispatcher(map[session.ProviderID]*fakeClient{
		session.ProviderGemini: primary,
		session.ProviderOpenAI: backup,
	})

	_, err := d.Generate(context.Background(), session.ProviderGemini, session.ProviderOpenAI, Request{}, immediateRetries(3))
	require.Error(t, err)
	assert.True(t, mnemoerrors.IsContentBlocked(err))
	assert.Equal(t, 1, primary.calls, "blocks are never retried")
}

func TestDispatchSkipsBackupEqualToPrimary(t *testing.T) {
	primaryErr := mnemoerrors.NewPermanentError(errors.New("400 bad request"), "bad params")
	primary := &fakeClient{name: "gemini", replies: []fakeReply{{err: primaryErr}}}
	d := newTestDispatcher(map[session.ProviderID]*fakeClient{
		session.ProviderGemini: primary,
	})

	_, err := d.Generate(context.Background(), session.ProviderGemini, session.ProviderGemini, Request{}, immediateRetries(1))
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	f := NewFactory(map[session.ProviderID]Config{})
	_, err := f.NewClient(session.ProviderID("claude"))
	require.Error(t, err)
}
