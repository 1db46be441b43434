package venue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivflow/internal/domain"
)

func newTestPool(t *testing.T, dialer *scriptedDialer) *Pool {
	t.Helper()
	p := NewPool(PoolConfig{
		Link: LinkConfig{
			URL:         "wss://example.test/ws",
			BackoffBase: time.Millisecond,
			BackoffCap:  4 * time.Millisecond,
			Dial:        dialer.dial,
		},
		IdleWindow:    time.Minute,
		SweepInterval: time.Minute,
	}, newTestNormalizer(), slog.New(slog.DiscardHandler))
	t.Cleanup(p.CloseAll)
	return p
}

func TestGetOrCreateReusesHealthyLink(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	p := newTestPool(t, d)
	creds := Credentials{AppID: "1089"}

	first, err := p.GetOrCreate(context.Background(), "public", creds)
	require.NoError(t, err)
	second, err := p.GetOrCreate(context.Background(), "public", creds)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, d.dials())
}

func TestGetOrCreateReplacesOnCredentialChange(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn(authorizeOK) }}
	p := newTestPool(t, d)

	first, err := p.GetOrCreate(context.Background(), "acct", Credentials{Token: "tok-1"})
	require.NoError(t, err)
	second, err := p.GetOrCreate(context.Background(), "acct", Credentials{Token: "tok-2"})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, d.dials())
	assert.Equal(t, StateDisconnected, first.State(), "replaced link must be torn down")
	assert.True(t, second.Healthy())
}

func TestGetOrCreateReplacesUnhealthyLink(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	p := newTestPool(t, d)
	creds := Credentials{AppID: "1089"}

	first, err := p.GetOrCreate(context.Background(), "public", creds)
	require.NoError(t, err)
	require.NoError(t, first.Disconnect())

	second, err := p.GetOrCreate(context.Background(), "public", creds)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, second.Healthy())
}

func TestDistinctKeysGetDistinctLinks(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	p := newTestPool(t, d)

	a, err := p.GetOrCreate(context.Background(), "public", Credentials{})
	require.NoError(t, err)
	b, err := p.GetOrCreate(context.Background(), "acct-1", Credentials{})
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, d.dials())
}

func TestSweepClosesOnlyIdleEntries(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	p := newTestPool(t, d)

	idle, err := p.GetOrCreate(context.Background(), "idle", Credentials{})
	require.NoError(t, err)
	fresh, err := p.GetOrCreate(context.Background(), "fresh", Credentials{})
	require.NoError(t, err)

	// Age the idle entry past the window.
	p.mu.Lock()
	e := p.entries["idle"]
	p.mu.Unlock()
	e.mu.Lock()
	e.lastUsed = time.Now().Add(-2 * time.Minute)
	e.mu.Unlock()

	p.sweepOnce(time.Now())

	assert.Equal(t, StateDisconnected, idle.State())
	assert.True(t, fresh.Healthy())

	p.mu.Lock()
	_, idleKept := p.entries["idle"]
	_, freshKept := p.entries["fresh"]
	p.mu.Unlock()
	assert.False(t, idleKept)
	assert.True(t, freshKept)
}

func TestCloseAllMarksPoolClosed(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	p := newTestPool(t, d)

	link, err := p.GetOrCreate(context.Background(), "public", Credentials{})
	require.NoError(t, err)

	p.CloseAll()
	assert.Equal(t, StateDisconnected, link.State())

	_, err = p.GetOrCreate(context.Background(), "public", Credentials{})
	assert.ErrorIs(t, err, domain.ErrPoolClosed)
}

func TestCloseUnknownKeyIsNoOp(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	p := newTestPool(t, d)
	p.Close("nope")
}
