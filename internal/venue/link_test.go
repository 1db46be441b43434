package venue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivflow/internal/domain"
)

const authorizeOK = `{"msg_type":"authorize","authorize":{"loginid":"CR90001","currency":"USD","balance":1000,"scopes":["read","trade"]}}`

// scriptedDialer hands out one fakeConn per dial and can be told to start
// failing.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	next  func() *fakeConn
	err   error
}

func (d *scriptedDialer) dial(context.Context, string) (conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := d.next()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *scriptedDialer) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *scriptedDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func newTestLink(t *testing.T, creds Credentials, dialer *scriptedDialer, tweak func(*LinkConfig)) *Link {
	t.Helper()
	cfg := LinkConfig{
		URL:         "wss://example.test/ws",
		BackoffBase: time.Millisecond,
		BackoffCap:  4 * time.Millisecond,
		Dial:        dialer.dial,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	l := NewLink("test", creds, newTestNormalizer(), cfg, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = l.Disconnect() })
	return l
}

func TestConnectPublicNoHandshake(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	l := newTestLink(t, Credentials{AppID: "1089"}, d, nil)

	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, StateConnected, l.State())
	assert.True(t, l.Healthy())
	assert.Empty(t, d.conns[0].written(), "public connect must not send an authorize frame")
}

func TestConnectAuthorizedHandshake(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn(authorizeOK) }}
	l := newTestLink(t, Credentials{Token: "tok-1"}, d, nil)

	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, StateAuthorized, l.State())

	wrote := d.conns[0].written()
	require.NotEmpty(t, wrote)
	assert.JSONEq(t, `{"authorize":"tok-1"}`, wrote[0])
}

func TestConnectAuthorizeRejected(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn {
		return newFakeConn(`{"error":{"code":"InvalidToken","message":"The token is invalid."}}`)
	}}
	l := newTestLink(t, Credentials{Token: "bad"}, d, nil)

	err := l.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthorizeRejected)
	assert.Equal(t, StateDisconnected, l.State())
}

func TestHandshakeSkipsInterleavedFrames(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn {
		return newFakeConn(
			`{"tick":{"symbol":"R_100","quote":100,"epoch":1700000000}}`,
			authorizeOK,
		)
	}}
	l := newTestLink(t, Credentials{Token: "tok-1"}, d, nil)

	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, StateAuthorized, l.State())
}

func TestSendQueuesUntilAuthorizedThenFlushesInOrder(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn(authorizeOK) }}
	l := newTestLink(t, Credentials{Token: "tok-1"}, d, nil)

	// Queued before any transport exists.
	require.NoError(t, l.SubscribeTicks("R_100"))
	require.NoError(t, l.SubscribeTicks("R_50"))
	assert.Equal(t, StateDisconnected, l.State())

	require.NoError(t, l.Connect(context.Background()))

	wrote := d.conns[0].written()
	require.Len(t, wrote, 3)
	assert.JSONEq(t, `{"authorize":"tok-1"}`, wrote[0])
	assert.JSONEq(t, `{"ticks":"R_100","subscribe":1}`, wrote[1])
	assert.JSONEq(t, `{"ticks":"R_50","subscribe":1}`, wrote[2])
}

func TestEventsReachCallbackInOrder(t *testing.T) {
	c := newFakeConn()
	d := &scriptedDialer{next: func() *fakeConn { return c }}
	l := newTestLink(t, Credentials{}, d, nil)

	var mu sync.Mutex
	var got []string
	l.OnEvent(func(ev domain.Event) {
		mu.Lock()
		got = append(got, ev.Tick.Symbol)
		mu.Unlock()
	})

	require.NoError(t, l.Connect(context.Background()))
	c.inbound <- []byte(`{"tick":{"symbol":"A","quote":1,"epoch":1700000000}}`)
	c.inbound <- []byte(`{"tick":{"symbol":"B","quote":2,"epoch":1700000001}}`)
	c.inbound <- []byte(`{"tick":{"symbol":"C","quote":3,"epoch":1700000002}}`)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	mu.Lock()
	assert.Equal(t, []string{"A", "B", "C"}, got)
	mu.Unlock()
}

func TestDisconnectIsIdempotent(t *testing.T) {
	d := &scriptedDialer{next: func() *fakeConn { return newFakeConn() }}
	l := newTestLink(t, Credentials{}, d, nil)

	require.NoError(t, l.Connect(context.Background()))
	require.NoError(t, l.Disconnect())
	require.NoError(t, l.Disconnect())
	assert.Equal(t, StateDisconnected, l.State())

	err := l.Send([]byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrLinkClosed)
	assert.ErrorIs(t, l.Connect(context.Background()), domain.ErrLinkClosed)
}

func TestReconnectRecoversAfterDrop(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	conns := []*fakeConn{first, second}
	i := 0
	d := &scriptedDialer{}
	d.next = func() *fakeConn {
		c := conns[i%len(conns)]
		i++
		return c
	}
	l := newTestLink(t, Credentials{}, d, nil)

	require.NoError(t, l.Connect(context.Background()))
	first.Close() // drop the transport

	waitFor(t, time.Second, func() bool {
		return d.dials() == 2 && l.State() == StateConnected
	})
	assert.True(t, l.Healthy())

	// A successful reconnect resets the backoff to its base.
	l.mu.Lock()
	backoff := l.backoff
	l.mu.Unlock()
	assert.Equal(t, time.Millisecond, backoff)
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	conns := []*fakeConn{first, second}
	i := 0
	d := &scriptedDialer{}
	d.next = func() *fakeConn {
		c := conns[i%len(conns)]
		i++
		return c
	}
	l := newTestLink(t, Credentials{AppID: "1089"}, d, nil)

	require.NoError(t, l.Connect(context.Background()))
	require.NoError(t, l.SubscribeTicks("R_100"))
	require.NoError(t, l.SubscribeTicks("R_100")) // duplicate, tracked once
	require.NoError(t, l.SubscribeCandles("R_100", 60, 120))

	first.Close() // drop the transport
	waitFor(t, time.Second, func() bool {
		return d.dials() == 2 && l.State() == StateConnected
	})

	// The new transport carries the same streams without the caller
	// re-subscribing.
	wrote := second.written()
	require.Len(t, wrote, 2)
	assert.JSONEq(t, `{"ticks":"R_100","subscribe":1}`, wrote[0])
	assert.JSONEq(t, `{"ticks_history":"R_100","style":"candles","granularity":60,"count":120,"end":"latest","subscribe":1}`, wrote[1])
}

func TestConnectNotReadyBeforeQueueFlushed(t *testing.T) {
	c := newFakeConn() // handshake blocks until the authorize reply is fed
	d := &scriptedDialer{next: func() *fakeConn { return c }}
	l := newTestLink(t, Credentials{Token: "tok-1"}, d, nil)

	require.NoError(t, l.Send([]byte(`{"ping":1}`)))

	errCh := make(chan error, 1)
	go func() { errCh <- l.Connect(context.Background()) }()

	// The authorize frame is on the wire but unacknowledged. The link must
	// not report ready while its queue is still held back, or a concurrent
	// Send could jump ahead of older queued frames.
	waitFor(t, time.Second, func() bool { return len(c.written()) == 1 })
	assert.Equal(t, StateConnecting, l.State())
	assert.False(t, l.Healthy())

	c.inbound <- []byte(authorizeOK)
	require.NoError(t, <-errCh)
	assert.Equal(t, StateAuthorized, l.State())

	wrote := c.written()
	require.Len(t, wrote, 2)
	assert.JSONEq(t, `{"ping":1}`, wrote[1])
}

func TestReconnectExhaustionFailsLink(t *testing.T) {
	c := newFakeConn()
	d := &scriptedDialer{next: func() *fakeConn { return c }}
	l := newTestLink(t, Credentials{}, d, func(cfg *LinkConfig) {
		cfg.MaxReconnectAttempts = 2
	})

	require.NoError(t, l.Connect(context.Background()))
	d.fail(errors.New("connection refused"))
	c.Close()

	waitFor(t, 2*time.Second, func() bool { return l.State() == StateFailed })

	// Failed is terminal until the pool replaces the link.
	assert.ErrorIs(t, l.Connect(context.Background()), domain.ErrLinkFailed)
}

func TestReconnectBackoffDoublesToCap(t *testing.T) {
	c := newFakeConn()
	d := &scriptedDialer{next: func() *fakeConn { return c }}
	l := newTestLink(t, Credentials{}, d, func(cfg *LinkConfig) {
		cfg.BackoffBase = time.Millisecond
		cfg.BackoffCap = 4 * time.Millisecond
		cfg.MaxReconnectAttempts = 4
	})

	require.NoError(t, l.Connect(context.Background()))
	d.fail(errors.New("connection refused"))
	c.Close()

	waitFor(t, 2*time.Second, func() bool { return l.State() == StateFailed })

	// After base, 2x, then the cap clamps every later delay.
	l.mu.Lock()
	backoff := l.backoff
	l.mu.Unlock()
	assert.Equal(t, 4*time.Millisecond, backoff)
}

func TestFingerprintDistinguishesCredentials(t *testing.T) {
	a := Credentials{Token: "tok-1", AppID: "1089"}
	b := Credentials{Token: "tok-2", AppID: "1089"}

	assert.Equal(t, a.Fingerprint(), Credentials{Token: "tok-1", AppID: "1089"}.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
