// Package ingester owns the live subscription to the upstream event stream:
// connecting with resume-from-cursor, decoding frames, dispatching them to
// the record and identity handlers in arrival order, and advancing the
// cursor once each event's side effects are committed.
package ingester

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type ConnState int32

const (
	StateDisconnected = ConnState(iota)
	StateConnecting
	StateConnected
	StateStopping
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type Consumer struct {
	Host    string
	Logger  *slog.Logger
	Cursor  *CursorStore
	Records *RecordHandler

	// reconnect backoff starts at InitialBackoff, doubles up to MaxBackoff,
	// and resets after a successful connection
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxInitialRetries bounds dial attempts before the first successful
	// connection; exhausting them is the one fatal condition in ingestion
	MaxInitialRetries int

	// PersistCursorEvery flushes the cursor row every N handled events;
	// CursorSaveInterval drives the background ticker flush
	PersistCursorEvery int
	CursorSaveInterval time.Duration

	// events older than ReplayWindow are treated as catch-up replay and do
	// not trigger notification fan-out
	ReplayWindow time.Duration

	state   atomic.Int32
	lastSeq atomic.Int64

	conMu sync.Mutex
	con   *websocket.Conn
}

func (c *Consumer) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Consumer) setState(s ConnState) {
	// a requested stop is terminal
	if c.State() == StateStopping && s != StateStopping {
		return
	}
	c.state.Store(int32(s))
	connStateGauge.Set(float64(s))
}

// Stop suppresses further reconnect attempts and closes the active
// connection. The in-flight event handler is allowed to finish, so the
// cursor reflects a consistent position.
func (c *Consumer) Stop() {
	c.state.Store(int32(StateStopping))
	c.conMu.Lock()
	defer c.conMu.Unlock()
	if c.con != nil {
		c.con.Close()
	}
}

func (c *Consumer) stopping(ctx context.Context) bool {
	return c.State() == StateStopping || ctx.Err() != nil
}

// Run connects and processes events until Stop or context cancellation,
// reconnecting with capped exponential backoff. Only an unrecoverable
// failure to establish the initial connection returns an error.
func (c *Consumer) Run(ctx context.Context) error {
	u, err := url.Parse(c.Host)
	if err != nil {
		return fmt.Errorf("invalid upstream host: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/subscribe"

	defer c.flushCursor(context.Background())

	var retries int
	connectedEver := false
	for {
		if c.stopping(ctx) {
			return nil
		}

		cur, err := c.Cursor.ReadLastCursor(ctx)
		if err != nil {
			return err
		}
		if cur > 0 {
			u.RawQuery = fmt.Sprintf("cursor=%d", cur)
		}

		c.setState(StateConnecting)
		c.Logger.Info("connecting to event stream", "host", c.Host, "cursor", cur, "retries", retries)

		dialer := websocket.DefaultDialer
		con, _, err := dialer.DialContext(ctx, u.String(), http.Header{})
		if err != nil {
			c.setState(StateDisconnected)
			if c.stopping(ctx) {
				return nil
			}
			if !connectedEver && c.MaxInitialRetries > 0 && retries >= c.MaxInitialRetries {
				return fmt.Errorf("giving up on initial stream connection after %d attempts: %w", retries, err)
			}
			c.Logger.Warn("stream dial failed", "err", err, "retries", retries)
			sleepOrDone(ctx, backoff(retries, c.InitialBackoff, c.MaxBackoff))
			retries++
			continue
		}

		connectedEver = true
		retries = 0
		c.setState(StateConnected)
		c.Logger.Info("connected to event stream", "host", c.Host)

		err = c.handleConnection(ctx, con)
		c.setState(StateDisconnected)
		if c.stopping(ctx) {
			return nil
		}
		c.Logger.Warn("stream connection closed, reconnecting", "err", err)
	}
}

func (c *Consumer) handleConnection(ctx context.Context, con *websocket.Conn) error {
	c.conMu.Lock()
	c.con = con
	c.conMu.Unlock()

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := con.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					c.Logger.Warn("failed to ping upstream", "err", err)
				}
			case <-pingCtx.Done():
				con.Close()
				return
			}
		}
	}()

	var handled int
	lastSeq := int64(-1)
	for {
		if c.stopping(ctx) {
			return nil
		}

		_, data, err := con.ReadMessage()
		if err != nil {
			return err
		}
		framesReceivedCounter.Inc()

		evt, err := parseEvent(data)
		if err != nil {
			// malformed frames never stop the stream
			c.Logger.Warn("skipping malformed frame", "err", err)
			eventsSkippedCounter.WithLabelValues("malformed_frame").Inc()
			continue
		}

		if evt.Seq < lastSeq {
			c.Logger.Error("events out of order from stream", "seq", evt.Seq, "prev", lastSeq)
		}
		lastSeq = evt.Seq

		// phase one: process the event to completion (or deliberate skip)
		c.processEvent(ctx, evt)

		// phase two: only then does the cursor move
		c.lastSeq.Store(evt.Seq)
		handled++
		if c.PersistCursorEvery > 0 && handled%c.PersistCursorEvery == 0 {
			if err := c.Cursor.PersistCursor(ctx, evt.Seq); err != nil {
				c.Logger.Error("failed to persist cursor", "seq", evt.Seq, "err", err)
			}
		}
	}
}

// processEvent dispatches one event. Handler errors and panics are logged
// with full context and absorbed; the stream keeps moving.
func (c *Consumer) processEvent(ctx context.Context, evt *Event) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Error("event handler panic", "seq", evt.Seq, "kind", evt.Kind, "did", evt.Did, "panic", r)
		}
	}()

	eventsReceivedCounter.WithLabelValues(evt.Kind).Inc()
	live := c.isLive(evt)

	var err error
	switch evt.Kind {
	case EventKindCommit:
		err = c.Records.HandleCommit(ctx, evt, live)
	case EventKindIdentity:
		err = c.Records.Identity.HandleIdentity(ctx, evt.Identity.Did, evt.Identity.Handle)
	case EventKindAccount:
		err = c.Records.Identity.HandleAccount(ctx, evt.Account.Did, evt.Account.Active, evt.Account.Status)
	default:
		c.Logger.Warn("skipping unknown event kind", "seq", evt.Seq, "kind", evt.Kind)
		eventsSkippedCounter.WithLabelValues("unknown_kind").Inc()
		return
	}
	if err != nil {
		c.Logger.Error("event handler failed", "seq", evt.Seq, "kind", evt.Kind, "did", evt.Did, "err", err)
		eventsFailedCounter.WithLabelValues(evt.Kind).Inc()
		return
	}
	eventsHandledCounter.WithLabelValues(evt.Kind).Inc()
}

func (c *Consumer) isLive(evt *Event) bool {
	t := evt.eventTime()
	if t.IsZero() {
		return true
	}
	return time.Since(t) < c.ReplayWindow
}

// RunCursorSaver flushes the in-memory cursor position on an interval, and
// once more on shutdown.
func (c *Consumer) RunCursorSaver(ctx context.Context) {
	interval := c.CursorSaveInterval
	if interval == 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.flushCursor(context.Background())
			return
		case <-ticker.C:
			c.flushCursor(ctx)
		}
	}
}

func (c *Consumer) flushCursor(ctx context.Context) {
	seq := c.lastSeq.Load()
	if seq <= 0 {
		return
	}
	if err := c.Cursor.PersistCursor(ctx, seq); err != nil {
		c.Logger.Error("failed to persist cursor", "seq", seq, "err", err)
	}
}

func backoff(retries int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	dur := initial
	for i := 0; i < retries && dur < max; i++ {
		dur *= 2
	}
	if dur > max {
		dur = max
	}
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return dur + jitter
}

// sleepOrDone waits for d, returning early when the context is canceled so a
// shutdown never stalls behind a backoff.
func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
