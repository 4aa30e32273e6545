// Package penne is a client for the NOODLES scene-sync protocol. A
// server holds the authoritative state of a graph of typed components;
// the client mirrors it locally, keeps the mirror consistent through
// ordered create/update/delete messages, and lets the application call
// server-side methods and react to server-emitted signals.
//
// A background network loop owns the websocket and mutates the store;
// reply callbacks cross over to the application through a feed/drain
// queue the application is expected to consume (ProcessCallbacks).
package penne

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/InsightCenterNoodles/Penne/nooid"
	"github.com/InsightCenterNoodles/Penne/penne_errors"
	"github.com/InsightCenterNoodles/Penne/utils"
	"github.com/InsightCenterNoodles/Penne/wire"
)

// Connection lifecycle states.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateActive
	StateClosed
)

type Options struct {
	// Name is the display name sent in the intro handshake. Defaults
	// to "Penne Client @ <addr>".
	Name string

	// Strict makes every dispatch error fatal to the network loop.
	// The default (lenient) logs and drops the offending message.
	Strict bool

	// OnConnected is queued onto the callback loop once the server
	// confirms the session.
	OnConnected func()

	// Delegates overrides the default delegate constructor per kind.
	Delegates map[nooid.Kind]DelegateFactory

	Logger utils.Logger

	// ConnectTimeout bounds the wait for the server's initialized
	// marker during Connect.
	ConnectTimeout time.Duration

	// InvokeTimeout, when non-zero, fails pending invocations whose
	// reply never arrives. Zero keeps them pending until shutdown.
	InvokeTimeout time.Duration

	// CallbackQueueLimit bounds the reply-callback handoff queue.
	CallbackQueueLimit int

	// Metrics optionally registers the client's prometheus collectors.
	Metrics prometheus.Registerer
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.CallbackQueueLimit == 0 {
		o.CallbackQueueLimit = 1024
	}
}

type pendingCall struct {
	onDone OnDone
	timer  *time.Timer
}

func (pc *pendingCall) stop() {
	if pc.timer != nil {
		pc.timer.Stop()
	}
}

// Client mirrors one server session.
type Client struct {
	log  utils.Logger
	opts Options
	name string

	conn      wire.Conn
	state     *Store
	delegates map[nooid.Kind]DelegateFactory

	// invocation ids are strictly increasing, 0-based, never reused
	seq     atomic.Uint64
	pending *xsync.MapOf[string, *pendingCall]

	callbacks *utils.FDQueue[func()]

	cstate    atomic.Int32
	closing   atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	runErr    error

	traceID string
	metrics *telemetry
	wg      sync.WaitGroup
}

// newClient assembles a client with its store, document singleton and
// collectors, but no transport yet.
func newClient(opts Options) *Client {
	c := &Client{
		log:       opts.Logger,
		opts:      opts,
		name:      opts.Name,
		delegates: defaultDelegates(),
		pending:   xsync.NewMapOf[string, *pendingCall](),
		callbacks: utils.NewFDQueue[func()](opts.CallbackQueueLimit),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		traceID:   uuid.Must(uuid.NewV7()).String(),
	}
	for kind, factory := range opts.Delegates {
		c.delegates[kind] = factory
	}
	c.metrics = newTelemetry(c, opts.Metrics)

	doc := c.delegates[nooid.KindDocument]()
	doc.base().init(c, nooid.ID{Kind: nooid.KindDocument}, nil)
	c.state = newStore(doc)
	return c
}

// Connect dials the server, performs the intro handshake and waits for
// the initialized marker. Handshake failures are always fatal here,
// regardless of the strictness mode: no usable client exists yet.
func Connect(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts.SetDefaults()

	c := newClient(opts)
	if c.name == "" {
		c.name = "Penne Client @ " + addr
	}

	c.cstate.Store(StateConnecting)
	conn, err := wire.Dial(ctx, addr)
	if err != nil {
		c.cstate.Store(StateClosed)
		return nil, fmt.Errorf("%w: %v", penne_errors.ErrConnect, err)
	}
	c.conn = conn
	c.log.Info("connected", "addr", addr, "trace_id", c.traceID)

	if err := c.Send(wire.TagIntro, wire.Intro{ClientName: c.name}); err != nil {
		_ = conn.Close()
		c.cstate.Store(StateClosed)
		return nil, fmt.Errorf("%w: %v", penne_errors.ErrConnect, err)
	}

	c.wg.Add(1)
	go c.run()

	select {
	case <-c.ready:
		return c, nil
	case <-c.done:
		if c.runErr != nil {
			return nil, fmt.Errorf("%w: %v", penne_errors.ErrConnect, c.runErr)
		}
		return nil, penne_errors.ErrConnect
	case <-time.After(opts.ConnectTimeout):
		_ = c.Shutdown()
		return nil, fmt.Errorf("%w: no initialized marker within %s",
			penne_errors.ErrConnect, opts.ConnectTimeout)
	case <-ctx.Done():
		_ = c.Shutdown()
		return nil, ctx.Err()
	}
}

// run is the network loop: read a frame, decode it, dispatch every
// message it contains, in wire order, with no parallelism.
func (c *Client) run() {
	defer c.wg.Done()

	ctx := context.Background()
	var runErr error

loop:
	for {
		frame, err := c.conn.ReadFrame(ctx)
		if err != nil {
			if !errors.Is(err, wire.ErrConnClosed) && !c.closing.Load() {
				runErr = err
			}
			break
		}
		msgs, err := wire.DecodeFrame(frame)
		if err != nil {
			if c.opts.Strict {
				runErr = err
				break
			}
			c.log.Warn("dropping undecodable frame", "err", err)
			continue
		}
		for _, msg := range msgs {
			if err := c.handle(msg.Tag, msg.Payload); err != nil {
				c.metrics.dispatchErrors.Inc()
				if c.opts.Strict {
					runErr = err
					break loop
				}
				c.log.Warn("dropping message", "tag", msg.Tag, "err", err)
			}
		}
	}

	c.teardown(runErr)
}

// teardown closes the session. Callbacks already queued still run;
// still-pending invocations are failed with ErrNotConnected so nothing
// is silently abandoned.
func (c *Client) teardown(err error) {
	c.runErr = err
	c.cstate.Store(StateClosed)
	_ = c.conn.Close()

	if err != nil {
		c.log.Error("network loop terminated", "err", err, "trace_id", c.traceID)
	}

	c.pending.Range(func(id string, pc *pendingCall) bool {
		c.pending.Delete(id)
		pc.stop()
		if pc.onDone != nil {
			cb := pc.onDone
			c.queueCallback(func() { cb(nil, penne_errors.ErrNotConnected) })
		}
		return true
	})
	_ = c.callbacks.Close()
	close(c.done)
}

// Invoke resolves a method by name and calls it. The context is nil for
// document-scoped methods.
func (c *Client) Invoke(name string, args []any, ictx *nooid.Context, onDone OnDone) (*wire.Invoke, error) {
	d, err := c.state.GetByName(nooid.KindMethod, name)
	if err != nil {
		return nil, err
	}
	return c.InvokeByID(d.NooID(), args, ictx, onDone)
}

// InvokeByID calls a server method, allocating the next invocation id
// and recording onDone (which may be nil) until the reply arrives. The
// constructed wire message is returned.
func (c *Client) InvokeByID(id nooid.ID, args []any, ictx *nooid.Context, onDone OnDone) (*wire.Invoke, error) {
	if c.cstate.Load() != StateActive {
		return nil, penne_errors.ErrNotConnected
	}

	invokeID := strconv.FormatUint(c.seq.Add(1)-1, 10)
	pc := &pendingCall{onDone: onDone}
	// register before arming the timer so an immediate expiry still
	// finds the entry
	c.pending.Store(invokeID, pc)
	if c.opts.InvokeTimeout > 0 {
		pc.timer = time.AfterFunc(c.opts.InvokeTimeout, func() {
			if stale, ok := c.pending.LoadAndDelete(invokeID); ok && stale.onDone != nil {
				cb := stale.onDone
				c.queueCallback(func() {
					cb(nil, fmt.Errorf("%w: invocation %s", penne_errors.ErrTimeout, invokeID))
				})
			}
		})
	}

	msg := &wire.Invoke{Method: id, Args: args, InvokeID: invokeID, Context: ictx}
	if err := c.Send(wire.TagInvoke, msg); err != nil {
		if stale, ok := c.pending.LoadAndDelete(invokeID); ok {
			stale.stop()
		}
		return nil, err
	}
	c.metrics.invokes.Inc()
	return msg, nil
}

// Send wraps payload with the outbound tag and writes it to the
// transport.
func (c *Client) Send(tag uint32, payload any) error {
	if c.cstate.Load() == StateClosed {
		return penne_errors.ErrNotConnected
	}
	data, err := wire.EncodeMessage(tag, payload)
	if err != nil {
		return err
	}
	c.log.Debug("sending message", "tag", tag)
	return c.conn.WriteFrame(context.Background(), data)
}

// Shutdown closes the transport and waits for the network loop to stop.
// It does not cancel callbacks already queued; pending invocations are
// failed with ErrNotConnected.
func (c *Client) Shutdown() error {
	c.closing.Store(true)
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// ProcessCallbacks drains the callback queue on the caller's goroutine,
// running reply and on-connected callbacks in arrival order. It returns
// nil once the client has shut down and every queued callback has run.
func (c *Client) ProcessCallbacks(ctx context.Context) error {
	for {
		batch, err := c.callbacks.Feed(ctx)
		for _, fn := range batch {
			fn()
		}
		if err != nil {
			if errors.Is(err, utils.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (c *Client) queueCallback(fn func()) {
	c.metrics.callbacksQueued.Inc()
	if err := c.callbacks.Drain(context.Background(), []func(){fn}); err != nil {
		c.log.Warn("callback dropped", "err", err)
	}
}

// State exposes the delegate store for lookups and iteration.
func (c *Client) State() *Store { return c.state }

// Document returns the singleton document delegate.
func (c *Client) Document() Delegate { return c.state.Document() }

// ConnState reports the connection lifecycle state.
func (c *Client) ConnState() int32 { return c.cstate.Load() }

// Done is closed when the network loop has fully stopped.
func (c *Client) Done() <-chan struct{} { return c.done }

// ShowMethods writes the public document-scoped methods the server
// currently exposes, hiding the protocol's own noo:: namespace.
// Developer tooling.
func (c *Client) ShowMethods(w io.Writer) {
	fmt.Fprintln(w, "-- Available Methods to call --")
	fmt.Fprintln(w, "client.Invoke(method_name, args, context, optional callback)")
	fmt.Fprintln(w, "-------------------------------------------------------------------")
	if doc, ok := c.state.Document().(*Document); ok {
		doc.ShowMethods(w)
	}
}
