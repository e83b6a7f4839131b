// Package client is the submitting side of an image upload: a push-channel
// connection that registers a client id and republishes stage updates on a
// progress.Bus, and a Submitter that posts the image and replays the outcome
// locally when the server could not push it.
package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/progress"
)

const (
	// LivePrefix starts ids generated for an open push channel.
	LivePrefix = "client_"
	// FallbackPrefix starts ids handed out when no channel could be opened.
	// The server never has a route for them.
	FallbackPrefix = "fallback_"

	defaultRegisterTimeout = 3 * time.Second
	dialTimeout            = 10 * time.Second
)

// ConnOptions configures a Conn.
type ConnOptions struct {
	// URL is the push endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Header is sent with the handshake (Origin, cookies).
	Header http.Header
	// RegisterTimeout bounds the wait for register_confirm. The id is used
	// anyway once it expires.
	RegisterTimeout time.Duration
	// Dialer defaults to a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// NewID generates live ids. Defaults to LivePrefix + uuid.
	NewID func() string
}

// Conn is the single shared push channel of a process. It is opened lazily by
// Connect, never reconnects on its own and forgets everything when the
// channel closes, so the next Connect starts over.
type Conn struct {
	opts   ConnOptions
	dialer *websocket.Dialer
	bus    *progress.Bus
	logger *zap.SugaredLogger
	group  singleflight.Group

	mu sync.Mutex
	ws *websocket.Conn
	// clientID is set once registration settled.
	clientID string
	// confirm routes register_confirm to the pending handshake.
	confirm func(clientID string)

	writeMu sync.Mutex
}

// NewConn creates an unopened connection that publishes updates on bus.
func NewConn(opts ConnOptions, bus *progress.Bus, log *zap.SugaredLogger) *Conn {
	if opts.RegisterTimeout <= 0 {
		opts.RegisterTimeout = defaultRegisterTimeout
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return LivePrefix + uuid.NewString() }
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = dialTimeout
		dialer = &d
	}
	return &Conn{
		opts:   opts,
		dialer: dialer,
		bus:    bus,
		logger: logger.OrNop(log).With(logger.FieldComponent, "push-client"),
	}
}

// Connect returns the live client id, opening and registering the channel
// if needed. Concurrent callers share one attempt. ctx only bounds this
// caller's wait, not the shared attempt.
func (c *Conn) Connect(ctx context.Context) (string, error) {
	if id, ok := c.current(); ok {
		return id, nil
	}

	ch := c.group.DoChan("connect", func() (interface{}, error) {
		if id, ok := c.current(); ok {
			return id, nil
		}
		return c.open()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ClientID returns a routable id when a channel can be opened and a fallback
// id otherwise. It never fails; a job must not be blocked on real-time
// delivery.
func (c *Conn) ClientID(ctx context.Context) string {
	id, err := c.Connect(ctx)
	if err != nil {
		fallback := FallbackPrefix + uuid.NewString()
		c.logger.Warnw("Push channel unavailable, using fallback id",
			logger.FieldClientID, fallback,
			logger.FieldError, err,
		)
		return fallback
	}
	return id
}

// Connected reports whether a registered channel is open.
func (c *Conn) Connected() bool {
	_, ok := c.current()
	return ok
}

// Close closes the channel if open.
func (c *Conn) Close() error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.reset(ws)
	return nil
}

func (c *Conn) current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID, c.ws != nil && c.clientID != ""
}

func (c *Conn) open() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	ws, resp, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "dial %s", c.opts.URL), errors.ErrServiceUnavailable)
	}

	id := c.opts.NewID()
	confirmed := make(chan struct{})
	closed := make(chan struct{})

	// settle is shared by the confirmation and the timeout: whichever runs
	// first wins and the other becomes a no-op.
	var settle sync.Once
	c.mu.Lock()
	c.ws = ws
	c.clientID = ""
	c.confirm = func(got string) {
		if got == id {
			settle.Do(func() { close(confirmed) })
		}
	}
	c.mu.Unlock()

	go c.readLoop(ws, closed)

	payload, err := progress.EncodeRegister(id)
	if err == nil {
		err = c.write(ws, payload)
	}
	if err != nil {
		c.reset(ws)
		return "", errors.Wrap(err, "send register")
	}

	timer := time.NewTimer(c.opts.RegisterTimeout)
	defer timer.Stop()

	select {
	case <-confirmed:
		c.logger.Debugw("Push channel registered", logger.FieldClientID, id)
	case <-timer.C:
		settle.Do(func() {})
		c.logger.Warnw("No register_confirm, proceeding with unconfirmed id",
			logger.FieldClientID, id,
			"timeout", c.opts.RegisterTimeout,
		)
	case <-closed:
		return "", errors.Mark(errors.New("push channel closed during registration"), errors.ErrServiceUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != ws {
		return "", errors.Mark(errors.New("push channel closed during registration"), errors.ErrServiceUnavailable)
	}
	c.clientID = id
	c.confirm = nil
	return id, nil
}

func (c *Conn) write(ws *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) readLoop(ws *websocket.Conn, closed chan struct{}) {
	defer close(closed)
	defer c.reset(ws)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.logger.Debugw("Push channel closed", logger.FieldError, err)
			return
		}

		msg, err := progress.Decode(data)
		if err != nil {
			c.logger.Debugw("Ignoring malformed push frame", logger.FieldError, err)
			continue
		}
		switch msg.Type {
		case progress.TypeRegisterConfirm:
			c.mu.Lock()
			confirm := c.confirm
			c.mu.Unlock()
			if confirm != nil {
				confirm(msg.ClientID)
			}
		case progress.TypeProcessingUpdate:
			u, err := msg.Update()
			if err != nil {
				c.logger.Warnw("Ignoring malformed processing update", logger.FieldError, err)
				continue
			}
			c.bus.Publish(u)
		default:
			c.logger.Debugw("Unknown push frame", "type", msg.Type)
		}
	}
}

// reset forgets ws if it is still the current channel and closes it.
func (c *Conn) reset(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
		c.clientID = ""
		c.confirm = nil
	}
	c.mu.Unlock()
	ws.Close()
}

// Offline is an IDSource for callers that never open a push channel. Every
// call returns a fresh fallback id, so the submitter always replays.
type Offline struct{}

// ClientID implements IDSource.
func (Offline) ClientID(context.Context) string {
	return FallbackPrefix + uuid.NewString()
}
