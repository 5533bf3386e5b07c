// Package livefeed connects the reconciliation engine to a session feed
// over websocket. The feed multiplexes three event kinds onto one socket:
// transcription deltas, direct chat messages, and raw side-channel data.
//
// The client runs a single read pump goroutine and dispatches each frame
// to a [Handler]; handlers are invoked in arrival order, one at a time,
// preserving per-channel ordering. Outbound text is published as chat
// frames in caller order.
package livefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxkit/voxkit/pkg/convo"
	"github.com/voxkit/voxkit/pkg/convo/sidechan"
	"github.com/voxkit/voxkit/pkg/jsontime"
)

// Frame kinds on the feed socket.
const (
	KindTranscription = "transcription"
	KindChat          = "chat"
	KindData          = "data"
)

// Frame is the feed's wire envelope.
type Frame struct {
	Kind        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	Timestamp   jsontime.Milli  `json:"timestamp,omitempty"`
	Participant string          `json:"participantIdentity,omitempty"`
	Text        string          `json:"text,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Handler receives decoded feed events in arrival order.
type Handler interface {
	HandleTranscription(convo.TranscriptionEvent)
	HandleChat(convo.ChatMessage)
	HandleData(raw []byte)
}

// Client is a websocket feed connection.
type Client struct {
	conn     *websocket.Conn
	handler  Handler
	log      convo.Logger
	identity string

	writeMu sync.Mutex
	done    chan struct{}
	closer  sync.Once

	errMu sync.Mutex
	err   error
}

// Options configures Dial.
type Options struct {
	// Identity stamps outbound chat frames. Optional.
	Identity string

	// Logger receives diagnostics. Optional.
	Logger convo.Logger
}

// Dial connects to the feed and starts the read pump.
func Dial(ctx context.Context, url string, h Handler, opts *Options) (*Client, error) {
	if h == nil {
		return nil, fmt.Errorf("livefeed: handler is required")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("livefeed: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		handler: h,
		log:     convo.DefaultLogger(),
		done:    make(chan struct{}),
	}
	if opts != nil {
		c.identity = opts.Identity
		if opts.Logger != nil {
			c.log = opts.Logger
		}
	}
	go c.readPump()
	return c, nil
}

func (c *Client) readPump() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debugf("livefeed: dropping undecodable frame: %v", err)
			continue
		}
		c.dispatch(&f)
	}
}

func (c *Client) dispatch(f *Frame) {
	switch f.Kind {
	case KindTranscription:
		c.handler.HandleTranscription(convo.TranscriptionEvent{
			ID:          f.ID,
			Timestamp:   f.Timestamp,
			Participant: f.Participant,
			Text:        f.Text,
		})
	case KindChat:
		c.handler.HandleChat(convo.ChatMessage{
			ID:          f.ID,
			Timestamp:   f.Timestamp,
			Participant: f.Participant,
			Text:        f.Text,
		})
	case KindData:
		c.handler.HandleData(f.Data)
	default:
		c.log.Debugf("livefeed: dropping frame of unknown kind %q", f.Kind)
	}
}

// SendText publishes one outbound chat frame. Safe for concurrent use;
// frames go out in the order calls acquire the write lock, so a single
// caller's ordering is preserved.
func (c *Client) SendText(ctx context.Context, text string) error {
	frame := Frame{
		Kind:        KindChat,
		ID:          uuid.NewString(),
		Timestamp:   jsontime.NowMilli(),
		Participant: c.identity,
		Text:        text,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("livefeed: marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("livefeed: connection closed")
	default:
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("livefeed: write frame: %w", err)
	}
	return nil
}

// Done is closed when the read pump exits, either from Close or a
// transport error (see Err).
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the read pump's terminal error, if any. Normal closure
// reports nil.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if websocket.IsCloseError(c.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closer.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// EngineHandler adapts an [convo.Engine] to the [Handler] interface,
// decoding side-channel data frames through [sidechan] on the way in.
// Malformed or unknown payloads are logged and dropped; the feed keeps
// flowing.
func EngineHandler(e *convo.Engine, log convo.Logger) Handler {
	if log == nil {
		log = convo.DefaultLogger()
	}
	return &engineHandler{engine: e, log: log}
}

type engineHandler struct {
	engine *convo.Engine
	log    convo.Logger
}

func (h *engineHandler) HandleTranscription(ev convo.TranscriptionEvent) {
	h.engine.HandleTranscription(ev)
}

func (h *engineHandler) HandleChat(ev convo.ChatMessage) {
	h.engine.HandleChat(ev)
}

func (h *engineHandler) HandleData(raw []byte) {
	env, err := sidechan.Decode(raw)
	if err != nil {
		h.log.Debugf("livefeed: dropping side-channel payload: %v", err)
		return
	}
	switch env.Type {
	case sidechan.TypeOptionOffer:
		offer, err := env.OptionOffer()
		if err != nil {
			h.log.Debugf("livefeed: dropping offer payload: %v", err)
			return
		}
		h.engine.HandleOffer(offer)
	default:
		h.log.Debugf("livefeed: ignoring side-channel type %q", env.Type)
	}
}
