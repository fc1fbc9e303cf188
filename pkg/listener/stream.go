package listener

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/metrics"
)

const reconnectDelay = 5 * time.Second

// Confirmation is one raw confirmed block before classification, as
// delivered by the stream or synthesized by the receivable poller.
type Confirmation struct {
	Account string
	Hash    string
	Amount  string // raw
	Block   BlockBody
}

// BlockBody is the block contents of a confirmation.
type BlockBody struct {
	Type           string `json:"type"`
	Account        string `json:"account"`
	Previous       string `json:"previous"`
	Representative string `json:"representative"`
	Balance        string `json:"balance"`
	Link           string `json:"link"`
	LinkAsAccount  string `json:"link_as_account"`
	Subtype        string `json:"subtype"`
}

// the node sometimes delivers the block inline and sometimes as a
// JSON-encoded string; both shapes are accepted here and nowhere else.
func (b *BlockBody) UnmarshalJSON(data []byte) error {
	type plain BlockBody
	var direct plain
	if err := json.Unmarshal(data, &direct); err == nil {
		*b = BlockBody(direct)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var reparsed plain
	if err := json.Unmarshal([]byte(s), &reparsed); err != nil {
		return err
	}
	*b = BlockBody(reparsed)
	return nil
}

type streamFrame struct {
	Topic   string `json:"topic"`
	Message struct {
		Account string    `json:"account"`
		Hash    string    `json:"hash"`
		Amount  string    `json:"amount"`
		Block   BlockBody `json:"block"`
	} `json:"message"`
}

// ParseFrame decodes one websocket text message. Non-confirmation
// frames (subscribe acks, keepalives) return ok=false with no error;
// unparsable payloads return a malformed-frame error.
func ParseFrame(data []byte) (Confirmation, bool, error) {
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Confirmation{}, false, nano.NewErr(nano.MalformedFrame, "stream frame: %v", err)
	}
	if frame.Message.Account == "" || frame.Message.Hash == "" {
		return Confirmation{}, false, nil
	}
	return Confirmation{
		Account: frame.Message.Account,
		Hash:    frame.Message.Hash,
		Amount:  frame.Message.Amount,
		Block:   frame.Message.Block,
	}, true, nil
}

// control frames

type subscribeFrame struct {
	Action  string           `json:"action"`
	Topic   string           `json:"topic"`
	Options subscribeOptions `json:"options"`
}

type subscribeOptions struct {
	Accounts []string `json:"accounts"`
}

type updateFrame struct {
	Action  string        `json:"action"`
	Topic   string        `json:"topic"`
	Options updateOptions `json:"options"`
}

type updateOptions struct {
	AccountsAdd []string `json:"accounts_add,omitempty"`
	AccountsDel []string `json:"accounts_del,omitempty"`
}

/*
StreamClient holds the persistent websocket to the node's confirmation
feed for one currency.

State machine: Disconnected -> Connecting -> Subscribed -> Disconnected
in a loop, with a fixed backoff between attempts. The loop exits when
the watch set becomes empty or the client is stopped. Frames are
processed in receipt order on a single goroutine; at most one live
connection exists per currency. No ordering is promised against the
poller path delivering the same fact; the payment idempotency key
absorbs duplicates.
*/
type StreamClient struct {
	cryptoCode string
	url        string
	registry   *Registry
	handle     func(Confirmation)

	mu      sync.Mutex // guards conn, cancel, running, gen and outbound writes
	conn    *websocket.Conn
	cancel  context.CancelFunc
	running bool
	gen     uint64 // bumped per Start; a stale run loop must not clear running

	root context.Context
}

func NewStreamClient(root context.Context, cryptoCode, url string, registry *Registry, handle func(Confirmation)) *StreamClient {
	return &StreamClient{
		cryptoCode: cryptoCode,
		url:        url,
		registry:   registry,
		handle:     handle,
		root:       root,
	}
}

// Start launches the connection loop if it isn't already running.
func (s *StreamClient) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(s.root)
	s.cancel = cancel
	s.running = true
	s.gen++
	go s.run(ctx, s.gen)
}

// Stop cancels the loop and closes any live connection.
func (s *StreamClient) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.running = false
}

// Update sends an incremental accounts_add/accounts_del control frame
// on an open connection. A delta avoids racing a full resubscribe
// against frames already in flight. No-op while disconnected: the next
// subscribe carries the full snapshot anyway.
func (s *StreamClient) Update(add, del []string) {
	if len(add) == 0 && len(del) == 0 {
		return
	}
	frame := updateFrame{
		Action: "update",
		Topic:  "confirmation",
		Options: updateOptions{
			AccountsAdd: add,
			AccountsDel: del,
		},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(frame); err != nil {
		log.Printf("Stream %s: update frame failed: %v", s.cryptoCode, err)
	}
}

func (s *StreamClient) run(ctx context.Context, gen uint64) {
	defer s.finish(gen)

	for ctx.Err() == nil {
		if s.registry.Size() == 0 {
			return
		}

		log.Printf("Stream %s: connecting to %s", s.cryptoCode, s.url)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			log.Printf("Stream %s: connect failed: %v", s.cryptoCode, err)
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		sub := subscribeFrame{
			Action:  "subscribe",
			Topic:   "confirmation",
			Options: subscribeOptions{Accounts: s.registry.Addresses()},
		}
		err = conn.WriteJSON(sub)
		s.mu.Unlock()
		if err != nil {
			log.Printf("Stream %s: subscribe failed: %v", s.cryptoCode, err)
			s.dropConn()
			if !s.sleep(ctx) {
				return
			}
			continue
		}
		log.Printf("Stream %s: subscribed for %d accounts", s.cryptoCode, s.registry.Size())

		s.readLoop(ctx, conn)
		s.dropConn()

		if ctx.Err() != nil || s.registry.Size() == 0 {
			return
		}
		if !s.sleep(ctx) {
			return
		}
	}
}

func (s *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for ctx.Err() == nil {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Stream %s: read failed: %v", s.cryptoCode, err)
			}
			return
		}
		s.consume(data)
	}
}

// consume classifies one inbound frame; malformed frames are counted
// and dropped without costing the connection.
func (s *StreamClient) consume(data []byte) {
	c, ok, err := ParseFrame(data)
	if err != nil {
		metrics.FramesDiscarded.WithLabelValues(s.cryptoCode).Inc()
		log.Printf("Stream %s: %v", s.cryptoCode, err)
		return
	}
	if ok {
		s.handle(c)
	}
}

// finish retires one run loop. Stop followed by a quick Start can leave
// a cancelled loop exiting after a fresh one launched; only the loop
// that still owns the current generation may clear the running flag.
func (s *StreamClient) finish(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.running = false
	}
	s.mu.Unlock()
}

func (s *StreamClient) dropConn() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}

// sleep waits out the reconnect backoff; false means the context died.
func (s *StreamClient) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(reconnectDelay):
		return true
	}
}
