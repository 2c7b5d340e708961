package esl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrNotConnected is returned by SendCommand while the switch session is
// down. Commands are never queued across a disconnect.
var ErrNotConnected = errors.New("esl: not connected")

const (
	// DefaultReconnectDelay is the fixed wait between reconnect attempts.
	DefaultReconnectDelay = 5 * time.Second

	defaultDialTimeout = 10 * time.Second
)

// EventHandler receives every decoded event on the feed, including events
// the caller does not care about.
type EventHandler func(Event)

// Options configures a Session.
type Options struct {
	Addr     string
	Password string

	// ReconnectDelay defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration
	DialTimeout    time.Duration

	Logger *slog.Logger
}

// Session owns the single authenticated control-plane connection to the
// switch. Run maintains the connection for the life of the context,
// reconnecting after a fixed delay on any transport failure. Commands are
// synchronous request/reply pairs serialized over the socket; events arriving
// between a command and its reply are dispatched without blocking the
// in-flight command.
type Session struct {
	opts    Options
	handler EventHandler

	sendMu sync.Mutex // serializes command round trips

	mu      sync.Mutex // guards conn, pending, and stale
	conn    net.Conn
	pending chan string
	stale   int // replies owed to abandoned commands, dropped on arrival
}

// NewSession creates a Session. Call OnEvent before Run.
func NewSession(opts Options) *Session {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{opts: opts}
}

// OnEvent registers the handler for the event feed. The handler runs on the
// session's read goroutine and must not block on SendCommand.
func (s *Session) OnEvent(h EventHandler) {
	s.handler = h
}

// Connected reports whether a live authenticated connection exists.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Run connects to the switch and processes the event feed until ctx is
// cancelled. Transport failures trigger a reconnect after the configured
// fixed delay, indefinitely.
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.opts.Logger.Warn("switch session error, reconnecting",
			"error", err, "delay", s.opts.ReconnectDelay)
		select {
		case <-time.After(s.opts.ReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) runOnce(ctx context.Context) error {
	s.opts.Logger.Info("connecting to switch", "addr", s.opts.Addr)

	conn, err := net.DialTimeout("tcp", s.opts.Addr, s.opts.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial switch: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context is cancelled so the read loop
	// unblocks promptly.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	parser := NewParser(conn)
	if err := s.handshake(conn, parser); err != nil {
		return err
	}

	s.opts.Logger.Info("switch session established, processing events")

	s.setConn(conn)
	defer s.clearConn()

	for {
		msg, err := parser.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("switch connection closed: %w", err)
		}

		switch msg.ContentType() {
		case "text/event-plain":
			if s.handler != nil {
				s.handler(DecodeEvent(msg.Body))
			}
		case "command/reply":
			s.deliverReply(msg.ReplyText())
		case "api/response":
			s.deliverReply(strings.TrimSpace(msg.Body))
		case "text/disconnect-notice":
			return fmt.Errorf("switch sent disconnect notice")
		default:
			// auth/request after login, heartbeats, anything else
		}
	}
}

// handshake performs the auth exchange and subscribes to the full event feed.
func (s *Session) handshake(conn net.Conn, parser *Parser) error {
	msg, err := parser.Next()
	if err != nil {
		return fmt.Errorf("reading auth request: %w", err)
	}
	if ct := msg.ContentType(); ct != "auth/request" {
		return fmt.Errorf("expected auth/request, got %q", ct)
	}

	if _, err := fmt.Fprintf(conn, "auth %s\n\n", s.opts.Password); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}
	msg, err = parser.Next()
	if err != nil {
		return fmt.Errorf("reading auth reply: %w", err)
	}
	if !strings.HasPrefix(msg.ReplyText(), "+OK") {
		return fmt.Errorf("switch rejected credentials: %s", msg.ReplyText())
	}

	if _, err := fmt.Fprint(conn, "event plain ALL\n\n"); err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	msg, err = parser.Next()
	if err != nil {
		return fmt.Errorf("reading subscribe reply: %w", err)
	}
	if !strings.HasPrefix(msg.ReplyText(), "+OK") {
		return fmt.Errorf("event subscription refused: %s", msg.ReplyText())
	}
	return nil
}

// SendCommand sends one synchronous command and returns its raw reply text.
// The caller parses success/failure from the leading +OK / -ERR token. While
// disconnected it fails fast with ErrNotConnected.
func (s *Session) SendCommand(ctx context.Context, cmd string) (string, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	reply := make(chan string, 1)
	s.pending = reply
	s.mu.Unlock()

	if _, err := fmt.Fprintf(conn, "%s\n\n", cmd); err != nil {
		// The command never reached the switch, so no reply is owed.
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		return "", fmt.Errorf("writing command: %w", err)
	}

	select {
	case text, ok := <-reply:
		if !ok {
			return "", ErrNotConnected
		}
		return text, nil
	case <-ctx.Done():
		s.abandonPending()
		return "", ctx.Err()
	}
}

func (s *Session) setConn(conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// clearConn marks the session disconnected and fails any in-flight command.
// A fresh connection owes no replies, so the stale count resets too.
func (s *Session) clearConn() {
	s.mu.Lock()
	s.conn = nil
	s.stale = 0
	if s.pending != nil {
		close(s.pending)
		s.pending = nil
	}
	s.mu.Unlock()
}

// deliverReply routes one reply off the wire. Replies owed to abandoned
// commands are consumed here so they can never reach a later command's
// pending channel.
func (s *Session) deliverReply(text string) {
	s.mu.Lock()
	if s.stale > 0 {
		s.stale--
		s.mu.Unlock()
		return
	}
	if s.pending != nil {
		s.pending <- text
		s.pending = nil
	}
	s.mu.Unlock()
}

// abandonPending gives up on the in-flight command. The switch will still
// send its reply, so one is recorded as owed unless it already arrived.
func (s *Session) abandonPending() {
	s.mu.Lock()
	if s.pending != nil {
		s.pending = nil
		s.stale++
	}
	s.mu.Unlock()
}
