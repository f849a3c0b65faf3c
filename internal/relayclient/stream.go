package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bridge-ledger/internal/domain"
)

// StreamConfig configures event stream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the capacity of the delivery channel.
	Buffer int
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            1024,
	}
}

// Stream follows the event stream of one ledger. Every connection asks for
// the journal after the highest contiguous sequence already delivered, so
// a dropped connection neither loses nor repeats events.
type Stream struct {
	endpoint string
	config   StreamConfig
	logger   zerolog.Logger

	events chan *domain.Event
	seen   *watermark

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Subscribe connects to the event stream of the ledger served at endpoint
// and delivers every event after seq. The first connection is made before
// Subscribe returns; later ones are retried until Close.
func Subscribe(ctx context.Context, endpoint string, after uint64, config *StreamConfig, logger zerolog.Logger) (*Stream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	wsURL, err := streamURL(endpoint)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		endpoint: wsURL,
		config:   cfg,
		logger:   logger.With().Str("component", "stream").Str("endpoint", wsURL).Logger(),
		events:   make(chan *domain.Event, cfg.Buffer),
		seen:     newWatermark(after),
		done:     make(chan struct{}),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// Events returns the delivery channel. It is closed by Close.
func (s *Stream) Events() <-chan *domain.Event {
	return s.events
}

// Last returns the highest sequence delivered with no gap below it.
func (s *Stream) Last() uint64 {
	return s.seen.last()
}

// streamURL maps an http(s) ledger endpoint to its websocket stream URL.
func streamURL(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path += "/v1/events/ws"
	return u.String(), nil
}

// connect establishes a connection resuming after the watermark.
func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	target := s.endpoint + "?after=" + strconv.FormatUint(s.seen.last(), 10)
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		s.connMu.Lock()
		defer s.connMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.config.WriteTimeout))
	})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// Close closes the connection and the delivery channel.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.config.WriteTimeout))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

// readLoop reads events and reconnects with exponential backoff when the
// connection drops.
func (s *Stream) readLoop() {
	defer s.wg.Done()

	delay := s.config.ReconnectDelay
	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.sleep(delay) {
				return
			}
			if err := s.reconnect(); err != nil {
				s.logger.Warn().Err(err).Dur("delay", delay).Msg("stream reconnect failed")
				delay = s.backoff(delay)
				continue
			}
			delay = s.config.ReconnectDelay
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseTryAgainLater {
				s.logger.Info().Uint64("last", s.seen.last()).Msg("stream lagged, resuming")
			} else {
				s.logger.Warn().Err(err).Msg("stream connection lost")
			}
			s.drop(conn)
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("undecodable stream message")
			continue
		}
		if !s.seen.observe(ev.Seq) {
			continue
		}
		select {
		case s.events <- &ev:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) reconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.connect(ctx)
}

func (s *Stream) drop(conn *websocket.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()
	conn.Close()
}

func (s *Stream) backoff(d time.Duration) time.Duration {
	d *= 2
	if d > s.config.MaxReconnectDelay {
		d = s.config.MaxReconnectDelay
	}
	return d
}

// sleep waits for d and reports false if the stream closed meanwhile.
func (s *Stream) sleep(d time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(d):
		return true
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			}
			s.connMu.Unlock()
		}
	}
}

// watermark tracks delivered sequences. Events may arrive out of order
// around a reconnect; anything at or below the contiguous mark, or already
// held above it, is a duplicate.
type watermark struct {
	mu      sync.Mutex
	mark    uint64
	pending map[uint64]struct{}
}

func newWatermark(after uint64) *watermark {
	return &watermark{mark: after, pending: make(map[uint64]struct{})}
}

// observe records seq and reports whether it is new.
func (w *watermark) observe(seq uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq <= w.mark {
		return false
	}
	if _, dup := w.pending[seq]; dup {
		return false
	}
	w.pending[seq] = struct{}{}
	for {
		if _, ok := w.pending[w.mark+1]; !ok {
			break
		}
		delete(w.pending, w.mark+1)
		w.mark++
	}
	return true
}

func (w *watermark) last() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mark
}
