package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/pkg/config"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// Stream timing parameters
const (
	pingInterval          = 30 * time.Second
	handshakeTimeout      = 10 * time.Second
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// Stream receives push execution notices over the broker WebSocket.
//
// Push notices arrive faster than the poll loop and feed the same
// snapshot path, which dedupes; losing the stream degrades to polling
// rather than losing fills.
type Stream struct {
	cfg    config.BrokerConfig
	logger *logger.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	connected bool

	// Callbacks
	onNotice func(orderID string, snap contracts.StatusSnapshot)
	onError  func(error)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStream creates a WebSocket execution stream
func NewStream(cfg config.BrokerConfig, log *logger.Logger) *Stream {
	return &Stream{
		cfg:    cfg,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// OnNotice registers the execution notice callback
func (s *Stream) OnNotice(fn func(orderID string, snap contracts.StatusSnapshot)) { s.onNotice = fn }

// OnError registers the error callback
func (s *Stream) OnError(fn func(error)) { s.onError = fn }

// Connect establishes the stream and starts the read and ping loops
func (s *Stream) Connect(ctx context.Context) error {
	if s.cfg.WSURL == "" {
		return fmt.Errorf("broker WS URL not configured")
	}

	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	s.logger.Info("Broker execution stream connected")
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.WSURL, nil)
	if err != nil {
		return err
	}

	// 인증 메시지 전송
	auth := map[string]string{
		"type":       "auth",
		"api_key":    s.cfg.APIKey,
		"api_secret": s.cfg.APISecret,
		"account_no": s.cfg.AccountNo,
	}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return fmt.Errorf("auth message: %w", err)
	}

	s.conn = conn
	s.connected = true
	return nil
}

// Disconnect closes the stream and waits for the loops to exit
func (s *Stream) Disconnect() error {
	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.connected = false
	}
	s.connMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Broker execution stream disconnected")
	return nil
}

// executionNotice is the wire form of a push execution message
type executionNotice struct {
	Type     string         `json:"type"`
	OrderRef string         `json:"client_ref"`
	Snapshot brokerSnapshot `json:"order"`
}

// readLoop consumes stream messages, reconnecting with backoff
func (s *Stream) readLoop() {
	defer s.wg.Done()

	delay := reconnectInitialDelay

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}

			s.logger.WithError(err).Warn("Execution stream read failed, reconnecting")
			if s.onError != nil {
				s.onError(err)
			}

			time.Sleep(delay)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}

			ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
			rerr := s.connect(ctx)
			cancel()
			if rerr != nil {
				s.logger.WithError(rerr).Warn("Execution stream reconnect failed")
			}
			continue
		}

		delay = reconnectInitialDelay

		var notice executionNotice
		if err := json.Unmarshal(data, &notice); err != nil {
			s.logger.WithError(err).Debug("Unparseable stream message skipped")
			continue
		}

		if notice.Type != "execution" || s.onNotice == nil {
			continue
		}

		s.onNotice(notice.OrderRef, notice.Snapshot.toSnapshot(notice.Snapshot.OrderID))
	}
}

// pingLoop keeps the connection alive
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.connMu.Lock()
			if s.connected {
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.logger.WithError(err).Debug("Ping failed")
				}
			}
			s.connMu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
