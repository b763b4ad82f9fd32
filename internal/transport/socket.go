package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

// Настройки WebSocket
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // полный снапшот сессии бывает большим
)

// socketConn - живое сокет-соединение с бэкендом.
// Жизненный цикл: dial -> readPump (в горутине вызывающего) + writePump
// (в своей горутине) -> закрытие done по первой же ошибке любой из сторон.
type socketConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// dialSocket открывает сокет-канал. URL включает id сессии и токен участника.
func dialSocket(ctx context.Context, socketURL, sessionID, token string) (*socketConn, error) {
	u, err := url.Parse(socketURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("sessionId", sessionID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &socketConn{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}, nil
}

// readPump читает сообщения сервера и отдает их handler-у.
// Блокирует до обрыва соединения.
func (s *socketConn) readPump(handler func(raw []byte)) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Log.WithError(err).Warn("failed to set read deadline")
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Log.WithError(err).Warn("failed to set pong read deadline")
		}
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Log.Errorf("WS Error: %v", err)
			}
			return
		}
		handler(raw)
	}
}

// writePump отправляет данные серверу + Ping
func (s *socketConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			return

		case message := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Log.WithError(err).Warn("failed to set write deadline")
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Log.WithError(err).Debug("write message failed")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Log.WithError(err).Warn("failed to set ping write deadline")
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}

// enqueue ставит исходящее сообщение в очередь, не блокируясь
func (s *socketConn) enqueue(raw []byte) {
	select {
	case s.send <- raw:
	default:
		logger.Log.Warn("Socket send queue full, dropping message")
	}
}

func (s *socketConn) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			logger.Log.WithError(err).Debug("failed to close websocket connection")
		}
	})
}
