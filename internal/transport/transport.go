package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/backend"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/network"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/api"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

// Mode - текущий канал доставки состояния
type Mode string

const (
	ModeSocket  Mode = "socket"
	ModePolling Mode = "polling"
)

// Fetcher - источник снапшота для polling-фолбэка.
// Реализуется HTTP-клиентом бэкенда.
type Fetcher interface {
	FetchSession(ctx context.Context) (*api.SessionPayload, error)
}

// Config - внешне настраиваемые параметры канала синхронизации
type Config struct {
	SocketURL  string // базовый ws:// URL, query добавляем сами
	SessionID  string
	Token      string // непрозрачный токен участника
	InviteCode string

	// Параметры переподключения сокета
	ReconnectBaseDelay   time.Duration
	ReconnectMultiplier  float64
	MaxReconnectAttempts uint

	// Интервал polling-фолбэка
	PollInterval time.Duration
}

// SyncTransport держит локальную копию сессии сходящейся с бэкендом.
//
// Основной канал - сокет; пока он жив, polling подавлен. Любой обрыв
// переводит в polling и запускает переподключение с экспоненциальной
// задержкой; после исчерпания попыток polling остается навсегда.
// Первый фетч выполняется безусловно, до установления сокета.
//
// Каждый принятый снапшот проходит монотонный version-гейт: снапшоты
// не новее текущего отбрасываются независимо от канала доставки.
type SyncTransport struct {
	cfg     Config
	fetcher Fetcher
	updates *network.Broadcaster[*domain.SessionState]
	log     *logrus.Entry

	live    atomic.Bool   // сокет установлен, polling подавлен
	attempt atomic.Uint32 // номер текущей попытки переподключения

	mu        sync.Mutex
	version   int64
	delivered bool
	conn      *socketConn

	fatal  chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, fetcher Fetcher) *SyncTransport {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMultiplier < 1 {
		cfg.ReconnectMultiplier = 2
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 5
	}
	return &SyncTransport{
		cfg:     cfg,
		fetcher: fetcher,
		updates: network.NewBroadcaster[*domain.SessionState](),
		fatal:   make(chan error, 1),
		log:     logger.WithComponent("transport"),
	}
}

// Start запускает фоновые циклы. Повторный вызов не поддерживается.
func (t *SyncTransport) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go t.pollLoop(ctx)

	if t.cfg.SocketURL != "" {
		t.wg.Add(1)
		go t.socketLoop(ctx)
	}
}

// Subscribe возвращает канал авторитетных снапшотов
func (t *SyncTransport) Subscribe() chan *domain.SessionState {
	return t.updates.Subscribe()
}

func (t *SyncTransport) Unsubscribe(ch chan *domain.SessionState) {
	t.updates.Unsubscribe(ch)
}

// Fatal отдает первую фатальную ошибку сессии (session not found и т.п.).
// Получив ее, вызывающий закрывает экран сессии.
func (t *SyncTransport) Fatal() <-chan error {
	return t.fatal
}

// Mode возвращает текущий канал доставки
func (t *SyncTransport) Mode() Mode {
	if t.live.Load() {
		return ModeSocket
	}
	return ModePolling
}

// ReconnectAttempt возвращает номер текущей попытки переподключения
// (0 = канал жив либо попытки еще не начинались)
func (t *SyncTransport) ReconnectAttempt() uint32 {
	return t.attempt.Load()
}

// Version возвращает маркер последнего принятого снапшота
func (t *SyncTransport) Version() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// Close останавливает все фоновые таймеры и горутины.
// Зависшие после Close таймеры - утечка, поэтому ждем wg.
func (t *SyncTransport) Close() {
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	if t.conn != nil {
		t.conn.close()
	}
	t.mu.Unlock()
	t.wg.Wait()
	t.updates.Close()
}

// --- POLLING ---

func (t *SyncTransport) pollLoop(ctx context.Context) {
	defer t.wg.Done()

	// Первая загрузка не ждет ни сокета, ни тикера
	t.pollOnce(ctx)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.live.Load() {
				continue
			}
			t.pollOnce(ctx)
		}
	}
}

func (t *SyncTransport) pollOnce(ctx context.Context) {
	payload, err := t.fetcher.FetchSession(ctx)
	if err != nil {
		if backend.Fatal(err) {
			t.reportFatal(err)
			return
		}
		// транзиент: следующий тик попробует снова
		t.log.WithError(err).Debug("Poll fetch failed")
		return
	}
	t.deliver(payload.ToDomain(t.cfg.InviteCode))
}

// --- SOCKET ---

func (t *SyncTransport) socketLoop(ctx context.Context) {
	defer t.wg.Done()

	for {
		conn, err := t.dialWithBackoff(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Попытки исчерпаны: polling остается единственным каналом
			t.log.WithError(err).Warn("Socket reconnect attempts exhausted, staying on polling")
			return
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		t.live.Store(true)
		t.log.Info("Socket channel established")

		go conn.writePump()
		conn.readPump(func(raw []byte) { t.handleMessage(conn, raw) })

		t.live.Store(false)
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		t.log.Warn("Socket channel lost, falling back to polling")
	}
}

// dialWithBackoff пробует открыть сокет: первая попытка сразу, дальше
// с экспоненциальной задержкой, всего не больше MaxReconnectAttempts.
func (t *SyncTransport) dialWithBackoff(ctx context.Context) (*socketConn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.ReconnectBaseDelay
	bo.Multiplier = t.cfg.ReconnectMultiplier
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Minute

	var lastErr error
	for attempt := uint(0); attempt < t.cfg.MaxReconnectAttempts; attempt++ {
		t.attempt.Store(uint32(attempt + 1))
		conn, err := dialSocket(ctx, t.cfg.SocketURL, t.cfg.SessionID, t.cfg.Token)
		if err == nil {
			t.attempt.Store(0)
			return conn, nil
		}
		lastErr = err
		t.log.WithError(err).WithField("attempt", attempt+1).Debug("Socket dial failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return nil, lastErr
}

// handleMessage разбирает входящее сообщение сокета.
// Ping отвечаем на месте и наблюдателям не пересылаем; все остальные
// типы несут полное состояние и проходят через version-гейт.
func (t *SyncTransport) handleMessage(conn *socketConn, raw []byte) {
	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.log.WithError(err).Warn("Malformed socket message")
		return
	}

	switch env.Type {
	case api.MessageTypePing:
		pong, err := json.Marshal(api.Pong{
			Type:      api.MessageTypePong,
			Timestamp: time.Now().UnixMilli(),
		})
		if err == nil {
			conn.enqueue(pong)
		}

	case api.MessageTypePong:
		// наш собственный ответ, эхо не интересно

	default:
		// Конверт бывает вложенным ({type, payload}) и плоским ({type, ...поля})
		body := []byte(env.Payload)
		if len(body) == 0 {
			body = raw
		}
		var payload api.SessionPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			t.log.WithError(err).WithField("type", env.Type).Warn("Undecodable state payload")
			return
		}
		t.deliver(payload.ToDomain(t.cfg.InviteCode))
	}
}

// --- ДОСТАВКА ---

// deliver пропускает снапшот через монотонный version-гейт и публикует его
func (t *SyncTransport) deliver(s *domain.SessionState) {
	t.mu.Lock()
	if t.delivered && s.Version <= t.version {
		t.mu.Unlock()
		t.log.WithFields(logrus.Fields{
			"version": s.Version,
			"current": t.version,
		}).Debug("Stale snapshot dropped")
		return
	}
	t.version = s.Version
	t.delivered = true
	t.mu.Unlock()

	t.updates.Publish(s)
}

func (t *SyncTransport) reportFatal(err error) {
	select {
	case t.fatal <- err:
	default:
	}
}
