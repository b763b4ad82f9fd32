package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/backend"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/api"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// stubFetcher выдает снапшоты с растущим version при каждом вызове
type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	version int64
	err     error
}

func (f *stubFetcher) FetchSession(ctx context.Context) (*api.SessionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.version++
	return &api.SessionPayload{
		Status:    "active",
		UpdatedAt: 1000 + f.version,
	}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func statePayload(version int64) []byte {
	raw, _ := json.Marshal(map[string]interface{}{
		"type":      api.MessageTypeState,
		"status":    "active",
		"updatedAt": version,
	})
	return raw
}

func waitForState(t *testing.T, ch chan *domain.SessionState, timeout time.Duration) *domain.SessionState {
	t.Helper()
	select {
	case s := <-ch:
		require.NotNil(t, s)
		return s
	case <-time.After(timeout):
		t.Fatal("no snapshot delivered in time")
		return nil
	}
}

var upgraderTest = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestInitialPollDeliversFirstState(t *testing.T) {
	fetcher := &stubFetcher{}
	tr := New(Config{InviteCode: "ABCD42", PollInterval: time.Hour}, fetcher)
	sub := tr.Subscribe()

	tr.Start(context.Background())
	defer tr.Close()

	s := waitForState(t, sub, 2*time.Second)
	assert.Equal(t, "active", s.Status)
	assert.Equal(t, int64(1001), s.Version)
	assert.Equal(t, ModePolling, tr.Mode())
}

func TestSocketDeliversSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess-1", r.URL.Query().Get("sessionId"))
		conn, err := upgraderTest.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, statePayload(2000)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, statePayload(2001)))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	fetcher := &stubFetcher{err: context.DeadlineExceeded} // polling молчит
	tr := New(Config{
		SocketURL:    wsURL(srv),
		SessionID:    "sess-1",
		InviteCode:   "ABCD42",
		PollInterval: time.Hour,
	}, fetcher)
	sub := tr.Subscribe()

	tr.Start(context.Background())
	defer tr.Close()

	first := waitForState(t, sub, 2*time.Second)
	assert.Equal(t, int64(2000), first.Version)
	second := waitForState(t, sub, 2*time.Second)
	assert.Equal(t, int64(2001), second.Version)
}

func TestPingAnsweredInPlaceAndNotForwarded(t *testing.T) {
	gotPong := make(chan api.Pong, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgraderTest.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var pong api.Pong
		if err := conn.ReadJSON(&pong); err == nil {
			gotPong <- pong
		}
	}))
	defer srv.Close()

	fetcher := &stubFetcher{err: context.DeadlineExceeded}
	tr := New(Config{SocketURL: wsURL(srv), InviteCode: "ABCD42", PollInterval: time.Hour}, fetcher)
	sub := tr.Subscribe()

	tr.Start(context.Background())
	defer tr.Close()

	select {
	case pong := <-gotPong:
		assert.Equal(t, api.MessageTypePong, pong.Type)
		assert.NotZero(t, pong.Timestamp)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received pong")
	}

	// ping наблюдателям не пересылается
	select {
	case s := <-sub:
		t.Fatalf("unexpected snapshot delivered: %+v", s)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStaleSnapshotDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgraderTest.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, statePayload(3000)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, statePayload(2500))) // устаревший
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, statePayload(3001)))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	fetcher := &stubFetcher{err: context.DeadlineExceeded}
	tr := New(Config{SocketURL: wsURL(srv), InviteCode: "ABCD42", PollInterval: time.Hour}, fetcher)
	sub := tr.Subscribe()

	tr.Start(context.Background())
	defer tr.Close()

	assert.Equal(t, int64(3000), waitForState(t, sub, 2*time.Second).Version)
	assert.Equal(t, int64(3001), waitForState(t, sub, 2*time.Second).Version)
}

// Сокет умирает после пары сообщений - клиент обязан продолжать получать
// обновления через polling не позже чем через один интервал.
func TestSocketLossFallsBackToPolling(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&dials, 1) > 1 {
			// повторные подключения отвергаем, чтобы фолбэк был окончательным
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		conn, err := upgraderTest.Upgrade(w, r, nil)
		require.NoError(t, err)

		conn.WriteMessage(websocket.TextMessage, statePayload(4000))
		conn.Close() // обрыв
	}))
	defer srv.Close()

	fetcher := &stubFetcher{version: 4000} // poll отдает версии новее сокетных
	tr := New(Config{
		SocketURL:            wsURL(srv),
		InviteCode:           "ABCD42",
		PollInterval:         50 * time.Millisecond,
		ReconnectBaseDelay:   10 * time.Millisecond,
		MaxReconnectAttempts: 1,
	}, fetcher)
	sub := tr.Subscribe()

	tr.Start(context.Background())
	defer tr.Close()

	deadline := time.After(3 * time.Second)
	seenPolled := false
	for !seenPolled {
		select {
		case s := <-sub:
			if s.Version > 4000 {
				seenPolled = true
			}
		case <-deadline:
			t.Fatal("polling never took over after socket loss")
		}
	}
	assert.Equal(t, ModePolling, tr.Mode())
}

func TestReconnectExhaustionKeepsPolling(t *testing.T) {
	// сервер без websocket - каждый dial проваливается
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := &stubFetcher{}
	tr := New(Config{
		SocketURL:            wsURL(srv),
		InviteCode:           "ABCD42",
		PollInterval:         30 * time.Millisecond,
		ReconnectBaseDelay:   5 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}, fetcher)
	sub := tr.Subscribe()

	tr.Start(context.Background())
	defer tr.Close()

	// polling живет и после исчерпания попыток
	waitForState(t, sub, 2*time.Second)
	waitForState(t, sub, 2*time.Second)
	time.Sleep(200 * time.Millisecond)
	waitForState(t, sub, 2*time.Second)
	assert.Equal(t, ModePolling, tr.Mode())

	// остановка ровно на настроенном максимуме попыток
	assert.Equal(t, int32(3), atomic.LoadInt32(&dials))
	assert.Equal(t, uint32(3), tr.ReconnectAttempt())
}

func TestCloseCancelsBackgroundTimers(t *testing.T) {
	fetcher := &stubFetcher{}
	tr := New(Config{InviteCode: "ABCD42", PollInterval: 20 * time.Millisecond}, fetcher)
	sub := tr.Subscribe()

	tr.Start(context.Background())
	waitForState(t, sub, 2*time.Second)

	tr.Close()
	settled := fetcher.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, fetcher.callCount(), "poll timer survived Close")
}

func TestFatalFetchErrorSurfaced(t *testing.T) {
	fetcher := &stubFetcher{err: backend.ErrSessionNotFound}
	tr := New(Config{InviteCode: "ABCD42", PollInterval: time.Hour}, fetcher)

	tr.Start(context.Background())
	defer tr.Close()

	select {
	case err := <-tr.Fatal():
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fatal error never surfaced")
	}
}
