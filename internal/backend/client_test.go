package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/engine"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/api"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// recorded - что сервер увидел в последнем запросе
type recorded struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newTestServer(t *testing.T, status int, respBody interface{}) (*Client, *recorded, func()) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		rec.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		if respBody != nil {
			json.NewEncoder(w).Encode(respBody)
		}
	}))

	client, err := New(srv.URL, "ABCD42", "tok-секрет", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client, rec, srv.Close
}

func TestFetchSessionDecodesPayload(t *testing.T) {
	payload := api.SessionPayload{
		Status: "active",
		Quest:  "Гробница аннигиляции",
		Characters: []api.CharacterView{
			{ID: "char_1", Name: "Раэль", HP: 20, MaxHP: 24, Speed: 6},
		},
		MapState: &api.MapPayload{
			Width:  2,
			Height: 1,
			Terrain: [][]api.TerrainCell{
				{{Type: "floor", Cost: 1}, {Type: "wall", Cost: 999, Blocked: true}},
			},
			Tokens: []api.TokenView{
				{ID: "tok_1", TokenType: "player", CharacterID: "char_1", X: 0, Y: 0, Label: "Р"},
			},
		},
		UpdatedAt: 1700000000000,
	}
	client, rec, closeSrv := newTestServer(t, http.StatusOK, payload)
	defer closeSrv()

	got, err := client.FetchSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/sessions/ABCD42", rec.path)
	assert.Equal(t, "Bearer tok-секрет", rec.auth)

	state := got.ToDomain("ABCD42")
	assert.Equal(t, "active", state.Status)
	assert.Equal(t, int64(1700000000000), state.Version)
	require.NotNil(t, state.Grid)
	assert.True(t, state.Grid.Cells[1][0].Blocked)
	tok := state.Grid.TokenByID("tok_1")
	require.NotNil(t, tok)
	assert.Equal(t, "char_1", tok.EntityID)
}

func TestFetchMapPath(t *testing.T) {
	client, rec, closeSrv := newTestServer(t, http.StatusOK, api.MapPayload{Width: 3, Height: 3})
	defer closeSrv()

	got, err := client.FetchMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/sessions/ABCD42/map", rec.path)
	assert.Equal(t, 3, got.Width)
}

func TestUpsertTokenRequestShape(t *testing.T) {
	client, rec, closeSrv := newTestServer(t, http.StatusOK, nil)
	defer closeSrv()

	err := client.UpsertToken(context.Background(), engine.TokenPlacement{
		TokenID:            "tok_3",
		TokenType:          "npc",
		EntityID:           "goblin_1",
		X:                  4,
		Y:                  2,
		Label:              "Гоблин",
		OverrideValidation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/sessions/ABCD42/tokens", rec.path)

	var req api.TokenUpsertRequest
	require.NoError(t, json.Unmarshal(rec.body, &req))
	assert.Equal(t, "goblin_1", req.NpcID)
	assert.Empty(t, req.CharacterID)
	assert.True(t, req.OverrideValidation)
	assert.Equal(t, 4, req.X)
}

func TestTurnOperationPaths(t *testing.T) {
	client, rec, closeSrv := newTestServer(t, http.StatusOK, nil)
	defer closeSrv()
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		path string
	}{
		{"next", func() error { return client.NextTurn(ctx) }, "/api/sessions/ABCD42/turn/next"},
		{"end", func() error { return client.EndTurn(ctx) }, "/api/sessions/ABCD42/turn/end"},
		{"interrupt", func() error { return client.InterruptTurn(ctx) }, "/api/sessions/ABCD42/turn/interrupt"},
		{"resume", func() error { return client.ResumeTurn(ctx) }, "/api/sessions/ABCD42/turn/resume"},
		{"start", func() error { return client.StartCharacterTurn(ctx, "char_1", "player") }, "/api/sessions/ABCD42/turn/start"},
		{"perception", func() error { return client.RollPerceptionCheck(ctx, "char_1") }, "/api/sessions/ABCD42/combat/perception"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.call())
			assert.Equal(t, tc.path, rec.path)
		})
	}
}

func TestValidationBeforeSend(t *testing.T) {
	client, rec, closeSrv := newTestServer(t, http.StatusOK, nil)
	defer closeSrv()

	// нулевой урон отклоняется локально, запрос не уходит
	err := client.DealDamage(context.Background(), "char_1", 0)
	require.Error(t, err)
	assert.Empty(t, rec.method)
}

func TestNotFoundIsFatal(t *testing.T) {
	client, _, closeSrv := newTestServer(t, http.StatusNotFound,
		api.ErrorResponse{Error: "no such session"})
	defer closeSrv()

	_, err := client.FetchSession(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, Fatal(err))
	assert.False(t, Transient(err))
}

func TestBadRequestIsValidationNotTransient(t *testing.T) {
	client, _, closeSrv := newTestServer(t, http.StatusBadRequest,
		api.ErrorResponse{Error: "movement exceeds budget", Code: "MOVE_BUDGET"})
	defer closeSrv()

	err := client.NextTurn(context.Background())
	require.Error(t, err)
	assert.False(t, Fatal(err))
	assert.False(t, Transient(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "MOVE_BUDGET", apiErr.Code)
}

func TestServerErrorIsTransient(t *testing.T) {
	client, _, closeSrv := newTestServer(t, http.StatusInternalServerError, nil)
	defer closeSrv()

	err := client.EndTurn(context.Background())
	require.Error(t, err)
	assert.True(t, Transient(err))
	assert.False(t, Fatal(err))
}

func TestNetworkErrorIsTransient(t *testing.T) {
	client, err := New("http://127.0.0.1:1", "ABCD42", "")
	require.NoError(t, err)

	_, err = client.FetchSession(context.Background())
	require.Error(t, err)
	assert.True(t, Transient(err))
}
