package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/engine"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/version"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/api"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

const defaultRequestTimeout = 10 * time.Second

// Client - HTTP-клиент авторитетного бэкенда сессии.
// Реализует engine.Backend; потокобезопасен (состояния не держит).
type Client struct {
	baseURL    string
	inviteCode string
	token      string
	http       *http.Client
	log        *logrus.Entry
}

// Option настраивает клиента
type Option func(*Client)

// WithHTTPClient подменяет http.Client (таймауты, httptest)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New создает клиента бэкенда.
// token - непрозрачный токен участника, уходит в Authorization.
func New(baseURL, inviteCode, token string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		inviteCode: inviteCode,
		token:      token,
		http:       &http.Client{Timeout: defaultRequestTimeout},
		log:        logger.WithComponent("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchSession запрашивает полный снапшот сессии по инвайт-коду
func (c *Client) FetchSession(ctx context.Context) (*api.SessionPayload, error) {
	var payload api.SessionPayload
	if err := c.get(ctx, c.sessionPath(""), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchMap запрашивает текущее состояние карты
func (c *Client) FetchMap(ctx context.Context) (*api.MapPayload, error) {
	var payload api.MapPayload
	if err := c.get(ctx, c.sessionPath("/map"), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// --- engine.Backend ---

func (c *Client) UpsertToken(ctx context.Context, p engine.TokenPlacement) error {
	req := api.TokenUpsertRequest{
		ID:                 p.TokenID,
		TokenType:          p.TokenType,
		X:                  p.X,
		Y:                  p.Y,
		Label:              p.Label,
		Color:              p.Color,
		OverrideValidation: p.OverrideValidation,
	}
	if p.TokenType == "npc" {
		req.NpcID = p.EntityID
	} else if p.TokenType == "player" {
		req.CharacterID = p.EntityID
	}
	return c.post(ctx, c.sessionPath("/tokens"), req)
}

func (c *Client) UpdateTurnState(ctx context.Context, u engine.TurnUpdate) error {
	req := api.TurnUpdateRequest{
		ActorEntityID:   u.ActorEntityID,
		MovementUsed:    u.MovementUsed,
		MajorActionUsed: u.MajorActionUsed,
		MinorActionUsed: u.MinorActionUsed,
	}
	return c.post(ctx, c.sessionPath("/turn/update"), req)
}

func (c *Client) RollInitiative(ctx context.Context, rolls []engine.InitiativeRoll) error {
	req := api.InitiativeRequest{Rolls: make([]api.InitiativeEntryView, 0, len(rolls))}
	for _, r := range rolls {
		req.Rolls = append(req.Rolls, api.InitiativeEntryView{
			EntityID:   r.EntityID,
			Type:       r.Type,
			Initiative: r.Roll,
		})
	}
	return c.post(ctx, c.sessionPath("/turn/roll-initiative"), req)
}

func (c *Client) NextTurn(ctx context.Context) error {
	return c.post(ctx, c.sessionPath("/turn/next"), nil)
}

func (c *Client) EndTurn(ctx context.Context) error {
	return c.post(ctx, c.sessionPath("/turn/end"), nil)
}

func (c *Client) StartCharacterTurn(ctx context.Context, entityID, entityType string) error {
	return c.post(ctx, c.sessionPath("/turn/start"), api.StartTurnRequest{
		EntityID: entityID,
		Type:     entityType,
	})
}

func (c *Client) InterruptTurn(ctx context.Context) error {
	return c.post(ctx, c.sessionPath("/turn/interrupt"), nil)
}

func (c *Client) ResumeTurn(ctx context.Context) error {
	return c.post(ctx, c.sessionPath("/turn/resume"), nil)
}

func (c *Client) DealDamage(ctx context.Context, entityID string, amount int) error {
	return c.post(ctx, c.sessionPath("/combat/damage"), api.DamageRequest{
		EntityID: entityID,
		Amount:   amount,
	})
}

func (c *Client) HealCharacter(ctx context.Context, entityID string, amount int) error {
	return c.post(ctx, c.sessionPath("/combat/heal"), api.HealRequest{
		EntityID: entityID,
		Amount:   amount,
	})
}

func (c *Client) ToggleStatusEffect(ctx context.Context, entityID, effect string) error {
	return c.post(ctx, c.sessionPath("/combat/status"), api.StatusToggleRequest{
		EntityID: entityID,
		Effect:   effect,
	})
}

func (c *Client) PerformAction(ctx context.Context, entityID, actionType string) error {
	return c.post(ctx, c.sessionPath("/combat/action"), api.ActionRequest{
		EntityID:   entityID,
		ActionType: actionType,
	})
}

func (c *Client) CastSpell(ctx context.Context, entityID, spellName string) error {
	return c.post(ctx, c.sessionPath("/combat/spell"), api.SpellRequest{
		EntityID:  entityID,
		SpellName: spellName,
	})
}

func (c *Client) RollPerceptionCheck(ctx context.Context, entityID string) error {
	return c.post(ctx, c.sessionPath("/combat/perception"), api.PerceptionRequest{
		EntityID: entityID,
	})
}

// --- внутренняя кухня ---

func (c *Client) sessionPath(suffix string) string {
	return "/api/sessions/" + url.PathEscape(c.inviteCode) + suffix
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	// DTO с валидатором проверяем до отправки
	if v, ok := body.(api.Validator); ok {
		if err := v.Validate(); err != nil {
			return &APIError{Status: http.StatusBadRequest, Message: err.Error()}
		}
	}

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("path", req.URL.Path).Debug("Request failed")
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode}
		var body api.ErrorResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&body); decErr == nil {
			apiErr.Code = body.Code
			apiErr.Message = body.Error
		}
		return classify(resp.StatusCode, apiErr)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
