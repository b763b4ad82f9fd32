package api

import (
	"encoding/json"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

// --- СЕРВЕР -> КЛИЕНТ ---

// Типы сообщений сокет-канала.
// "ping" зарезервирован: на него отвечаем pong на месте и наблюдателям
// НЕ пересылаем. Все остальные несут полное состояние или результат действия.
const (
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeState        = "state"
	MessageTypeActionResult = "action_result"
)

// Envelope это конверт любого сообщения сокет-канала.
// Payload разбирается по значению Type.
type Envelope struct {
	Type string `json:"type"`

	// Timestamp серверное время отправки, Unix milliseconds.
	// Для состояния это и есть монотонный маркер авторитетности.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Payload JSON-объект с данными сообщения.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Pong это ответ на серверный ping
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// SessionPayload это полный "снимок" сессии, видимый клиенту.
// Приходит и по сокету, и как результат GET по инвайт-коду -
// обрабатывается одинаково в обоих случаях.
type SessionPayload struct {
	// Status состояние сессии: lobby, active, finished.
	Status string `json:"status"`

	// Quest название текущего квеста (для заголовка экрана).
	Quest string `json:"quest,omitempty"`

	Players    []PlayerView    `json:"players,omitempty"`
	Characters []CharacterView `json:"characters"`

	// MapState карта боя. Может отсутствовать, пока DM ее не открыл.
	MapState *MapPayload `json:"mapState,omitempty"`

	// TurnState состояние раунда. Отсутствует вне боя.
	TurnState *TurnPayload `json:"turnState,omitempty"`

	// Messages журнал активности (чат, броски, системные записи).
	Messages []MessageView `json:"messages,omitempty"`

	// UpdatedAt монотонный маркер авторитетности, Unix milliseconds.
	// КЛИЕНТ ОБЯЗАН ОТБРАСЫВАТЬ снапшоты с маркером не новее текущего.
	UpdatedAt int64 `json:"updatedAt"`
}

// PlayerView это DTO участника сессии
type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost,omitempty"`
}

// CharacterView это DTO персонажа (минимальный срез для движка синхронизации)
type CharacterView struct {
	ID            string   `json:"id"`
	PlayerID      string   `json:"playerId,omitempty"`
	Name          string   `json:"name"`
	HP            int      `json:"hp"`
	MaxHP         int      `json:"maxHp"`
	Speed         int      `json:"speed,omitempty"`
	IsNPC         bool     `json:"isNpc,omitempty"`
	StatusEffects []string `json:"statusEffects,omitempty"`
}

// MapPayload это карта в сетевом формате: terrain[y][x] + токены
type MapPayload struct {
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Terrain [][]TerrainCell `json:"terrain"`
	Tokens  []TokenView     `json:"tokens"`
}

// TerrainCell это DTO одной клетки террейна
type TerrainCell struct {
	// Type тип поверхности (floor, forest, water, lava...)
	Type string `json:"type"`

	// Cost стоимость входа в клетку. 999 = непроходимо.
	Cost int `json:"cost"`

	Blocked   bool `json:"blocked,omitempty"`
	Difficult bool `json:"difficult,omitempty"`
	Cover     int  `json:"cover,omitempty"`
	Elevation int  `json:"elevation,omitempty"`
}

// TokenView это DTO токена на карте.
// CharacterID/NpcID взаимоисключающие; канонический entityId сущности -
// тот из них, что заполнен.
type TokenView struct {
	ID          string            `json:"id"`
	TokenType   string            `json:"tokenType"`
	CharacterID string            `json:"characterId,omitempty"`
	NpcID       string            `json:"npcId,omitempty"`
	X           int               `json:"x"`
	Y           int               `json:"y"`
	Label       string            `json:"label"`
	Color       string            `json:"color,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// EntityID возвращает канонический идентификатор сущности токена
func (tv TokenView) EntityID() string {
	if tv.CharacterID != "" {
		return tv.CharacterID
	}
	return tv.NpcID
}

// TurnPayload это DTO состояния раунда
type TurnPayload struct {
	InitiativeOrder []InitiativeEntryView `json:"initiativeOrder"`
	ActiveTurn      *ActiveTurnView       `json:"activeTurn"`
	PausedTurn      bool                  `json:"pausedTurn"`
}

// InitiativeEntryView это DTO записи инициативы
type InitiativeEntryView struct {
	EntityID   string `json:"entityId"`
	Type       string `json:"type"`
	Initiative int    `json:"initiative"`
}

// ActiveTurnView это DTO активного хода
type ActiveTurnView struct {
	EntityID        string `json:"entityId"`
	Type            string `json:"type"`
	Speed           int    `json:"speed"`
	MovementUsed    int    `json:"movementUsed"`
	MajorActionUsed bool   `json:"majorActionUsed"`
	MinorActionUsed bool   `json:"minorActionUsed"`
}

// MessageView представляет одну запись в журнале активности
type MessageView struct {
	ID        string `json:"id"`
	AuthorID  string `json:"authorId,omitempty"`
	Text      string `json:"text"`
	Type      string `json:"type"`      // INFO, COMBAT, SPEECH, ERROR
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// ErrorResponse это тело ответа бэкенда при отказе
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// --- КЛИЕНТ -> СЕРВЕР ---

// TokenUpsertRequest - постановка/перемещение токена.
// OverrideValidation - привилегия DM: сервер пропускает проверку движения.
type TokenUpsertRequest struct {
	ID                 string            `json:"id,omitempty"`
	TokenType          string            `json:"tokenType"`
	X                  int               `json:"x"`
	Y                  int               `json:"y"`
	CharacterID        string            `json:"characterId,omitempty"`
	NpcID              string            `json:"npcId,omitempty"`
	Label              string            `json:"label"`
	Color              string            `json:"color,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	OverrideValidation bool              `json:"overrideValidation,omitempty"`
}

// TurnUpdateRequest - частичное обновление бюджета хода.
// nil-поля не трогаются.
type TurnUpdateRequest struct {
	ActorEntityID   string `json:"actorEntityId"`
	MovementUsed    *int   `json:"movementUsed,omitempty"`
	MajorActionUsed *bool  `json:"majorActionUsed,omitempty"`
	MinorActionUsed *bool  `json:"minorActionUsed,omitempty"`
}

// InitiativeRequest - фиксация бросков инициативы
type InitiativeRequest struct {
	Rolls []InitiativeEntryView `json:"rolls"`
}

// StartTurnRequest - передача хода выбранной сущности (DM)
type StartTurnRequest struct {
	EntityID string `json:"entityId"`
	Type     string `json:"type"`
}

// DamageRequest / HealRequest - изменение HP
type DamageRequest struct {
	EntityID string `json:"entityId"`
	Amount   int    `json:"amount"`
}

type HealRequest struct {
	EntityID string `json:"entityId"`
	Amount   int    `json:"amount"`
}

// StatusToggleRequest - переключение эффекта состояния
type StatusToggleRequest struct {
	EntityID string `json:"entityId"`
	Effect   string `json:"effect"`
}

// ActionRequest - выполнение действия (attack, grapple, ...)
type ActionRequest struct {
	EntityID   string `json:"entityId"`
	ActionType string `json:"actionType"`
}

// SpellRequest - произнесение заклинания
type SpellRequest struct {
	EntityID  string `json:"entityId"`
	SpellName string `json:"spellName"`
}

// PerceptionRequest - бросок внимательности
type PerceptionRequest struct {
	EntityID string `json:"entityId"`
}

// --- КОНВЕРТАЦИЯ В ДОМЕН ---

// ToDomain собирает доменную карту из сетевого формата.
// Terrain приходит строками по Y (terrain[y][x]), домен хранит Cells[x][y].
func (mp *MapPayload) ToDomain() *domain.GridModel {
	g := domain.NewGridModel(mp.Width, mp.Height)

	for y, row := range mp.Terrain {
		if y >= mp.Height {
			break
		}
		for x, tc := range row {
			if x >= mp.Width {
				break
			}
			cost := tc.Cost
			if cost <= 0 && !tc.Blocked {
				cost = 1 // бэкенд может прислать 0 для обычного пола
			}
			g.Cells[x][y] = domain.Cell{
				Terrain:   tc.Type,
				Cost:      cost,
				Blocked:   tc.Blocked,
				Difficult: tc.Difficult,
				Cover:     tc.Cover,
				Elevation: tc.Elevation,
			}
		}
	}

	g.Tokens = make([]*domain.Token, 0, len(mp.Tokens))
	for _, tv := range mp.Tokens {
		g.Tokens = append(g.Tokens, &domain.Token{
			ID:       tv.ID,
			Type:     tv.TokenType,
			EntityID: tv.EntityID(),
			X:        tv.X,
			Y:        tv.Y,
			Label:    tv.Label,
			Color:    tv.Color,
			Metadata: tv.Metadata,
		})
	}
	return g
}

// ToDomain собирает доменное состояние раунда
func (tp *TurnPayload) ToDomain() *domain.TurnState {
	ts := &domain.TurnState{Paused: tp.PausedTurn}
	for _, e := range tp.InitiativeOrder {
		ts.InitiativeOrder = append(ts.InitiativeOrder, domain.InitiativeEntry{
			EntityID:   e.EntityID,
			Type:       e.Type,
			Initiative: e.Initiative,
		})
	}
	if tp.ActiveTurn != nil {
		ts.Active = &domain.ActiveTurn{
			EntityID:        tp.ActiveTurn.EntityID,
			Type:            tp.ActiveTurn.Type,
			Speed:           tp.ActiveTurn.Speed,
			MovementUsed:    tp.ActiveTurn.MovementUsed,
			MajorActionUsed: tp.ActiveTurn.MajorActionUsed,
			MinorActionUsed: tp.ActiveTurn.MinorActionUsed,
		}
	}
	return ts
}

// ToDomain собирает доменное состояние сессии из полного снапшота
func (sp *SessionPayload) ToDomain(inviteCode string) *domain.SessionState {
	s := domain.NewSessionState(inviteCode)
	s.Status = sp.Status
	s.Quest = sp.Quest
	s.Version = sp.UpdatedAt

	for _, cv := range sp.Characters {
		s.Characters = append(s.Characters, &domain.Character{
			ID:            cv.ID,
			PlayerID:      cv.PlayerID,
			Name:          cv.Name,
			HP:            cv.HP,
			MaxHP:         cv.MaxHP,
			Speed:         cv.Speed,
			IsNPC:         cv.IsNPC,
			StatusEffects: cv.StatusEffects,
		})
	}

	if sp.MapState != nil {
		s.Grid = sp.MapState.ToDomain()
	}
	if sp.TurnState != nil {
		s.Turn = sp.TurnState.ToDomain()
	}
	for _, mv := range sp.Messages {
		s.Messages = append(s.Messages, domain.Message{
			ID:        mv.ID,
			AuthorID:  mv.AuthorID,
			Text:      mv.Text,
			Type:      mv.Type,
			Timestamp: mv.Timestamp,
		})
	}
	return s
}
