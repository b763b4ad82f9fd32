package domain

// Статусы сессии (присылаются бэкендом в session fetch)
const (
	SessionStatusLobby    = "lobby"
	SessionStatusActive   = "active"
	SessionStatusFinished = "finished"
)

// Character - минимальный срез листа персонажа, который нужен движку
// синхронизации (полные листы живут в формах и нас не касаются)
type Character struct {
	ID       string `json:"id"`
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name"`
	HP       int    `json:"hp"`
	MaxHP    int    `json:"maxHp"`
	Speed    int    `json:"speed"`
	IsNPC    bool   `json:"isNpc,omitempty"`

	// StatusEffects - активные эффекты ("prone", "blessed", ...)
	StatusEffects []string `json:"statusEffects,omitempty"`
}

// HasStatus проверяет наличие эффекта
func (c *Character) HasStatus(effect string) bool {
	for _, s := range c.StatusEffects {
		if s == effect {
			return true
		}
	}
	return false
}

// Message - запись в журнале активности (чат, броски, системные события)
type Message struct {
	ID        string `json:"id"`
	AuthorID  string `json:"authorId,omitempty"`
	Text      string `json:"text"`
	Type      string `json:"type"`      // INFO, COMBAT, SPEECH, ERROR
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// MaxMessages ограничивает журнал активности в рабочей копии
const MaxMessages = 200

// SessionState - полная рабочая копия сессии на клиенте.
//
// Version - монотонный маркер авторитетности (таймстемп сервера).
// Используется ТОЛЬКО чтобы отбрасывать устаревшие снапшоты, никакого
// слияния состояний нет: последний снапшот всегда побеждает.
type SessionState struct {
	InviteCode string       `json:"inviteCode"`
	Status     string       `json:"status"`
	Quest      string       `json:"quest,omitempty"`
	Characters []*Character `json:"characters"`
	Grid       *GridModel   `json:"mapState"`
	Turn       *TurnState   `json:"turnState"`
	Messages   []Message    `json:"messages"`
	Version    int64        `json:"version"`
}

// NewSessionState создает пустое состояние (до первой синхронизации)
func NewSessionState(inviteCode string) *SessionState {
	return &SessionState{
		InviteCode: inviteCode,
		Status:     SessionStatusLobby,
		Turn:       &TurnState{},
	}
}

// CharacterByID ищет персонажа
func (s *SessionState) CharacterByID(id string) *Character {
	for _, c := range s.Characters {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// AppendMessage добавляет запись в журнал, обрезая хвост
func (s *SessionState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
	if len(s.Messages) > MaxMessages {
		s.Messages = s.Messages[len(s.Messages)-MaxMessages:]
	}
}

// Clone возвращает глубокую копию всего состояния
func (s *SessionState) Clone() *SessionState {
	c := &SessionState{
		InviteCode: s.InviteCode,
		Status:     s.Status,
		Quest:      s.Quest,
		Version:    s.Version,
	}

	c.Characters = make([]*Character, len(s.Characters))
	for i, ch := range s.Characters {
		cp := *ch
		if ch.StatusEffects != nil {
			cp.StatusEffects = append([]string(nil), ch.StatusEffects...)
		}
		c.Characters[i] = &cp
	}

	if s.Grid != nil {
		c.Grid = s.Grid.Clone()
	}
	if s.Turn != nil {
		c.Turn = s.Turn.Clone()
	}
	if len(s.Messages) > 0 {
		c.Messages = append([]Message(nil), s.Messages...)
	}
	return c
}
