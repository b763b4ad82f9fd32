package domain

// Типы токенов на карте
const (
	TokenTypePlayer = "player"
	TokenTypeNPC    = "npc"
	TokenTypeObject = "object"
)

// Token - позиционированный маркер на сетке (персонаж, NPC или предмет декорации).
//
// ID - это ключ строки в бэкенде. EntityID - канонический идентификатор
// сущности (characterId или npcId), и именно он используется во всех
// игровых проверках (чей ход, кто блокирует клетку). Старый клиент местами
// путал эти два поля, здесь мы держим их строго раздельно.
type Token struct {
	ID       string            `json:"id"`
	Type     string            `json:"tokenType"`
	EntityID string            `json:"entityId,omitempty"`
	X        int               `json:"x"`
	Y        int               `json:"y"`
	Label    string            `json:"label"`
	Color    string            `json:"color,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Pos возвращает позицию токена как Position
func (t *Token) Pos() Position {
	return Position{X: t.X, Y: t.Y}
}

// IsMovable возвращает true для токенов, которые занимают клетку
// (игроки и NPC). Объекты проходимы и могут делить клетку с кем угодно.
func (t *Token) IsMovable() bool {
	return t.Type == TokenTypePlayer || t.Type == TokenTypeNPC
}

// Clone возвращает глубокую копию токена
func (t *Token) Clone() *Token {
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
