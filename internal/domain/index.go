package domain

// EntityKind - разновидность сущности в индексе
type EntityKind uint8

const (
	EntityKindUnknown EntityKind = iota
	EntityKindPlayer
	EntityKindNPC
	EntityKindObject
)

// EntityRef - одна запись индекса: кто это и где его данные.
// Character может быть nil (объектные токены, NPC без листа).
type EntityRef struct {
	Kind      EntityKind
	Token     *Token
	Character *Character
}

// EntityIndex - единый индекс entityId -> сущность.
//
// Строится один раз при приеме снапшота, вместо повторных inline-поисков
// в каждом месте UI. Для NPC канонический ключ - EntityID токена; токены
// без EntityID (чистая декорация) индексируются по ключу строки.
type EntityIndex map[string]EntityRef

// BuildEntityIndex собирает индекс по состоянию сессии
func BuildEntityIndex(s *SessionState) EntityIndex {
	idx := make(EntityIndex)

	// 1. Персонажи (могут еще не иметь токена на карте)
	for _, ch := range s.Characters {
		kind := EntityKindPlayer
		if ch.IsNPC {
			kind = EntityKindNPC
		}
		idx[ch.ID] = EntityRef{Kind: kind, Character: ch}
	}

	if s.Grid == nil {
		return idx
	}

	// 2. Токены. Привязываем к записям персонажей, если entityId совпал.
	for _, t := range s.Grid.Tokens {
		key := t.EntityID
		if key == "" {
			key = t.ID
		}

		ref, ok := idx[key]
		if !ok {
			ref = EntityRef{Kind: kindOfToken(t)}
		}
		ref.Token = t
		idx[key] = ref
	}

	return idx
}

func kindOfToken(t *Token) EntityKind {
	switch t.Type {
	case TokenTypePlayer:
		return EntityKindPlayer
	case TokenTypeNPC:
		return EntityKindNPC
	case TokenTypeObject:
		return EntityKindObject
	}
	return EntityKindUnknown
}
