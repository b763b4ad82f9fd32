package domain

// InitiativeEntry - одна запись в порядке инициативы
type InitiativeEntry struct {
	EntityID   string `json:"entityId"`
	Type       string `json:"type"` // player | npc
	Initiative int    `json:"initiative"`
}

// ActiveTurn - чей сейчас ход и сколько бюджета осталось
type ActiveTurn struct {
	EntityID        string `json:"entityId"`
	Type            string `json:"type"`
	Speed           int    `json:"speed"`
	MovementUsed    int    `json:"movementUsed"`
	MajorActionUsed bool   `json:"majorActionUsed"`
	MinorActionUsed bool   `json:"minorActionUsed"`
}

// MovementLeft возвращает остаток бюджета движения
func (a *ActiveTurn) MovementLeft() int {
	return a.Speed - a.MovementUsed
}

// TurnState - состояние боевого раунда.
//
// Инварианты:
//   - MovementUsed <= Speed;
//   - Active.EntityID всегда присутствует в InitiativeOrder (после броска);
//   - Paused может быть true только при ненулевом Active.
type TurnState struct {
	InitiativeOrder []InitiativeEntry `json:"initiativeOrder"`
	Active          *ActiveTurn       `json:"activeTurn"`
	Paused          bool              `json:"pausedTurn"`
}

// Rolled возвращает true, если инициатива уже брошена
func (ts *TurnState) Rolled() bool {
	return len(ts.InitiativeOrder) > 0
}

// Clone возвращает глубокую копию
func (ts *TurnState) Clone() *TurnState {
	c := &TurnState{Paused: ts.Paused}
	if len(ts.InitiativeOrder) > 0 {
		c.InitiativeOrder = make([]InitiativeEntry, len(ts.InitiativeOrder))
		copy(c.InitiativeOrder, ts.InitiativeOrder)
	}
	if ts.Active != nil {
		a := *ts.Active
		c.Active = &a
	}
	return c
}
