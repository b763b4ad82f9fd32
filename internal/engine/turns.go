package engine

import (
	"sort"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

// InitiativeRoll - бросок инициативы одного участника
type InitiativeRoll struct {
	EntityID string
	Type     string // player | npc
	Roll     int
}

// SpeedLookup возвращает скорость (бюджет движения) сущности
type SpeedLookup func(entityID string) (int, bool)

// TurnEngine - машина состояний боевого раунда.
//
// Состояния: NoInitiative -> InitiativeRolled -> {TurnActive <-> TurnPaused}
// -> ... -> EncounterEnded. Движок работает поверх TurnState из рабочей
// копии координатора; после каждого авторитетного снапшота привязывается
// заново. Любой отказ гарантированно не меняет состояние.
type TurnEngine struct {
	state *domain.TurnState
}

// NewTurnEngine привязывает движок к состоянию раунда
func NewTurnEngine(state *domain.TurnState) *TurnEngine {
	return &TurnEngine{state: state}
}

// State возвращает состояние, которым управляет движок
func (te *TurnEngine) State() *domain.TurnState {
	return te.state
}

// RollInitiative фиксирует порядок ходов и открывает первый ход.
// Валидно только из NoInitiative. Тай-брейк: больший бросок первым,
// при равных бросках - стабильный исходный порядок.
//
// Предусловие "у каждого персонажа есть токен" проверяет вызывающий
// (координатор): движку карта не видна.
func (te *TurnEngine) RollInitiative(rolls []InitiativeRoll, speeds SpeedLookup) error {
	if te.state.Rolled() {
		return ErrAlreadyRolled
	}
	if len(rolls) == 0 {
		return ErrNoParticipants
	}

	order := make([]domain.InitiativeEntry, len(rolls))
	for i, r := range rolls {
		order[i] = domain.InitiativeEntry{EntityID: r.EntityID, Type: r.Type, Initiative: r.Roll}
	}

	// Стабильная сортировка сохраняет исходный порядок при равных бросках
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Initiative > order[j].Initiative
	})

	te.state.InitiativeOrder = order
	te.state.Paused = false
	te.startTurnFor(order[0], speeds)

	logger.Log.WithField("first", order[0].EntityID).Info("Initiative rolled")
	return nil
}

// AdvanceTurn передает ход следующему в порядке инициативы (с переходом
// по кругу). Бюджеты нового активного обнуляются, пауза снимается.
func (te *TurnEngine) AdvanceTurn(speeds SpeedLookup) error {
	if !te.state.Rolled() {
		return ErrNoInitiative
	}

	order := te.state.InitiativeOrder
	next := order[0]

	if te.state.Active != nil {
		for i, e := range order {
			if e.EntityID == te.state.Active.EntityID {
				next = order[(i+1)%len(order)]
				break
			}
		}
	}

	te.state.Paused = false
	te.startTurnFor(next, speeds)
	return nil
}

// StartSpecificTurn (только DM) передает ход выбранной сущности, не
// трогая порядок инициативы. Используется для пересортировки боя без
// полного переброса.
func (te *TurnEngine) StartSpecificTurn(entityID string, speeds SpeedLookup) error {
	if !te.state.Rolled() {
		return ErrNoInitiative
	}

	for _, e := range te.state.InitiativeOrder {
		if e.EntityID == entityID {
			te.state.Paused = false
			te.startTurnFor(e, speeds)
			return nil
		}
	}
	return ErrNotInInitiative
}

// Interrupt (только DM) замораживает текущий ход: пока Paused=true,
// ни игрок, ни NPC действовать не могут, а DM может действовать вне очереди.
func (te *TurnEngine) Interrupt() error {
	if te.state.Active == nil {
		return ErrNoActiveTurn
	}
	if te.state.Paused {
		return ErrTurnPaused
	}
	te.state.Paused = true
	return nil
}

// Resume (только DM) снимает заморозку, возвращая ход прерванной сущности
func (te *TurnEngine) Resume() error {
	if te.state.Active == nil {
		return ErrNoActiveTurn
	}
	if !te.state.Paused {
		return ErrTurnNotPaused
	}
	te.state.Paused = false
	return nil
}

// SpendMovement списывает delta клеток из бюджета движения.
// Отказ (перерасход) не меняет состояние ни на байт.
func (te *TurnEngine) SpendMovement(delta int) error {
	if te.state.Active == nil {
		return ErrNoActiveTurn
	}
	if delta < 0 || te.state.Active.MovementUsed+delta > te.state.Active.Speed {
		return ErrMovementExceeded
	}
	te.state.Active.MovementUsed += delta
	return nil
}

// SpendMajorAction отмечает основное действие использованным
func (te *TurnEngine) SpendMajorAction() error {
	if te.state.Active == nil {
		return ErrNoActiveTurn
	}
	if te.state.Active.MajorActionUsed {
		return ErrMajorActionUsed
	}
	te.state.Active.MajorActionUsed = true
	return nil
}

// SpendMinorAction отмечает второстепенное действие использованным
func (te *TurnEngine) SpendMinorAction() error {
	if te.state.Active == nil {
		return ErrNoActiveTurn
	}
	if te.state.Active.MinorActionUsed {
		return ErrMinorActionUsed
	}
	te.state.Active.MinorActionUsed = true
	return nil
}

// EndEncounter завершает бой и очищает состояние раунда
func (te *TurnEngine) EndEncounter() {
	te.state.InitiativeOrder = nil
	te.state.Active = nil
	te.state.Paused = false
}

// CanActAs - правило владения ходом, единое для всех вызывающих.
//
// Игрок действует, только если ход его, тип хода player и паузы нет.
// DM действует за активную сущность (подменяя игрока или NPC) при том же
// условии отсутствия паузы, ЛИБО всегда при Paused=true - это и есть
// окно DM-прерывания.
func (te *TurnEngine) CanActAs(entityID string, isDM bool) error {
	active := te.state.Active
	if active == nil {
		return ErrNoActiveTurn
	}

	if isDM {
		if te.state.Paused {
			return nil
		}
		if active.EntityID == entityID {
			return nil
		}
		return ErrNotYourTurn
	}

	if te.state.Paused {
		return ErrTurnPaused
	}
	if active.Type != domain.TokenTypePlayer || active.EntityID != entityID {
		return ErrNotYourTurn
	}
	return nil
}

// startTurnFor открывает ход сущности со свежими бюджетами
func (te *TurnEngine) startTurnFor(e domain.InitiativeEntry, speeds SpeedLookup) {
	speed := 0
	if speeds != nil {
		if s, ok := speeds(e.EntityID); ok {
			speed = s
		}
	}
	te.state.Active = &domain.ActiveTurn{
		EntityID: e.EntityID,
		Type:     e.Type,
		Speed:    speed,
	}
}
