package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

// PendingAction - запись журнала оптимистичных мутаций.
//
// Создается в момент применения локальной мутации и хранит ровно те
// прежние значения, что нужны для точного отката. Уничтожается либо
// при приеме более нового авторитетного снапшота (он поглощает мутацию),
// либо при отказе отправки (тогда сначала срабатывает Revert).
type PendingAction struct {
	ID          uuid.UUID
	Kind        domain.ActionKind
	TargetID    string // канонический entityId цели (или ключ токена для декораций)
	SubmittedAt time.Time

	// Прежние значения. Заполняются только поля, относящиеся к Kind.
	PriorPos          *domain.Position  // MOVE: позиция токена
	PriorMovementUsed *int              // MOVE: счетчик движения
	PriorHP           *int              // DAMAGE / HEAL
	PriorEffects      []string          // STATUS_TOGGLE: полный список эффектов
	PriorTurn         *domain.TurnState // переходы машины ходов (advance, interrupt, ...)
	CreatedTokenID    string            // расстановка: откат удаляет токен
}

// Revert возвращает рабочую копию к прежним значениям записи.
// Откатываются ровно те поля, что были зафиксированы.
func (pa *PendingAction) Revert(state *domain.SessionState) {
	if pa.PriorPos != nil && state.Grid != nil {
		if tok := pa.tokenIn(state.Grid); tok != nil {
			tok.X = pa.PriorPos.X
			tok.Y = pa.PriorPos.Y
		}
	}
	if pa.PriorMovementUsed != nil && state.Turn != nil && state.Turn.Active != nil {
		state.Turn.Active.MovementUsed = *pa.PriorMovementUsed
	}
	if pa.PriorHP != nil {
		if ch := state.CharacterByID(pa.TargetID); ch != nil {
			ch.HP = *pa.PriorHP
		}
	}
	if pa.PriorEffects != nil {
		if ch := state.CharacterByID(pa.TargetID); ch != nil {
			ch.StatusEffects = append([]string(nil), pa.PriorEffects...)
		}
	}
	if pa.PriorTurn != nil {
		*state.Turn = *pa.PriorTurn.Clone()
	}
	if pa.CreatedTokenID != "" && state.Grid != nil {
		kept := state.Grid.Tokens[:0:0]
		for _, t := range state.Grid.Tokens {
			if t.ID != pa.CreatedTokenID {
				kept = append(kept, t)
			}
		}
		state.Grid.Tokens = kept
	}
}

func (pa *PendingAction) tokenIn(g *domain.GridModel) *domain.Token {
	if tok := g.TokenByEntity(pa.TargetID); tok != nil {
		return tok
	}
	return g.TokenByID(pa.TargetID)
}

// pendingLog - журнал незавершенных оптимистичных действий.
// Политика "последнее намерение побеждает": новая запись для той же пары
// (Kind, TargetID) вытесняет старую, и результат вытесненной отправки
// игнорируется.
type pendingLog struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*PendingAction
}

func newPendingLog() *pendingLog {
	return &pendingLog{actions: make(map[uuid.UUID]*PendingAction)}
}

// Add регистрирует новую запись, вытесняя прежнюю для той же цели
func (pl *pendingLog) Add(pa *PendingAction) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	for id, old := range pl.actions {
		if old.Kind == pa.Kind && old.TargetID == pa.TargetID {
			delete(pl.actions, id)
		}
	}
	pl.actions[pa.ID] = pa
}

// Take извлекает запись по ID. ok=false означает, что запись была
// вытеснена новым намерением или поглощена снапшотом - результат
// отправки в этом случае игнорируется.
func (pl *pendingLog) Take(id uuid.UUID) (*PendingAction, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pa, ok := pl.actions[id]
	if ok {
		delete(pl.actions, id)
	}
	return pa, ok
}

// Clear опустошает журнал (новый авторитетный снапшот поглощает все)
func (pl *pendingLog) Clear() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.actions = make(map[uuid.UUID]*PendingAction)
}

// Len возвращает число незавершенных записей
func (pl *pendingLog) Len() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.actions)
}
