package engine

import "errors"

// Ожидаемые отказы правил. Это НЕ исключительные ситуации: движок
// возвращает их как значения, вызывающий (координатор) превращает их
// в сообщение пользователю и откат оптимистичной мутации.
var (
	ErrNoInitiative      = errors.New("initiative has not been rolled")
	ErrAlreadyRolled     = errors.New("initiative is already rolled")
	ErrNoParticipants    = errors.New("no participants to roll initiative for")
	ErrTokensMissing     = errors.New("every player character needs a placed token first")
	ErrNoActiveTurn      = errors.New("no active turn")
	ErrTurnPaused        = errors.New("turn is paused by the DM")
	ErrTurnNotPaused     = errors.New("turn is not paused")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrNotInInitiative   = errors.New("entity is not in the initiative order")
	ErrMovementExceeded  = errors.New("not enough movement left")
	ErrMajorActionUsed   = errors.New("major action already used this turn")
	ErrMinorActionUsed   = errors.New("minor action already used this turn")
	ErrOutOfRange        = errors.New("target is out of range")
	ErrNoPath            = errors.New("no path to the target cell")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrUnknownEntity     = errors.New("unknown entity")
	ErrSuperseded        = errors.New("superseded by a newer action")
	ErrDMOnly            = errors.New("only the DM may do this")
	ErrEncounterInactive = errors.New("encounter is not active")
)
