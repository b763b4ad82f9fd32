package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/network"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/systems"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

// DefaultSpeed - бюджет движения, если лист персонажа его не задал
const DefaultSpeed = 6

// TokenPlacement - намерение поставить/передвинуть токен
type TokenPlacement struct {
	TokenID            string
	TokenType          string
	EntityID           string
	X, Y               int
	Label              string
	Color              string
	OverrideValidation bool // DM-привилегия: сервер пропускает валидацию движения
}

// TurnUpdate - частичное обновление бюджета хода (nil = поле не трогаем)
type TurnUpdate struct {
	ActorEntityID   string
	MovementUsed    *int
	MajorActionUsed *bool
	MinorActionUsed *bool
}

// Backend - асинхронная отправка намерений на сервер.
// Реализуется HTTP-клиентом; в тестах подменяется стабом.
type Backend interface {
	UpsertToken(ctx context.Context, p TokenPlacement) error
	UpdateTurnState(ctx context.Context, u TurnUpdate) error
	RollInitiative(ctx context.Context, rolls []InitiativeRoll) error
	NextTurn(ctx context.Context) error
	EndTurn(ctx context.Context) error
	StartCharacterTurn(ctx context.Context, entityID, entityType string) error
	InterruptTurn(ctx context.Context) error
	ResumeTurn(ctx context.Context) error
	DealDamage(ctx context.Context, entityID string, amount int) error
	HealCharacter(ctx context.Context, entityID string, amount int) error
	ToggleStatusEffect(ctx context.Context, entityID, effect string) error
	PerformAction(ctx context.Context, entityID, actionType string) error
	CastSpell(ctx context.Context, entityID, spellName string) error
	RollPerceptionCheck(ctx context.Context, entityID string) error
}

// EventType - что произошло с действием
type EventType string

const (
	EventApplied    EventType = "APPLIED"     // оптимистичная мутация применена
	EventConfirmed  EventType = "CONFIRMED"   // сервер принял отправку
	EventRejected   EventType = "REJECTED"    // отказ локальных правил, мутации не было
	EventRolledBack EventType = "ROLLED_BACK" // сервер отказал, мутация откачена
	EventSynced     EventType = "SYNCED"      // принят новый авторитетный снапшот
)

// Event - событие координатора для UI
type Event struct {
	Type     EventType
	Kind     domain.ActionKind
	TargetID string
	Err      string
	Version  int64 // для SYNCED
}

// Participant - кто мы в этой сессии
type Participant struct {
	ID          string
	CharacterID string
	IsDM        bool
}

// Coordinator - верхний оркестратор пользовательских намерений.
//
// Каждая операция: (1) валидирует по локальным правилам и отказывает
// сразу, без похода в сеть; (2) применяет оптимистичную мутацию к рабочей
// копии и пишет PendingAction; (3) отправляет намерение асинхронно;
// (4) при отказе сервера откатывает ровно прежнее значение.
//
// Все мутации рабочей копии атомарны относительно друг друга (один
// мьютекс); сетевые вызовы мьютекс не держат.
type Coordinator struct {
	mu      sync.Mutex
	backend Backend
	me      Participant

	state   *domain.SessionState
	index   domain.EntityIndex
	turns   *TurnEngine
	pending *pendingLog

	interaction InteractionState

	events *network.Broadcaster[Event]

	submitTimeout time.Duration
	rng           *rand.Rand

	// wg отслеживает незавершенные отправки (для корректного teardown)
	wg sync.WaitGroup
}

// Option настраивает координатор
type Option func(*Coordinator)

// WithSubmitTimeout задает таймаут одной отправки на сервер
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.submitTimeout = d }
}

// WithRandSource задает источник бросков (детерминизм в тестах)
func WithRandSource(src rand.Source) Option {
	return func(c *Coordinator) { c.rng = rand.New(src) }
}

// NewCoordinator создает координатор для участника me
func NewCoordinator(backend Backend, me Participant, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:       backend,
		me:            me,
		state:         domain.NewSessionState(""),
		pending:       newPendingLog(),
		events:        network.NewBroadcaster[Event](),
		submitTimeout: 10 * time.Second,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.index = domain.BuildEntityIndex(c.state)
	c.turns = NewTurnEngine(c.state.Turn)
	return c
}

// Events возвращает канал событий координатора
func (c *Coordinator) Events() chan Event {
	return c.events.Subscribe()
}

// StopEvents отписывает канал событий
func (c *Coordinator) StopEvents(ch chan Event) {
	c.events.Unsubscribe(ch)
}

// Close дожидается незавершенных отправок и закрывает события
func (c *Coordinator) Close() {
	c.wg.Wait()
	c.events.Close()
}

// State возвращает копию рабочего состояния (read-only для UI)
func (c *Coordinator) State() *domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Interaction возвращает копию состояния взаимодействия
func (c *Coordinator) Interaction() InteractionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interaction.Clone()
}

// PendingCount возвращает число незавершенных оптимистичных действий
func (c *Coordinator) PendingCount() int {
	return c.pending.Len()
}

// --- СИНХРОНИЗАЦИЯ ---

// ApplySnapshot принимает авторитетный снапшот от транспорта.
// Последний снапшот всегда побеждает: рабочая копия заменяется целиком,
// журнал оптимистичных действий поглощается, индекс сущностей
// перестраивается. Устаревшие версии отбрасываются.
func (c *Coordinator) ApplySnapshot(snap *domain.SessionState) bool {
	c.mu.Lock()

	if snap.Version != 0 && snap.Version <= c.state.Version {
		c.mu.Unlock()
		return false
	}

	c.state = snap
	if c.state.Turn == nil {
		c.state.Turn = &domain.TurnState{}
	}
	c.index = domain.BuildEntityIndex(c.state)
	c.turns = NewTurnEngine(c.state.Turn)

	// Все незавершенные мутации поглощены: их результат отправки
	// больше ничего не откатывает
	c.pending.Clear()

	// Предпросмотр движения пересчитываем, выбор по возможности сохраняем
	c.refreshPreviewLocked()

	version := c.state.Version
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventSynced, Version: version})
	return true
}

// --- ВЫБОР И ПРЕДПРОСМОТР ---

// SelectToken выбирает токен и строит предпросмотр зоны движения
func (c *Coordinator) SelectToken(tokenID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Grid == nil {
		return ErrEncounterInactive
	}
	tok := c.state.Grid.TokenByID(tokenID)
	if tok == nil {
		return ErrUnknownEntity
	}

	c.interaction.SelectedTokenID = tok.ID
	c.interaction.SelectedEntity = tok.EntityID
	c.refreshPreviewLocked()
	return nil
}

// ClearSelection сбрасывает выбор и предпросмотр
func (c *Coordinator) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interaction.reset()
}

// refreshPreviewLocked пересчитывает зону досягаемости для выбранного токена
func (c *Coordinator) refreshPreviewLocked() {
	c.interaction.MovementPreview = nil
	if c.interaction.SelectedTokenID == "" || c.state.Grid == nil {
		return
	}
	tok := c.state.Grid.TokenByID(c.interaction.SelectedTokenID)
	if tok == nil {
		// Токен исчез из снапшота
		c.interaction.SelectedTokenID = ""
		c.interaction.SelectedEntity = ""
		return
	}

	budget := c.movementBudgetLocked(tok)
	if budget <= 0 {
		return
	}
	reach := systems.ReachableTiles(c.state.Grid, tok.Pos(), budget, tok.ID)
	c.interaction.MovementPreview = reach.Costs
}

// movementBudgetLocked возвращает остаток движения токена в текущем ходу
func (c *Coordinator) movementBudgetLocked(tok *domain.Token) int {
	active := c.state.Turn.Active
	if active == nil || tok.EntityID == "" || active.EntityID != tok.EntityID {
		return 0
	}
	return active.MovementLeft()
}

// EnterPlacementMode включает режим расстановки токена данного типа.
// Пустая строка выключает режим.
func (c *Coordinator) EnterPlacementMode(tokenType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interaction.PlacementMode = tokenType
}

// PlaceToken создает новый токен в клетке dest и снимает режим расстановки.
// Игрок ставит только токен собственного персонажа; DM - любой.
// Сервер присвоит токену собственный id, локальный временный заменит
// ближайший снапшот.
func (c *Coordinator) PlaceToken(tokenType, entityID, label, color string, dest domain.Position) error {
	c.mu.Lock()

	if c.state.Grid == nil {
		return c.rejectLocked(domain.ActionPlace, entityID, ErrEncounterInactive)
	}
	if !c.state.Grid.IsPassable(dest) {
		return c.rejectLocked(domain.ActionPlace, entityID, ErrNoPath)
	}
	if tokenType != domain.TokenTypeObject && c.state.Grid.MovableTokenAt(dest) != nil {
		return c.rejectLocked(domain.ActionPlace, entityID, ErrCellOccupied)
	}
	if !c.me.IsDM {
		if tokenType != domain.TokenTypePlayer || !c.ownsEntityLocked(entityID) {
			return c.rejectLocked(domain.ActionPlace, entityID, ErrDMOnly)
		}
	}

	tok := &domain.Token{
		ID:       uuid.NewString(),
		Type:     tokenType,
		EntityID: entityID,
		X:        dest.X,
		Y:        dest.Y,
		Label:    label,
		Color:    color,
	}
	c.state.Grid.Tokens = append(c.state.Grid.Tokens, tok)

	target := entityID
	if target == "" {
		target = tok.ID
	}
	pa := &PendingAction{
		ID:             uuid.New(),
		Kind:           domain.ActionPlace,
		TargetID:       target,
		SubmittedAt:    time.Now(),
		CreatedTokenID: tok.ID,
	}
	c.pending.Add(pa)
	c.interaction.PlacementMode = ""

	placement := TokenPlacement{
		// TokenID пустой: сервер создает запись и присваивает ключ сам
		TokenType: tokenType,
		EntityID:  entityID,
		X:         dest.X,
		Y:         dest.Y,
		Label:     label,
		Color:     color,
	}
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: domain.ActionPlace, TargetID: target})

	c.submit(pa, func(ctx context.Context) error {
		return c.backend.UpsertToken(ctx, placement)
	})
	return nil
}

// --- ДИСТАНЦИОННЫЕ ПРОВЕРКИ (для UI-подсказок) ---

// CanMeleeAttack проверяет соседство токенов двух сущностей
func (c *Coordinator) CanMeleeAttack(attackerEntity, targetEntity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, b := c.tokenPairLocked(attackerEntity, targetEntity)
	if a == nil || b == nil {
		return false
	}
	return systems.InMeleeRange(a.Pos(), b.Pos())
}

// CanRangedAttack проверяет радиус и прямую видимость
func (c *Coordinator) CanRangedAttack(attackerEntity, targetEntity string, radius int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, b := c.tokenPairLocked(attackerEntity, targetEntity)
	if a == nil || b == nil {
		return false
	}
	return systems.InRangedRange(a.Pos(), b.Pos(), radius) &&
		systems.HasLineOfSight(c.state.Grid, a.Pos(), b.Pos())
}

func (c *Coordinator) tokenPairLocked(aEntity, bEntity string) (*domain.Token, *domain.Token) {
	if c.state.Grid == nil {
		return nil, nil
	}
	refA, okA := c.index[aEntity]
	refB, okB := c.index[bEntity]
	if !okA || !okB {
		return nil, nil
	}
	return refA.Token, refB.Token
}

// --- ОПЕРАЦИИ ---

// MoveToken двигает токен в клетку dest.
//
// Обычный ход: владение ходом + путь в пределах остатка бюджета, затем
// оптимистичный сдвиг, списание движения и две отправки подряд (upsert
// токена и обновление бюджета). Эти два вызова НЕ атомарны: если первый
// прошел, а второй упал, расхождение закроет ближайший снапшот.
//
// DM в окне прерывания (Paused) двигает что угодно куда угодно с
// overrideValidation, бюджет не тратится.
func (c *Coordinator) MoveToken(tokenID string, dest domain.Position) error {
	c.mu.Lock()

	if c.state.Grid == nil {
		return c.rejectLocked(domain.ActionMove, tokenID, ErrEncounterInactive)
	}
	tok := c.state.Grid.TokenByID(tokenID)
	if tok == nil {
		return c.rejectLocked(domain.ActionMove, tokenID, ErrUnknownEntity)
	}
	target := tok.EntityID
	if target == "" {
		target = tok.ID
	}

	override := false
	spend := 0

	switch {
	case c.me.IsDM && c.state.Turn.Paused:
		// Окно DM-прерывания: произвольная перестановка
		if !c.state.Grid.InBounds(dest) {
			return c.rejectLocked(domain.ActionMove, target, ErrNoPath)
		}
		override = true

	case c.me.IsDM && !c.state.Turn.Rolled():
		// До боя DM расставляет сцену свободно
		if !c.state.Grid.InBounds(dest) {
			return c.rejectLocked(domain.ActionMove, target, ErrNoPath)
		}
		override = true

	default:
		if err := c.turns.CanActAs(target, c.me.IsDM); err != nil {
			return c.rejectLocked(domain.ActionMove, target, err)
		}
		if !c.me.IsDM && !c.ownsEntityLocked(target) {
			return c.rejectLocked(domain.ActionMove, target, ErrNotYourTurn)
		}
		budget := c.movementBudgetLocked(tok)
		_, cost, ok := systems.FindPath(c.state.Grid, tok.Pos(), dest, budget, tok.ID)
		if !ok {
			return c.rejectLocked(domain.ActionMove, target, ErrNoPath)
		}
		spend = cost
	}

	// Оптимистичная мутация + запись для отката
	pa := &PendingAction{
		ID:          uuid.New(),
		Kind:        domain.ActionMove,
		TargetID:    target,
		SubmittedAt: time.Now(),
		PriorPos:    &domain.Position{X: tok.X, Y: tok.Y},
	}
	if !override {
		prior := c.state.Turn.Active.MovementUsed
		pa.PriorMovementUsed = &prior

		if err := c.turns.SpendMovement(spend); err != nil {
			return c.rejectLocked(domain.ActionMove, target, err)
		}
	}

	tok.X = dest.X
	tok.Y = dest.Y
	c.pending.Add(pa)
	c.refreshPreviewLocked()

	placement := TokenPlacement{
		TokenID:            tok.ID,
		TokenType:          tok.Type,
		EntityID:           tok.EntityID,
		X:                  dest.X,
		Y:                  dest.Y,
		Label:              tok.Label,
		Color:              tok.Color,
		OverrideValidation: override,
	}
	turnUpdate := TurnUpdate{ActorEntityID: target}
	if !override {
		used := c.state.Turn.Active.MovementUsed
		turnUpdate.MovementUsed = &used
	}
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: domain.ActionMove, TargetID: target})

	c.submit(pa, func(ctx context.Context) error {
		if err := c.backend.UpsertToken(ctx, placement); err != nil {
			return err
		}
		if !override {
			// Парный вызов бюджета. Его отказ терпим: закроется снапшотом.
			if err := c.backend.UpdateTurnState(ctx, turnUpdate); err != nil {
				logger.Log.WithError(err).WithField("entity", target).
					Warn("Budget update failed after successful move")
			}
		}
		return nil
	})
	return nil
}

// RollInitiative бросает инициативу за всех персонажей с токенами.
// Предусловие: у каждого игрового персонажа есть токен на карте -
// иначе отказ без частично засеянного порядка.
func (c *Coordinator) RollInitiative() error {
	c.mu.Lock()

	if c.state.Grid == nil {
		return c.rejectLocked(domain.ActionInitiative, "", ErrEncounterInactive)
	}
	if c.state.Turn.Rolled() {
		return c.rejectLocked(domain.ActionInitiative, "", ErrAlreadyRolled)
	}

	var rolls []InitiativeRoll
	for _, ch := range c.state.Characters {
		tok := c.state.Grid.TokenByEntity(ch.ID)
		if tok == nil {
			if ch.IsNPC {
				continue // NPC без токена в бою не участвует
			}
			return c.rejectLocked(domain.ActionInitiative, ch.ID, ErrTokensMissing)
		}
		typ := domain.TokenTypePlayer
		if ch.IsNPC {
			typ = domain.TokenTypeNPC
		}
		rolls = append(rolls, InitiativeRoll{
			EntityID: ch.ID,
			Type:     typ,
			Roll:     c.rng.Intn(20) + 1,
		})
	}

	pa := c.turnPendingLocked(domain.ActionInitiative, "")
	if err := c.turns.RollInitiative(rolls, c.speedLookupLocked()); err != nil {
		return c.rejectLocked(domain.ActionInitiative, "", err)
	}
	c.pending.Add(pa)
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: domain.ActionInitiative})

	c.submit(pa, func(ctx context.Context) error {
		return c.backend.RollInitiative(ctx, rolls)
	})
	return nil
}

// EndTurn завершает текущий ход (активный игрок или DM)
func (c *Coordinator) EndTurn() error {
	return c.advance(domain.ActionTurnAdvance, func(ctx context.Context) error {
		return c.backend.EndTurn(ctx)
	})
}

// NextTurn передает ход следующему (DM пропускает зависшего)
func (c *Coordinator) NextTurn() error {
	if !c.me.IsDM {
		return c.reject(domain.ActionTurnAdvance, "", ErrDMOnly)
	}
	return c.advance(domain.ActionTurnAdvance, func(ctx context.Context) error {
		return c.backend.NextTurn(ctx)
	})
}

func (c *Coordinator) advance(kind domain.ActionKind, call func(ctx context.Context) error) error {
	c.mu.Lock()

	if !c.state.Turn.Rolled() {
		return c.rejectLocked(kind, "", ErrNoInitiative)
	}
	if !c.me.IsDM {
		active := c.state.Turn.Active
		if active == nil {
			return c.rejectLocked(kind, "", ErrNoActiveTurn)
		}
		if err := c.turns.CanActAs(active.EntityID, false); err != nil {
			return c.rejectLocked(kind, active.EntityID, err)
		}
		if !c.ownsEntityLocked(active.EntityID) {
			return c.rejectLocked(kind, active.EntityID, ErrNotYourTurn)
		}
	}

	pa := c.turnPendingLocked(kind, "")
	if err := c.turns.AdvanceTurn(c.speedLookupLocked()); err != nil {
		return c.rejectLocked(kind, "", err)
	}
	c.pending.Add(pa)
	c.refreshPreviewLocked()
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: kind})
	c.submit(pa, call)
	return nil
}

// StartCharacterTurn (только DM) передает ход выбранной сущности
func (c *Coordinator) StartCharacterTurn(entityID string) error {
	if !c.me.IsDM {
		return c.reject(domain.ActionStartTurn, entityID, ErrDMOnly)
	}
	c.mu.Lock()

	pa := c.turnPendingLocked(domain.ActionStartTurn, entityID)
	if err := c.turns.StartSpecificTurn(entityID, c.speedLookupLocked()); err != nil {
		return c.rejectLocked(domain.ActionStartTurn, entityID, err)
	}
	entityType := domain.TokenTypeNPC
	if ref, ok := c.index[entityID]; ok && ref.Kind == domain.EntityKindPlayer {
		entityType = domain.TokenTypePlayer
	}
	c.pending.Add(pa)
	c.refreshPreviewLocked()
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: domain.ActionStartTurn, TargetID: entityID})

	c.submit(pa, func(ctx context.Context) error {
		return c.backend.StartCharacterTurn(ctx, entityID, entityType)
	})
	return nil
}

// InterruptTurn (только DM) замораживает текущий ход
func (c *Coordinator) InterruptTurn() error {
	if !c.me.IsDM {
		return c.reject(domain.ActionInterrupt, "", ErrDMOnly)
	}
	c.mu.Lock()

	pa := c.turnPendingLocked(domain.ActionInterrupt, "")
	if err := c.turns.Interrupt(); err != nil {
		return c.rejectLocked(domain.ActionInterrupt, "", err)
	}
	c.pending.Add(pa)
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: domain.ActionInterrupt})
	c.submit(pa, func(ctx context.Context) error {
		return c.backend.InterruptTurn(ctx)
	})
	return nil
}

// ResumeTurn (только DM) возвращает замороженный ход
func (c *Coordinator) ResumeTurn() error {
	if !c.me.IsDM {
		return c.reject(domain.ActionResume, "", ErrDMOnly)
	}
	c.mu.Lock()

	pa := c.turnPendingLocked(domain.ActionResume, "")
	if err := c.turns.Resume(); err != nil {
		return c.rejectLocked(domain.ActionResume, "", err)
	}
	c.pending.Add(pa)
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: domain.ActionResume})
	c.submit(pa, func(ctx context.Context) error {
		return c.backend.ResumeTurn(ctx)
	})
	return nil
}

// ApplyDamage наносит урон (HP не уходит ниже нуля)
func (c *Coordinator) ApplyDamage(entityID string, amount int) error {
	return c.adjustHP(domain.ActionDamage, entityID, amount, func(ch *domain.Character) {
		ch.HP -= amount
		if ch.HP < 0 {
			ch.HP = 0
		}
	}, func(ctx context.Context) error {
		return c.backend.DealDamage(ctx, entityID, amount)
	})
}

// HealCharacter лечит (HP не превышает максимум)
func (c *Coordinator) HealCharacter(entityID string, amount int) error {
	return c.adjustHP(domain.ActionHeal, entityID, amount, func(ch *domain.Character) {
		ch.HP += amount
		if ch.HP > ch.MaxHP {
			ch.HP = ch.MaxHP
		}
	}, func(ctx context.Context) error {
		return c.backend.HealCharacter(ctx, entityID, amount)
	})
}

func (c *Coordinator) adjustHP(kind domain.ActionKind, entityID string, amount int, mutate func(*domain.Character), call func(ctx context.Context) error) error {
	c.mu.Lock()

	if amount <= 0 {
		return c.rejectLocked(kind, entityID, fmt.Errorf("amount must be positive, got %d", amount))
	}
	ref, ok := c.index[entityID]
	if !ok || ref.Character == nil {
		return c.rejectLocked(kind, entityID, ErrUnknownEntity)
	}

	prior := ref.Character.HP
	pa := &PendingAction{
		ID:          uuid.New(),
		Kind:        kind,
		TargetID:    entityID,
		SubmittedAt: time.Now(),
		PriorHP:     &prior,
	}
	mutate(ref.Character)
	c.pending.Add(pa)
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: kind, TargetID: entityID})
	c.submit(pa, call)
	return nil
}

// ToggleStatusEffect включает/выключает эффект на персонаже
func (c *Coordinator) ToggleStatusEffect(entityID, effect string) error {
	c.mu.Lock()

	ref, ok := c.index[entityID]
	if !ok || ref.Character == nil {
		return c.rejectLocked(domain.ActionStatusToggle, entityID, ErrUnknownEntity)
	}
	ch := ref.Character

	pa := &PendingAction{
		ID:           uuid.New(),
		Kind:         domain.ActionStatusToggle,
		TargetID:     entityID,
		SubmittedAt:  time.Now(),
		PriorEffects: append([]string(nil), ch.StatusEffects...),
	}

	if ch.HasStatus(effect) {
		next := ch.StatusEffects[:0:0]
		for _, s := range ch.StatusEffects {
			if s != effect {
				next = append(next, s)
			}
		}
		ch.StatusEffects = next
	} else {
		ch.StatusEffects = append(ch.StatusEffects, effect)
	}

	c.pending.Add(pa)
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: domain.ActionStatusToggle, TargetID: entityID})
	c.submit(pa, func(ctx context.Context) error {
		return c.backend.ToggleStatusEffect(ctx, entityID, effect)
	})
	return nil
}

// PerformAction выполняет основное действие (атака, захват, ...)
func (c *Coordinator) PerformAction(entityID, actionType string) error {
	return c.spendSlot(domain.ActionPerform, entityID, slotMajor, func(ctx context.Context) error {
		return c.backend.PerformAction(ctx, entityID, actionType)
	})
}

// CastSpell произносит заклинание (основное действие)
func (c *Coordinator) CastSpell(entityID, spellName string) error {
	return c.spendSlot(domain.ActionSpell, entityID, slotMajor, func(ctx context.Context) error {
		return c.backend.CastSpell(ctx, entityID, spellName)
	})
}

// RollPerception - бросок внимательности (второстепенное действие)
func (c *Coordinator) RollPerception(entityID string) error {
	return c.spendSlot(domain.ActionPerception, entityID, slotMinor, func(ctx context.Context) error {
		return c.backend.RollPerceptionCheck(ctx, entityID)
	})
}

type actionSlot uint8

const (
	slotMajor actionSlot = iota
	slotMinor
)

// spendSlot - общий каркас действий, тратящих слот экономики хода
func (c *Coordinator) spendSlot(kind domain.ActionKind, entityID string, slot actionSlot, call func(ctx context.Context) error) error {
	c.mu.Lock()

	if err := c.turns.CanActAs(entityID, c.me.IsDM); err != nil {
		return c.rejectLocked(kind, entityID, err)
	}
	if !c.me.IsDM && !c.ownsEntityLocked(entityID) {
		return c.rejectLocked(kind, entityID, ErrNotYourTurn)
	}

	// DM в окне прерывания действует вне экономики хода
	outOfTurn := c.me.IsDM && c.state.Turn.Paused

	pa := c.turnPendingLocked(kind, entityID)
	if !outOfTurn {
		var err error
		if slot == slotMajor {
			err = c.turns.SpendMajorAction()
		} else {
			err = c.turns.SpendMinorAction()
		}
		if err != nil {
			return c.rejectLocked(kind, entityID, err)
		}
	}
	c.pending.Add(pa)

	update := TurnUpdate{ActorEntityID: entityID}
	if !outOfTurn {
		used := true
		if slot == slotMajor {
			update.MajorActionUsed = &used
		} else {
			update.MinorActionUsed = &used
		}
	}
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventApplied, Kind: kind, TargetID: entityID})

	c.submit(pa, func(ctx context.Context) error {
		if err := call(ctx); err != nil {
			return err
		}
		if !outOfTurn {
			if err := c.backend.UpdateTurnState(ctx, update); err != nil {
				logger.Log.WithError(err).WithField("entity", entityID).
					Warn("Slot update failed after successful action")
			}
		}
		return nil
	})
	return nil
}

// --- ВНУТРЕННЕЕ ---

// turnPendingLocked готовит запись отката с полным слепком TurnState
func (c *Coordinator) turnPendingLocked(kind domain.ActionKind, target string) *PendingAction {
	return &PendingAction{
		ID:          uuid.New(),
		Kind:        kind,
		TargetID:    target,
		SubmittedAt: time.Now(),
		PriorTurn:   c.state.Turn.Clone(),
	}
}

// speedLookupLocked строит SpeedLookup по листам персонажей
func (c *Coordinator) speedLookupLocked() SpeedLookup {
	speeds := make(map[string]int, len(c.state.Characters))
	for _, ch := range c.state.Characters {
		s := ch.Speed
		if s <= 0 {
			s = DefaultSpeed
		}
		speeds[ch.ID] = s
	}
	return func(entityID string) (int, bool) {
		s, ok := speeds[entityID]
		if !ok {
			return DefaultSpeed, true
		}
		return s, true
	}
}

// ownsEntityLocked: наша ли это сущность (наш персонаж)
func (c *Coordinator) ownsEntityLocked(entityID string) bool {
	if c.me.CharacterID != "" && c.me.CharacterID == entityID {
		return true
	}
	ref, ok := c.index[entityID]
	return ok && ref.Character != nil && ref.Character.PlayerID == c.me.ID
}

// rejectLocked публикует отказ и возвращает его причину.
// Вызывается ПОД мьютексом и отпускает его.
func (c *Coordinator) rejectLocked(kind domain.ActionKind, target string, err error) error {
	c.mu.Unlock()
	return c.reject(kind, target, err)
}

func (c *Coordinator) reject(kind domain.ActionKind, target string, err error) error {
	logger.Log.WithFields(logrus.Fields{
		"kind":   kind.String(),
		"target": target,
	}).WithError(err).Debug("Action rejected locally")
	c.events.Publish(Event{Type: EventRejected, Kind: kind, TargetID: target, Err: err.Error()})
	return err
}

// submit выполняет отправку асинхронно и разбирает ее исход.
// Если запись уже вытеснена (новое намерение или снапшот), исход
// игнорируется - устаревший откат не применяется никогда.
func (c *Coordinator) submit(pa *PendingAction, call func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
		defer cancel()

		err := call(ctx)

		c.mu.Lock()
		record, current := c.pending.Take(pa.ID)
		if !current {
			c.mu.Unlock()
			return
		}

		if err == nil {
			c.mu.Unlock()
			c.events.Publish(Event{Type: EventConfirmed, Kind: pa.Kind, TargetID: pa.TargetID})
			return
		}

		// Отказ сервера: точный откат прежнего значения + сообщение в журнал
		record.Revert(c.state)
		c.refreshPreviewLocked()
		c.state.AppendMessage(domain.Message{
			ID:        record.ID.String(),
			Text:      fmt.Sprintf("%s rejected: %v", pa.Kind.String(), err),
			Type:      "ERROR",
			Timestamp: time.Now().UnixMilli(),
		})
		c.mu.Unlock()

		logger.Log.WithFields(logrus.Fields{
			"kind":   pa.Kind.String(),
			"target": pa.TargetID,
		}).WithError(err).Warn("Submission failed, rolled back")

		c.events.Publish(Event{Type: EventRolledBack, Kind: pa.Kind, TargetID: pa.TargetID, Err: err.Error()})
	}()
}
