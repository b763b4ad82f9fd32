package engine

import (
	"reflect"
	"testing"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

func testSpeeds(entityID string) (int, bool) {
	return 6, true
}

func rolledEngine(t *testing.T) *TurnEngine {
	t.Helper()
	te := NewTurnEngine(&domain.TurnState{})
	rolls := []InitiativeRoll{
		{EntityID: "char_1", Type: domain.TokenTypePlayer, Roll: 12},
		{EntityID: "npc_goblin", Type: domain.TokenTypeNPC, Roll: 18},
		{EntityID: "char_2", Type: domain.TokenTypePlayer, Roll: 12},
	}
	if err := te.RollInitiative(rolls, testSpeeds); err != nil {
		t.Fatalf("RollInitiative failed: %v", err)
	}
	return te
}

func TestRollInitiativeOrdering(t *testing.T) {
	te := rolledEngine(t)
	order := te.State().InitiativeOrder

	// Highest roll first; equal rolls keep original order (char_1 before char_2)
	want := []string{"npc_goblin", "char_1", "char_2"}
	for i, id := range want {
		if order[i].EntityID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, order[i].EntityID)
		}
	}

	// First entry's turn is open with a fresh budget
	active := te.State().Active
	if active == nil || active.EntityID != "npc_goblin" {
		t.Fatal("Expected npc_goblin's turn to start")
	}
	if active.Speed != 6 || active.MovementUsed != 0 || active.MajorActionUsed || active.MinorActionUsed {
		t.Error("New turn must start with a clean budget")
	}
}

func TestRollInitiativeOnlyOnce(t *testing.T) {
	te := rolledEngine(t)
	err := te.RollInitiative([]InitiativeRoll{{EntityID: "x", Type: domain.TokenTypePlayer, Roll: 1}}, testSpeeds)
	if err != ErrAlreadyRolled {
		t.Errorf("Expected ErrAlreadyRolled, got %v", err)
	}
}

func TestAdvanceBeforeRollRejected(t *testing.T) {
	state := &domain.TurnState{}
	te := NewTurnEngine(state)

	before := state.Clone()
	if err := te.AdvanceTurn(testSpeeds); err != ErrNoInitiative {
		t.Errorf("Expected ErrNoInitiative, got %v", err)
	}
	if !reflect.DeepEqual(state, before) {
		t.Error("Rejected transition must not mutate state")
	}
}

func TestAdvanceTurnWrapsAndResets(t *testing.T) {
	te := rolledEngine(t)

	// Spend some budget, then advance
	if err := te.SpendMovement(4); err != nil {
		t.Fatal(err)
	}
	if err := te.SpendMajorAction(); err != nil {
		t.Fatal(err)
	}
	if err := te.Interrupt(); err != nil {
		t.Fatal(err)
	}

	if err := te.AdvanceTurn(testSpeeds); err != nil {
		t.Fatal(err)
	}

	active := te.State().Active
	if active.EntityID != "char_1" {
		t.Errorf("Expected char_1's turn, got %s", active.EntityID)
	}
	if active.MovementUsed != 0 || active.MajorActionUsed || active.MinorActionUsed {
		t.Error("AdvanceTurn must clear all usage fields")
	}
	if te.State().Paused {
		t.Error("AdvanceTurn must clear pausedTurn")
	}

	// Wrap: two more advances bring us back to the head of the order
	te.AdvanceTurn(testSpeeds)
	te.AdvanceTurn(testSpeeds)
	if te.State().Active.EntityID != "npc_goblin" {
		t.Errorf("Expected wrap to npc_goblin, got %s", te.State().Active.EntityID)
	}
}

func TestSpendMovementGuard(t *testing.T) {
	te := rolledEngine(t)

	if err := te.SpendMovement(5); err != nil {
		t.Fatal(err)
	}

	before := te.State().Clone()
	if err := te.SpendMovement(2); err != ErrMovementExceeded {
		t.Errorf("Expected ErrMovementExceeded, got %v", err)
	}
	if !reflect.DeepEqual(te.State(), before) {
		t.Error("Rejected spend must leave state byte-for-byte unchanged")
	}

	// Exact remainder is fine
	if err := te.SpendMovement(1); err != nil {
		t.Errorf("Spending the exact remainder must succeed: %v", err)
	}
	if te.State().Active.MovementUsed != 6 {
		t.Errorf("Expected movementUsed=6, got %d", te.State().Active.MovementUsed)
	}
}

func TestSpendActionsOnlyOnce(t *testing.T) {
	te := rolledEngine(t)

	if err := te.SpendMajorAction(); err != nil {
		t.Fatal(err)
	}
	if err := te.SpendMajorAction(); err != ErrMajorActionUsed {
		t.Errorf("Expected ErrMajorActionUsed, got %v", err)
	}

	if err := te.SpendMinorAction(); err != nil {
		t.Fatal(err)
	}
	if err := te.SpendMinorAction(); err != ErrMinorActionUsed {
		t.Errorf("Expected ErrMinorActionUsed, got %v", err)
	}
}

func TestInterruptResume(t *testing.T) {
	te := rolledEngine(t)

	if err := te.Resume(); err != ErrTurnNotPaused {
		t.Errorf("Resume without pause: expected ErrTurnNotPaused, got %v", err)
	}

	if err := te.Interrupt(); err != nil {
		t.Fatal(err)
	}
	if !te.State().Paused {
		t.Error("Interrupt must set pausedTurn")
	}
	// Active turn is untouched
	if te.State().Active.EntityID != "npc_goblin" {
		t.Error("Interrupt must not change the active turn")
	}

	if err := te.Interrupt(); err != ErrTurnPaused {
		t.Errorf("Double interrupt: expected ErrTurnPaused, got %v", err)
	}

	if err := te.Resume(); err != nil {
		t.Fatal(err)
	}
	if te.State().Paused {
		t.Error("Resume must clear pausedTurn")
	}
}

func TestStartSpecificTurn(t *testing.T) {
	te := rolledEngine(t)
	orderBefore := append([]domain.InitiativeEntry(nil), te.State().InitiativeOrder...)

	if err := te.StartSpecificTurn("char_2", testSpeeds); err != nil {
		t.Fatal(err)
	}
	if te.State().Active.EntityID != "char_2" {
		t.Errorf("Expected char_2 active, got %s", te.State().Active.EntityID)
	}
	if !reflect.DeepEqual(te.State().InitiativeOrder, orderBefore) {
		t.Error("StartSpecificTurn must leave initiativeOrder unchanged")
	}

	if err := te.StartSpecificTurn("ghost", testSpeeds); err != ErrNotInInitiative {
		t.Errorf("Expected ErrNotInInitiative, got %v", err)
	}
}

func TestCanActAsOwnership(t *testing.T) {
	te := rolledEngine(t)
	te.AdvanceTurn(testSpeeds) // char_1 (player) is now active

	// The active player acts
	if err := te.CanActAs("char_1", false); err != nil {
		t.Errorf("Active player must be allowed: %v", err)
	}
	// Another player does not
	if err := te.CanActAs("char_2", false); err != ErrNotYourTurn {
		t.Errorf("Expected ErrNotYourTurn, got %v", err)
	}
	// DM stands in for the active entity
	if err := te.CanActAs("char_1", true); err != nil {
		t.Errorf("DM must act as the active entity: %v", err)
	}
	// DM cannot act as an arbitrary entity while unpaused
	if err := te.CanActAs("npc_goblin", true); err != ErrNotYourTurn {
		t.Errorf("Expected ErrNotYourTurn for DM out of window, got %v", err)
	}

	// Pause freezes players but opens the DM window for anyone
	te.Interrupt()
	if err := te.CanActAs("char_1", false); err != ErrTurnPaused {
		t.Errorf("Expected ErrTurnPaused, got %v", err)
	}
	if err := te.CanActAs("npc_goblin", true); err != nil {
		t.Errorf("DM must act freely while paused: %v", err)
	}
}

func TestEndEncounterClearsState(t *testing.T) {
	te := rolledEngine(t)
	te.EndEncounter()

	state := te.State()
	if state.Rolled() || state.Active != nil || state.Paused {
		t.Error("EndEncounter must clear the round state")
	}
	// Back to NoInitiative: advancing is rejected again
	if err := te.AdvanceTurn(testSpeeds); err != ErrNoInitiative {
		t.Errorf("Expected ErrNoInitiative after encounter end, got %v", err)
	}
}
