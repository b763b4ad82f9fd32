package domain

import "testing"

func buildTestState() *SessionState {
	s := NewSessionState("ABCD")
	s.Status = SessionStatusActive
	s.Characters = []*Character{
		{ID: "char_1", PlayerID: "p1", Name: "Aria", HP: 20, MaxHP: 20, Speed: 6},
		{ID: "npc_goblin", Name: "Goblin", HP: 7, MaxHP: 7, Speed: 5, IsNPC: true},
	}
	s.Grid = NewGridModel(10, 10)
	s.Grid.Tokens = []*Token{
		{ID: "tok_1", Type: TokenTypePlayer, EntityID: "char_1", X: 0, Y: 0, Label: "A"},
		{ID: "tok_2", Type: TokenTypeNPC, EntityID: "npc_goblin", X: 5, Y: 5, Label: "g"},
		{ID: "tok_3", Type: TokenTypeObject, X: 2, Y: 2, Label: "barrel"},
	}
	return s
}

func TestBuildEntityIndex(t *testing.T) {
	s := buildTestState()
	idx := BuildEntityIndex(s)

	ref, ok := idx["char_1"]
	if !ok {
		t.Fatal("char_1 missing from index")
	}
	if ref.Kind != EntityKindPlayer {
		t.Errorf("Expected player kind, got %v", ref.Kind)
	}
	if ref.Token == nil || ref.Token.ID != "tok_1" {
		t.Error("char_1 token not attached")
	}
	if ref.Character == nil || ref.Character.Name != "Aria" {
		t.Error("char_1 character not attached")
	}

	// NPC indexed by entityId, not by token row key
	ref, ok = idx["npc_goblin"]
	if !ok {
		t.Fatal("npc_goblin missing from index")
	}
	if ref.Kind != EntityKindNPC || ref.Token == nil || ref.Character == nil {
		t.Error("npc ref incomplete")
	}
	if _, ok := idx["tok_2"]; ok {
		t.Error("npc token must not be indexed by its row key when entityId is set")
	}

	// Object token has no entityId, falls back to row key
	ref, ok = idx["tok_3"]
	if !ok {
		t.Fatal("object token missing from index")
	}
	if ref.Kind != EntityKindObject || ref.Character != nil {
		t.Error("object ref incomplete")
	}
}

func TestSessionStateCloneIsDeep(t *testing.T) {
	s := buildTestState()
	s.Turn.InitiativeOrder = []InitiativeEntry{{EntityID: "char_1", Type: TokenTypePlayer, Initiative: 17}}
	s.Turn.Active = &ActiveTurn{EntityID: "char_1", Type: TokenTypePlayer, Speed: 6}

	c := s.Clone()

	// Mutate the clone, original must not change
	c.Grid.Tokens[0].X = 9
	c.Characters[0].HP = 1
	c.Turn.Active.MovementUsed = 4
	c.Grid.Cells[3][3].Blocked = true

	if s.Grid.Tokens[0].X != 0 {
		t.Error("token mutation leaked into original")
	}
	if s.Characters[0].HP != 20 {
		t.Error("character mutation leaked into original")
	}
	if s.Turn.Active.MovementUsed != 0 {
		t.Error("turn mutation leaked into original")
	}
	if s.Grid.Cells[3][3].Blocked {
		t.Error("cell mutation leaked into original")
	}
}

func TestMovableTokenAt(t *testing.T) {
	s := buildTestState()

	if tok := s.Grid.MovableTokenAt(Position{X: 5, Y: 5}); tok == nil || tok.ID != "tok_2" {
		t.Error("expected npc token at (5,5)")
	}
	// Object tokens do not occupy cells
	if tok := s.Grid.MovableTokenAt(Position{X: 2, Y: 2}); tok != nil {
		t.Error("object token must not occupy a cell")
	}
}

func TestParseActionKind(t *testing.T) {
	if ParseActionKind("move") != ActionMove {
		t.Error("parse should be case-insensitive")
	}
	if ParseActionKind("FIREBALL") != ActionUnknown {
		t.Error("unknown action must map to ActionUnknown")
	}
	if ActionHeal.String() != "HEAL" {
		t.Errorf("unexpected string: %s", ActionHeal.String())
	}
}
