package api

import "errors"

// Validator - интерфейс, который могут реализовать DTO
type Validator interface {
	Validate() error
}

func (r TokenUpsertRequest) Validate() error {
	if r.TokenType == "" {
		return errors.New("tokenType is required")
	}
	if r.X < 0 || r.Y < 0 {
		return errors.New("token position cannot be negative")
	}
	if r.CharacterID != "" && r.NpcID != "" {
		return errors.New("characterId and npcId are mutually exclusive")
	}
	return nil
}

func (r TurnUpdateRequest) Validate() error {
	if r.ActorEntityID == "" {
		return errors.New("actorEntityId is required")
	}
	if r.MovementUsed != nil && *r.MovementUsed < 0 {
		return errors.New("movementUsed cannot be negative")
	}
	return nil
}

func (r InitiativeRequest) Validate() error {
	if len(r.Rolls) == 0 {
		return errors.New("rolls cannot be empty")
	}
	for _, e := range r.Rolls {
		if e.EntityID == "" {
			return errors.New("roll entityId is required")
		}
	}
	return nil
}

func (r StartTurnRequest) Validate() error {
	if r.EntityID == "" {
		return errors.New("entityId is required")
	}
	return nil
}

func (r DamageRequest) Validate() error {
	if r.EntityID == "" {
		return errors.New("entityId is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func (r HealRequest) Validate() error {
	if r.EntityID == "" {
		return errors.New("entityId is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func (r StatusToggleRequest) Validate() error {
	if r.EntityID == "" {
		return errors.New("entityId is required")
	}
	if r.Effect == "" {
		return errors.New("effect is required")
	}
	return nil
}

func (r ActionRequest) Validate() error {
	if r.EntityID == "" {
		return errors.New("entityId is required")
	}
	if r.ActionType == "" {
		return errors.New("actionType is required")
	}
	return nil
}

func (r SpellRequest) Validate() error {
	if r.EntityID == "" {
		return errors.New("entityId is required")
	}
	if r.SpellName == "" {
		return errors.New("spellName is required")
	}
	return nil
}

func (r PerceptionRequest) Validate() error {
	if r.EntityID == "" {
		return errors.New("entityId is required")
	}
	return nil
}
