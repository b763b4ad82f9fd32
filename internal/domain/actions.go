package domain

import "strings"

// ActionKind - внутренний числовой идентификатор пользовательского намерения
type ActionKind uint8

const (
	ActionUnknown ActionKind = iota
	ActionMove
	ActionPlace
	ActionDamage
	ActionHeal
	ActionStatusToggle
	ActionTurnAdvance
	ActionInitiative
	ActionInterrupt
	ActionResume
	ActionStartTurn
	ActionPerform
	ActionSpell
	ActionPerception
)

// Маппинг для конвертации JSON -> Domain
var actionStringToKind = map[string]ActionKind{
	"MOVE":          ActionMove,
	"PLACE":         ActionPlace,
	"DAMAGE":        ActionDamage,
	"HEAL":          ActionHeal,
	"STATUS_TOGGLE": ActionStatusToggle,
	"TURN_ADVANCE":  ActionTurnAdvance,
	"INITIATIVE":    ActionInitiative,
	"INTERRUPT":     ActionInterrupt,
	"RESUME":        ActionResume,
	"START_TURN":    ActionStartTurn,
	"PERFORM":       ActionPerform,
	"SPELL":         ActionSpell,
	"PERCEPTION":    ActionPerception,
}

// Маппинг для логов Domain -> String
var actionKindToString = map[ActionKind]string{
	ActionMove:         "MOVE",
	ActionPlace:        "PLACE",
	ActionDamage:       "DAMAGE",
	ActionHeal:         "HEAL",
	ActionStatusToggle: "STATUS_TOGGLE",
	ActionTurnAdvance:  "TURN_ADVANCE",
	ActionInitiative:   "INITIATIVE",
	ActionInterrupt:    "INTERRUPT",
	ActionResume:       "RESUME",
	ActionStartTurn:    "START_TURN",
	ActionPerform:      "PERFORM",
	ActionSpell:        "SPELL",
	ActionPerception:   "PERCEPTION",
}

// ParseActionKind конвертирует строку из JSON в ActionKind
func ParseActionKind(s string) ActionKind {
	// Делаем нечувствительным к регистру для надежности
	upper := strings.ToUpper(s)
	if val, ok := actionStringToKind[upper]; ok {
		return val
	}
	return ActionUnknown
}

// String реализует интерфейс Stringer (для fmt.Printf и логов)
func (a ActionKind) String() string {
	if val, ok := actionKindToString[a]; ok {
		return val
	}
	return "UNKNOWN"
}
