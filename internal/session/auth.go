package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/engine"
)

// Роли участника в claims токена
const (
	roleDM   = "dm"
	roleHost = "host"
)

// participantClaims - внутренний тип claims для разбора токена
type participantClaims struct {
	jwt.RegisteredClaims
	ParticipantID string `json:"participantId"`
	CharacterID   string `json:"characterId"`
	Role          string `json:"role"`
	SessionID     string `json:"sessionId"`
}

// ParseParticipant достает участника из непрозрачного токена.
// Подпись НЕ проверяется: токен выдал сервер, он же его и верифицирует
// на каждом запросе; клиенту нужны только claims для локальных проверок
// (чей персонаж, DM или нет).
func ParseParticipant(token string) (engine.Participant, string, error) {
	if token == "" {
		return engine.Participant{}, "", fmt.Errorf("participant token is empty")
	}

	claims := &participantClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return engine.Participant{}, "", fmt.Errorf("parse participant token: %w", err)
	}

	id := claims.ParticipantID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return engine.Participant{}, "", fmt.Errorf("participant token has no subject")
	}

	return engine.Participant{
		ID:          id,
		CharacterID: claims.CharacterID,
		IsDM:        claims.Role == roleDM || claims.Role == roleHost,
	}, claims.SessionID, nil
}
