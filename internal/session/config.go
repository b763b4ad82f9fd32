package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config - настройки клиента сессии, все из окружения
type Config struct {
	BackendURL string `env:"ENCOUNTER_BACKEND_URL" envDefault:"http://localhost:8080"`
	SocketURL  string `env:"ENCOUNTER_SOCKET_URL"`
	InviteCode string `env:"ENCOUNTER_INVITE_CODE"`
	Token      string `env:"ENCOUNTER_PARTICIPANT_TOKEN"`

	// Параметры переподключения и фолбэка, см. transport.Config
	ReconnectBaseDelay   time.Duration `env:"ENCOUNTER_RECONNECT_BASE_DELAY" envDefault:"1s"`
	ReconnectMultiplier  float64       `env:"ENCOUNTER_RECONNECT_MULTIPLIER" envDefault:"2"`
	MaxReconnectAttempts uint          `env:"ENCOUNTER_RECONNECT_MAX_ATTEMPTS" envDefault:"5"`
	PollInterval         time.Duration `env:"ENCOUNTER_POLL_INTERVAL" envDefault:"3s"`

	// Папка журналов сессий; пустая строка выключает запись
	RecordDir string `env:"ENCOUNTER_RECORD_DIR"`
}

// ParseConfig читает конфигурацию из переменных окружения
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.InviteCode == "" {
		return Config{}, fmt.Errorf("ENCOUNTER_INVITE_CODE is required")
	}
	return cfg, nil
}
