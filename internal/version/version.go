package version

import (
	"fmt"
	"time"
)

// Заполняются линкером через -ldflags
var (
	BuildDate   string // YYYY-MM-DD (UTC)
	BuildCommit string
	BuildBranch string
)

// День нулевого билда клиента
var buildEpoch = time.Date(
	2026, time.January, 5,
	0, 0, 0, 0,
	time.UTC,
)

// Info describes the build metadata in structured form.
type Info struct {
	BuildID    int
	BuildDate  string
	Commit     string
	Branch     string
	Calculated bool
	Error      string
}

// BuildID - номер билда: количество дней от эпохи проекта
func BuildID() (int, error) {
	if BuildDate == "" {
		return 0, fmt.Errorf("BuildDate is empty")
	}

	t, err := time.ParseInLocation("2006-01-02", BuildDate, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid BuildDate %q: %w", BuildDate, err)
	}

	if t.Before(buildEpoch) {
		return 0, fmt.Errorf("BuildDate %s is before epoch", BuildDate)
	}

	// Часы вместо суток, чтобы не зависеть от DST; обе даты в UTC
	days := int(t.Sub(buildEpoch).Hours() / 24)
	return days, nil
}

// Get returns structured version information. Safe to call at any time.
func Get() Info {
	id, err := BuildID()

	info := Info{
		BuildDate: BuildDate,
		Commit:    BuildCommit,
		Branch:    BuildBranch,
	}

	if err != nil {
		info.Error = err.Error()
		return info
	}

	info.BuildID = id
	info.Calculated = true
	return info
}

// String returns a human-readable build string.
func String() string {
	info := Get()

	if !info.Calculated {
		return fmt.Sprintf("Build unknown (%s)", info.Error)
	}

	return fmt.Sprintf(
		"Build %d (%s) commit[%s] branch[%s]",
		info.BuildID,
		info.BuildDate,
		coalesce(info.Commit, "unknown"),
		coalesce(info.Branch, "unknown"),
	)
}

// UserAgent - значение User-Agent для запросов к бэкенду
func UserAgent() string {
	info := Get()
	if !info.Calculated {
		return "encounter-client/dev"
	}
	return fmt.Sprintf("encounter-client/%d", info.BuildID)
}

func coalesce(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
