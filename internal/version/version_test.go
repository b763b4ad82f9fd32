package version

import (
	"strings"
	"testing"
)

func TestBuildID(t *testing.T) {
	tests := []struct {
		name      string
		date      string
		expected  int
		wantError bool
	}{
		{
			name:     "epoch date",
			date:     "2026-01-05",
			expected: 0,
		},
		{
			name:     "next day after epoch",
			date:     "2026-01-06",
			expected: 1,
		},
		{
			name:     "one year later",
			date:     "2027-01-05",
			expected: 365,
		},
		{
			name:      "invalid format",
			date:      "invalid",
			wantError: true,
		},
		{
			name:      "empty date",
			date:      "",
			wantError: true,
		},
		{
			name:      "before epoch",
			date:      "2026-01-04",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := BuildDate
			defer func() { BuildDate = old }()

			BuildDate = tt.date

			got, err := BuildID()

			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error, got nil (id=%d)", got)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.expected {
				t.Errorf("BuildID() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestUserAgentFallsBackOnDev(t *testing.T) {
	old := BuildDate
	defer func() { BuildDate = old }()

	BuildDate = ""
	if got := UserAgent(); got != "encounter-client/dev" {
		t.Errorf("UserAgent() = %q", got)
	}

	BuildDate = "2026-01-07"
	if got := UserAgent(); !strings.HasPrefix(got, "encounter-client/") {
		t.Errorf("UserAgent() = %q", got)
	}
}
