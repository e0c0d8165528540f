package mariadb

import (
	"strings"
	"testing"
)

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{
			name: "bare dsn",
			dsn:  "user:pass@tcp(localhost:3306)/attendance",
		},
		{
			name: "dsn with existing params",
			dsn:  "user:pass@tcp(localhost:3306)/attendance?charset=utf8mb4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeDSN(tt.dsn)
			if err != nil {
				t.Fatalf("normalizeDSN(%q) error: %v", tt.dsn, err)
			}
			if !strings.Contains(got, "parseTime=true") {
				t.Errorf("normalizeDSN(%q) = %q, missing parseTime=true", tt.dsn, got)
			}
			if n := strings.Count(got, "?"); n != 1 {
				t.Errorf("normalizeDSN(%q) = %q, has %d '?' separators", tt.dsn, got, n)
			}
		})
	}
}

func TestNormalizeDSNKeepsParams(t *testing.T) {
	got, err := normalizeDSN("user:pass@tcp(localhost:3306)/attendance?charset=utf8mb4")
	if err != nil {
		t.Fatalf("normalizeDSN() error: %v", err)
	}
	if !strings.Contains(got, "charset=utf8mb4") {
		t.Errorf("normalizeDSN() = %q, dropped charset param", got)
	}
}

func TestNormalizeDSNInvalid(t *testing.T) {
	if _, err := normalizeDSN("user:pass@tcp(localhost:3306"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}
