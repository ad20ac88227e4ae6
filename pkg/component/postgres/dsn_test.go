package postgres

import (
	"encoding/json"
	"strings"
	"testing"
)

func baseOptions(password string) *Options {
	return &Options{
		Host:     "localhost",
		Port:     5432,
		Username: "bookqa",
		Password: password,
		Database: "bookqa",
		SSLMode:  "disable",
	}
}

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(baseOptions("secret"))

	for _, part := range []string{"host=localhost", "port=5432", "user=bookqa", "dbname=bookqa", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN missing expected part %q, got: %s", part, dsn)
		}
	}
}

func TestBuildDSN_PasswordEscaping(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		wantQuoted bool
	}{
		{"simple password", "secret", false},
		{"password with space", "pass word", true},
		{"password with single quote", "pass'word", true},
		{"password with backslash", "pass\\word", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := BuildDSN(baseOptions(tt.password))

			if tt.wantQuoted && !strings.Contains(dsn, "password='") {
				t.Errorf("password should be quoted: %s", dsn)
			}
			if strings.Contains(dsn, "password=pass word") {
				t.Error("password with space must not appear unquoted")
			}
		})
	}
}

func TestBuildURI_PasswordEscaping(t *testing.T) {
	tests := []struct {
		name     string
		password string
		expected string
	}{
		{"simple password", "secret", "secret"},
		{"password with at sign", "pass@word", "pass%40word"},
		{"password with slash", "pass/word", "pass%2Fword"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri := BuildURI(baseOptions(tt.password))

			expectedPart := "bookqa:" + tt.expected + "@"
			if !strings.Contains(uri, expectedPart) {
				t.Errorf("URI password not properly escaped: got %s, want part %s", uri, expectedPart)
			}
		})
	}
}

func TestEscapePostgresValue(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"", "''"},
		{"with space", "'with space'"},
		{"with'quote", "'with''quote'"},
		{"with\\backslash", "'with\\\\backslash'"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := escapePostgresValue(tt.input); result != tt.expected {
				t.Errorf("escapePostgresValue(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// 密码不得出现在日志或序列化输出里。
func TestOptionsPasswordRedacted(t *testing.T) {
	opts := baseOptions("supersecret")

	data, err := json.Marshal(opts)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if strings.Contains(string(data), "supersecret") {
		t.Error("password should be redacted in JSON output")
	}
	if !strings.Contains(string(data), "[REDACTED]") {
		t.Error("JSON output should contain [REDACTED] placeholder")
	}

	str := opts.String()
	if strings.Contains(str, "supersecret") {
		t.Error("password should be redacted in String() output")
	}
	if !strings.Contains(str, "[REDACTED]") {
		t.Error("String() output should contain [REDACTED] placeholder")
	}
}
