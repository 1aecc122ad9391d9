package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLog_RedactsEmailFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, INFO)

	l.Log(INFO, "account created", "email", "student@example.com", "segment", "Alpha")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["email"] != "st***@example.com" {
		t.Errorf("email = %q, want redacted", entry["email"])
	}
	if entry["segment"] != "Alpha" {
		t.Errorf("segment = %q, want Alpha", entry["segment"])
	}
}

func TestLog_RedactsEmbeddedEmails(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, INFO)

	l.Log(WARN, "share failed", "error", "permission denied for jane@school.org")

	if strings.Contains(buf.String(), "jane@school.org") {
		t.Errorf("raw email leaked into log output: %s", buf.String())
	}
}

func TestLog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN)

	l.Log(INFO, "ignored")
	if buf.Len() != 0 {
		t.Errorf("INFO entry emitted below WARN level: %s", buf.String())
	}

	l.Log(ERROR, "kept")
	if buf.Len() == 0 {
		t.Error("ERROR entry not emitted")
	}
}
