package security

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/models"
)

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
		key     string
		source  KeySource
	}{
		{"header", "/ticker", map[string]string{"X-Api-Key": "abc"}, "abc", KeyHeader},
		{"header wins over bearer", "/ticker", map[string]string{"X-Api-Key": "abc", "Authorization": "Bearer xyz"}, "abc", KeyHeader},
		{"bearer", "/ticker", map[string]string{"Authorization": "bearer  xyz "}, "xyz", KeyBearer},
		{"basic auth ignored", "/ticker?api_key=q", map[string]string{"Authorization": "Basic Zm9v"}, "q", KeyQuery},
		{"query api_key", "/ticker?api_key=q1", nil, "q1", KeyQuery},
		{"query x-api-key", "/ticker?x-api-key=q2", nil, "q2", KeyQuery},
		{"none", "/ticker", nil, "", KeyNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			key, source := ExtractAPIKey(r)
			if key != tt.key || source != tt.source {
				t.Errorf("got (%q, %q), want (%q, %q)", key, source, tt.key, tt.source)
			}
		})
	}
}

func TestKeyMatchesAndMasking(t *testing.T) {
	if !KeyMatches("secret", "secret") || KeyMatches("secret", "Secret") || KeyMatches("", "") {
		t.Error("KeyMatches misbehaves")
	}
	if got := KeyTail("change-me"); got != "***e-me" {
		t.Errorf("KeyTail = %q", got)
	}
	if got := KeyTail("ab"); got != "***" {
		t.Errorf("short KeyTail = %q", got)
	}
	if got := MaskCredential("abcdefghijkl"); got != "abcd****ijkl" {
		t.Errorf("MaskCredential = %q", got)
	}
}

func TestValidateInstID(t *testing.T) {
	valid := map[string]string{
		"eth-usdt":       "ETH-USDT",
		" BTC-USDT-SWAP": "BTC-USDT-SWAP",
		"BTC-USD-250328": "BTC-USD-250328",
	}
	for in, want := range valid {
		got, err := ValidateInstID(in)
		if err != nil || got != want {
			t.Errorf("ValidateInstID(%q) = %q, %v", in, got, err)
		}
	}

	for _, in := range []string{"", "BTC", "../etc/passwd", "ETH_USDT", "A-B-C-D-E"} {
		if _, err := ValidateInstID(in); !errors.Is(err, errors.ErrInputValidation) {
			t.Errorf("ValidateInstID(%q) should fail, got %v", in, err)
		}
	}
}

func TestValidateInstType(t *testing.T) {
	if got, err := ValidateInstType(""); err != nil || got != models.InstSpot {
		t.Errorf("empty = %q, %v", got, err)
	}
	if got, err := ValidateInstType("swap"); err != nil || got != models.InstSwap {
		t.Errorf("swap = %q, %v", got, err)
	}
	if _, err := ValidateInstType("STOCK"); err == nil {
		t.Error("expected error for STOCK")
	}
}

func TestAuditLogger_WritesJSONLines(t *testing.T) {
	al, err := NewAuditLogger(DefaultAuditConfig(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	ctx := WithRequestID(context.Background(), "req-1")

	if err := al.LogScan(ctx, AuditScanStarted, map[string]any{"batch": 5}, nil); err != nil {
		t.Fatal(err)
	}
	if err := al.LogAuthFailed(ctx, "/scan/start", "10.0.0.1", KeyQuery); err != nil {
		t.Fatal(err)
	}
	al.Close()

	data, err := os.ReadFile(al.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %s", len(lines), data)
	}

	var first AuditEvent
	if err := sonic.UnmarshalString(lines[0], &first); err != nil {
		t.Fatal(err)
	}
	if first.EventType != AuditScanStarted || !first.Success || first.RequestID != "req-1" || first.SessionID == "" {
		t.Errorf("unexpected event %+v", first)
	}

	var nilLogger *AuditLogger
	if err := nilLogger.LogPrefsChanged(ctx, []string{"batch"}, nil); err != nil {
		t.Errorf("nil logger should discard, got %v", err)
	}
}
