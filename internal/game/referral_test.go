package game

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateCodeShape(t *testing.T) {
	code, err := GenerateCode(123456789)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		t.Fatalf("code %q: got %d segments want 3", code, len(parts))
	}
	if parts[0] != "123456789" {
		t.Fatalf("code %q: id segment got %q", code, parts[0])
	}
	if len(parts[2]) != 6 {
		t.Fatalf("code %q: suffix length got %d want 6", code, len(parts[2]))
	}
}

func TestGenerateCodeUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(42)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestParseCodeRoundTrip(t *testing.T) {
	code, err := GenerateCode(987)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := ParseCode(code)
	if err != nil {
		t.Fatalf("parse %q: %v", code, err)
	}
	if id != 987 {
		t.Fatalf("got id=%d want 987", id)
	}
}

func TestParseCodeRejectsGarbage(t *testing.T) {
	bad := []string{
		"",
		"justtext",
		"12-abc",
		"12-abc-def-extra",
		"-abc-def",
		"0-abc-def",
		"-5-abc-def",
		"12x-abc-def",
	}
	for _, code := range bad {
		if _, err := ParseCode(code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %q: got %v want ErrInvalidCode", code, err)
		}
	}
}

func TestValidateCode(t *testing.T) {
	code, err := GenerateCode(55)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !ValidateCode(code) {
		t.Fatalf("expected %q valid", code)
	}
	if ValidateCode("nope") {
		t.Fatalf("expected garbage invalid")
	}
}
