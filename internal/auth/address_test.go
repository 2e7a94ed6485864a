package auth_test

import (
	"encoding/json"
	"testing"

	"VaultQueue/internal/auth"
)

// ============================================================================
// Test: ParseAddress
// ============================================================================

func TestParseAddress_WithPrefix(t *testing.T) {
	addr, err := auth.ParseAddress("0x00112233445566778899aabbccddeeff00112233")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr.String() != "0x00112233445566778899aabbccddeeff00112233" {
		t.Errorf("round trip mismatch: %s", addr.String())
	}
}

func TestParseAddress_WithoutPrefix(t *testing.T) {
	addr, err := auth.ParseAddress("00112233445566778899aabbccddeeff00112233")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr.String() != "0x00112233445566778899aabbccddeeff00112233" {
		t.Errorf("round trip mismatch: %s", addr.String())
	}
}

func TestParseAddress_BadLength(t *testing.T) {
	if _, err := auth.ParseAddress("0x1234"); err == nil {
		t.Error("short address should fail")
	}
}

func TestParseAddress_BadPrefix(t *testing.T) {
	if _, err := auth.ParseAddress("zz00112233445566778899aabbccddeeff00112233"); err == nil {
		t.Error("bad prefix should fail")
	}
}

func TestParseAddress_BadHex(t *testing.T) {
	if _, err := auth.ParseAddress("0x0011223344556677gg99aabbccddeeff00112233"); err == nil {
		t.Error("non-hex characters should fail")
	}
}

func TestAddress_IsZero(t *testing.T) {
	var zero auth.Address
	if !zero.IsZero() {
		t.Error("zero value should report IsZero")
	}
	addr := auth.MustParseAddress("0x00112233445566778899aabbccddeeff00112233")
	if addr.IsZero() {
		t.Error("non-zero address should not report IsZero")
	}
}

func TestAddress_JSONRoundTrip(t *testing.T) {
	addr := auth.MustParseAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")

	data, err := json.Marshal(addr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var back auth.Address
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != addr {
		t.Errorf("round trip mismatch: %s", back.String())
	}
}

func TestAddress_UnmarshalRejectsNonString(t *testing.T) {
	var addr auth.Address
	if err := json.Unmarshal([]byte("42"), &addr); err == nil {
		t.Error("numeric literal should fail")
	}
}
