package crypto

import (
	"strings"
	"testing"
)

func TestParseAddressHex(t *testing.T) {
	var want Address
	want[19] = 0xad
	for _, raw := range []string{
		"0x00000000000000000000000000000000000000ad",
		"00000000000000000000000000000000000000AD",
		"  0x00000000000000000000000000000000000000aD ",
	} {
		got, err := ParseAddress(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %x", raw, got)
		}
	}
}

func TestBech32RoundTrip(t *testing.T) {
	var addr Address
	for i := range addr {
		addr[i] = byte(i * 7)
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %x != %x", decoded, addr)
	}
	if _, err := ParseAddress(strings.ToUpper(encoded)); err != nil {
		t.Fatalf("upper-case bech32 should decode: %v", err)
	}
}

func TestParseAddressRejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"0x1234",
		"0xzz000000000000000000000000000000000000ad",
		"dm1notbech32",
	} {
		if _, err := ParseAddress(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestHexIsChecksummed(t *testing.T) {
	addr, err := ParseAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := addr.Hex(); got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("unexpected checksum form %s", got)
	}
}
