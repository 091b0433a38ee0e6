package result

import (
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
)

func TestAddressToBytes32Fixture(t *testing.T) {
	// Precomputed: base58 decode, drop the 2-byte prefix, hex the rest.
	const want = "9d6c2be50f706953479ab9df2ce3edca90b68053c00b3004b7f0accbe1e8eedf"

	got, err := AddressToBytes32(testAddr)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if hex.EncodeToString(got[:]) != want {
		t.Errorf("expected %s, got %s", want, hex.EncodeToString(got[:]))
	}
}

func TestAddressToBytes32SecondFixture(t *testing.T) {
	const (
		addr = "QmQoV62848XrduQ1dyimLjQnxaUfmNMh3ufqTRpyhhWwQk"
		want = "24972d055f64ff1f66413e7c98c31c41f5eef35e488e62bcecd39ae46cdde481"
	)

	got, err := AddressToBytes32(addr)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if hex.EncodeToString(got[:]) != want {
		t.Errorf("expected %s, got %s", want, hex.EncodeToString(got[:]))
	}
}

func TestAddressToBytes32Invalid(t *testing.T) {
	wrongPrefix := make([]byte, 34)
	wrongPrefix[0] = 0x11
	wrongPrefix[1] = 0x20

	cases := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"not base58", "0OIl"},
		{"too short", "Qm"},
		{"wrong prefix", base58.Encode(wrongPrefix)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := AddressToBytes32(tc.addr); err == nil {
				t.Errorf("expected error for %q", tc.addr)
			}
		})
	}
}

func TestIsContentAddress(t *testing.T) {
	if !IsContentAddress(testAddr) {
		t.Error("expected valid address")
	}

	if IsContentAddress("") || IsContentAddress("42") || IsContentAddress("garbage") {
		t.Error("expected invalid addresses to be rejected")
	}
}
