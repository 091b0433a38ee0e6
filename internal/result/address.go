package result

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// decodedAddrSize is the decoded length of a content address:
	// 2-byte multihash prefix + 32-byte digest.
	decodedAddrSize = 34

	// multihashFn and multihashLen are the fixed sha2-256 multihash prefix.
	multihashFn  = 0x12
	multihashLen = 0x20
)

// IsContentAddress reports whether addr is a valid base58 content address
// with the sha2-256 multihash prefix.
func IsContentAddress(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}

	return len(decoded) == decodedAddrSize &&
		decoded[0] == multihashFn &&
		decoded[1] == multihashLen
}

// AddressToBytes32 converts a content address to the ledger's fixed-width
// identifier: base58 decode, drop the 2-byte multihash prefix, keep the
// 32-byte digest.
func AddressToBytes32(addr string) ([32]byte, error) {
	var out [32]byte

	decoded, err := base58.Decode(addr)
	if err != nil {
		return out, fmt.Errorf("decode address %q: %w", addr, err)
	}

	if len(decoded) != decodedAddrSize {
		return out, fmt.Errorf("address %q: decoded to %d bytes, want %d", addr, len(decoded), decodedAddrSize)
	}

	if decoded[0] != multihashFn || decoded[1] != multihashLen {
		return out, fmt.Errorf("address %q: unexpected multihash prefix %x", addr, decoded[:2])
	}

	copy(out[:], decoded[2:])

	return out, nil
}
