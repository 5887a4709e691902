package units

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

var addressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsAddress reports whether s is 0x followed by exactly 40 hex characters.
// Mixed case is accepted without checksum validation.
func IsAddress(s string) bool {
	return addressRE.MatchString(s)
}

// ChecksumAddress returns the EIP-55 mixed-case form of a valid address.
// Invalid input is returned unchanged.
func ChecksumAddress(addr string) string {
	if !IsAddress(addr) {
		return addr
	}
	lower := strings.ToLower(addr[2:])
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}

// ShortAddress abbreviates an address as 0x1234...abcd for button labels.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
