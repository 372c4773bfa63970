// Package gameid generates table identifiers: UUIDv7 encoded as 26
// characters of Crockford base32. IDs sort by creation time.
package gameid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// New returns a fresh game ID.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails when the system random source does.
		panic(fmt.Sprintf("gameid: %v", err))
	}
	return encode(id)
}

// encode packs the 128-bit UUID into 26 base32 characters, five bits at
// a time, most significant bits first.
func encode(id uuid.UUID) string {
	var out [26]byte
	for i := range out {
		bitOffset := i * 5
		byteIndex := bitOffset / 8
		bitIndex := bitOffset % 8

		var value uint8
		if byteIndex < len(id) {
			if bitIndex <= 3 {
				value = (id[byteIndex] >> (3 - bitIndex)) & 0x1f
			} else {
				value = (id[byteIndex] << (bitIndex - 3)) & 0x1f
				if byteIndex+1 < len(id) {
					value |= id[byteIndex+1] >> (11 - bitIndex)
				}
			}
		}
		out[i] = alphabet[value]
	}
	return string(out[:])
}

// Validate checks that an ID is 26 valid base32 characters. The first
// character carries only three significant bits, so it must be 0-7.
func Validate(id string) error {
	if len(id) != 26 {
		return fmt.Errorf("gameid: must be 26 characters, got %d", len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("gameid: first character must be 0-7, got %c", id[0])
	}
	for i, r := range id {
		if !strings.ContainsRune(alphabet, r) {
			return fmt.Errorf("gameid: invalid character %c at position %d", r, i)
		}
	}
	return nil
}
