package cache

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint derives a cache key from a domain tag and the request parts.
// FUNCTIONAL DISCOVERY: Each part is length-prefixed so ("ab","c") and ("a","bc")
// never collide, and the domain tag keeps synthesis and translation keys apart
// even for identical inputs.
func Fingerprint(domain string, parts ...string) string {
	h := blake3.New()
	writePart(h, domain)
	for _, p := range parts {
		writePart(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writePart(h *blake3.Hasher, s string) {
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(s)))
	_, _ = h.Write(size[:])
	_, _ = h.Write([]byte(s))
}

// NormalizeText trims surrounding whitespace so trivially different inputs share an entry
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}
