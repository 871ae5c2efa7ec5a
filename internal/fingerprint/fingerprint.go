// Package fingerprint derives the cache and dedup key for an email from
// its normalized content.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"github.com/mailsift/mailsift/internal/mail"
)

// Sum computes the SHA-256 fingerprint of a normalized content tuple.
// Each field is length-prefixed before hashing so no concatenation of
// fields can collide with a different field split.
func Sum(c mail.Content) string {
	h := sha256.New()
	writeField(h, c.Subject)
	writeField(h, c.Body)
	writeField(h, c.Sender)
	writeLen(h, len(c.Links))
	for _, link := range c.Links {
		writeField(h, link)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, field string) {
	writeLen(h, len(field))
	h.Write([]byte(field))
}

func writeLen(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}
