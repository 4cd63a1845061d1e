// Package engine implements the deterministic primitives behind the
// daily puzzle: seed derivation, seed hashing, and the seeded float
// generator that drives board generation. Everything in this package
// is a pure function of its inputs; two processes given the same date
// and topic must produce bit-identical output.
package engine

import (
	"fmt"
	"time"
	"unicode/utf16"
)

// DailySeed returns the stable seed string identifying one day's
// puzzle for a topic: "{year}-{month}-{day}-memory-{topic}" with
// 1-based month and day and no zero padding. The format is shared
// with the deployed web client and must not change, or boards stop
// lining up across clients.
func DailySeed(t time.Time, topic string) string {
	return fmt.Sprintf("%d-%d-%d-memory-%s", t.Year(), int(t.Month()), t.Day(), topic)
}

// HashSeed folds a seed string into a 32-bit signed hash using the
// rolling polynomial h = h*31 + c. The fold runs over UTF-16 code
// units, not bytes, because the web client folds over charCodeAt
// values; a byte fold diverges on any non-ASCII topic. Arithmetic is
// carried out on int32 so overflow wraps in two's complement; clients
// on platforms with wider integers must model the same wraparound or
// their boards diverge from ours.
func HashSeed(seed string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(seed)) {
		h = h*31 + int32(u)
	}
	return h
}
