// Package puzzle generates the deterministic daily memory-match
// board. Given a calendar date and a topic, Generate always produces
// the same shuffled board, so every player faces the identical puzzle
// on a given day and a mid-game reset cannot be used to reroll it.
package puzzle

import (
	"time"

	"github.com/clt-platform/daily-match/internal/engine"
)

// contentPool is the fixed pool of 26 glyphs tiles draw from: 16
// symbolic marks followed by 10 digit characters. Order matters; the
// generator indexes into this slice, so any reordering reshuffles
// every historical board.
var contentPool = [...]string{
	"★", "♦", "♥", "♠", "♣", "●", "■", "▲",
	"◆", "◉", "✦", "✧", "⬟", "⬢", "⬣", "⭐",
	"1", "2", "3", "4", "5", "6", "7", "8", "9", "0",
}

// Tile is one board cell. ID is the tile's pre-shuffle position index
// and never changes; two tiles share a PairID and identical content.
type Tile struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	PairID  int    `json:"pairId"`
}

// Puzzle is one day's complete generated puzzle.
type Puzzle struct {
	Seed       string     `json:"seed"`
	Hash       int32      `json:"-"`
	Difficulty Difficulty `json:"difficulty"`
	Grid       GridSize   `json:"gridSize"`
	Board      []Tile     `json:"board"`
}

// PairCount returns the number of matching pairs on the board.
func (p Puzzle) PairCount() int {
	return len(p.Board) / 2
}

// generateContent draws pairCount glyphs from the pool, seeded off the
// day's hash. Draws at different i may collide on the same glyph; that
// is accepted behavior (pairs are identified by PairID, not content)
// and must be preserved for parity with historical boards.
func generateContent(hash int32, pairCount int) []string {
	content := make([]string, pairCount)
	for i := 0; i < pairCount; i++ {
		content[i] = contentPool[engine.RandIndex(int(hash)+i*100, len(contentPool))]
	}
	return content
}

// buildBoard lays out two tiles per content item, ids 2i and 2i+1,
// both carrying PairID i.
func buildBoard(content []string) []Tile {
	tiles := make([]Tile, 0, len(content)*2)
	for i, c := range content {
		tiles = append(tiles,
			Tile{ID: i * 2, Content: c, PairID: i},
			Tile{ID: i*2 + 1, Content: c, PairID: i},
		)
	}
	return tiles
}

// shuffle permutes tiles in place with Fisher-Yates, drawing swap
// indices from the seeded generator. It must receive the same hash
// that seeded content selection, not a re-derived one, and the swap
// index for position i is drawn from Rand(hash + i); both are part of
// the board's deterministic identity.
func shuffle(tiles []Tile, hash int32) {
	for i := len(tiles) - 1; i > 0; i-- {
		j := engine.RandIndex(int(hash)+i, i+1)
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}
}

// Generate produces the deterministic puzzle for a calendar day and
// topic: seed, difficulty tier, glyph selection, pairing, and shuffle.
// Calling it twice with the same day and topic yields identical
// output.
func Generate(t time.Time, topic string) Puzzle {
	seed := engine.DailySeed(t, topic)
	hash := engine.HashSeed(seed)
	difficulty := SelectDifficulty(hash)

	board := buildBoard(generateContent(hash, difficulty.PairCount()))
	shuffle(board, hash)

	return Puzzle{
		Seed:       seed,
		Hash:       hash,
		Difficulty: difficulty,
		Grid:       difficulty.Grid(),
		Board:      board,
	}
}
