package puzzle

// Difficulty is one of the three fixed board-size tiers. The tier for
// a given day is a pure function of the day's seed hash, so every
// client sees the same difficulty on the same calendar day.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// difficultyOrder fixes the hash-to-tier mapping. Reordering it
// changes which days get which tier.
var difficultyOrder = [...]Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// GridSize is the board's row/column layout for a difficulty tier.
type GridSize struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// PairCount returns the number of tile pairs for the tier.
func (d Difficulty) PairCount() int {
	switch d {
	case DifficultyEasy:
		return 6
	case DifficultyHard:
		return 12
	default:
		return 8
	}
}

// Grid returns the board dimensions for the tier.
func (d Difficulty) Grid() GridSize {
	switch d {
	case DifficultyEasy:
		return GridSize{Rows: 3, Cols: 4}
	case DifficultyHard:
		return GridSize{Rows: 4, Cols: 6}
	default:
		return GridSize{Rows: 4, Cols: 4}
	}
}

// Valid reports whether d is one of the three known tiers.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// SelectDifficulty maps a seed hash to a tier via |hash| mod 3. The
// absolute value is taken in 64-bit space so math.MinInt32 does not
// overflow on negation.
func SelectDifficulty(hash int32) Difficulty {
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return difficultyOrder[h%int64(len(difficultyOrder))]
}
