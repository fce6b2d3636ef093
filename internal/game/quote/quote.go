// Package quote selects flavor text attached to game events.
package quote

// Category names a pool of flavor strings.
type Category string

const (
	GameStart Category = "gameStart"
	Capture   Category = "capture"
	Check     Category = "check"
	Checkmate Category = "checkmate"
	Draw      Category = "draw"
)

// Categories lists every known category in declaration order.
var Categories = []Category{GameStart, Capture, Check, Checkmate, Draw}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Pools maps each category to its candidate strings.
type Pools map[Category][]string

var defaultPools = Pools{
	GameStart: {
		"The soul is healed by being with children... and chess.",
		"To go wrong in one's own way is better than to go right in someone else's.",
		"The darker the night, the brighter the stars.",
		"Man is what he believes.",
		"Taking a new step, uttering a new word, is what people fear most.",
	},
	Capture: {
		"Pain and suffering are always inevitable for a large intelligence.",
		"The cleverest of all, in my opinion, is the man who calls himself a fool.",
		"To live without hope is to cease to live.",
		"What is hell? I maintain that it is the suffering of being unable to love.",
		"The soul has its torments.",
	},
	Check: {
		"Power is given only to those who dare to lower themselves and pick it up.",
		"It takes something more than intelligence to act intelligently.",
		"The awful thing is that beauty is mysterious as well as terrible.",
		"Man only likes to count his troubles; he doesn't calculate his happiness.",
		"Right or wrong, it's very pleasant to break something from time to time.",
	},
	Checkmate: {
		"To remain human, we must keep looking into the abyss.",
		"Nothing in this world is harder than speaking the truth.",
		"The mystery of human existence lies not in just staying alive, but in finding something to live for.",
		"Above all, don't lie to yourself.",
		"The degree of civilization in a society can be judged by entering its prisons.",
	},
	Draw: {
		"Neither combatant emerged victorious, yet both gained wisdom.",
		"In abstraction, there is no tragedy.",
		"The more I love humanity in general, the less I love man in particular.",
	},
}

// DefaultPools returns a deep copy of the built-in pools.
//
// Postcondition: Every category in Categories has a non-empty pool.
func DefaultPools() Pools {
	out := make(Pools, len(defaultPools))
	for c, qs := range defaultPools {
		out[c] = append([]string(nil), qs...)
	}
	return out
}

// MoveFlags carries the client-reported outcome of a move.
type MoveFlags struct {
	IsCapture   bool
	IsCheck     bool
	IsCheckmate bool
	IsDraw      bool
}

// ForMove returns the category for a move's flags.
// Precedence is checkmate, draw, check, capture. ok is false when no flag is set.
func ForMove(f MoveFlags) (c Category, ok bool) {
	switch {
	case f.IsCheckmate:
		return Checkmate, true
	case f.IsDraw:
		return Draw, true
	case f.IsCheck:
		return Check, true
	case f.IsCapture:
		return Capture, true
	default:
		return "", false
	}
}

// Selector picks quotes uniformly from its pools.
//
// Invariant: pools is never mutated after construction, so a Selector is safe
// for concurrent use whenever its Source is.
type Selector struct {
	src   Source
	pools Pools
}

// NewSelector builds a Selector over pools. Categories missing from pools, or
// present with no entries, use the built-in defaults. Unknown categories are
// ignored.
//
// Precondition: src must be non-nil.
func NewSelector(src Source, pools Pools) *Selector {
	merged := DefaultPools()
	for c, qs := range pools {
		if !c.Valid() || len(qs) == 0 {
			continue
		}
		merged[c] = append([]string(nil), qs...)
	}
	return &Selector{src: src, pools: merged}
}

// Pick returns a random quote from category c. Unknown categories fall back
// to GameStart.
//
// Postcondition: Returns a non-empty string.
func (s *Selector) Pick(c Category) string {
	qs, ok := s.pools[c]
	if !ok || len(qs) == 0 {
		qs = s.pools[GameStart]
	}
	return qs[s.src.Intn(len(qs))]
}

// Pool returns a copy of the quotes available for c.
func (s *Selector) Pool(c Category) []string {
	return append([]string(nil), s.pools[c]...)
}
