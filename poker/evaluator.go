package poker

import (
	"fmt"
	"sort"
)

// Category enumerates hand categories in ascending strength.
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns the wire name of the category.
func (c Category) String() string {
	switch c {
	case HighCard:
		return "HIGH_CARD"
	case Pair:
		return "PAIR"
	case TwoPair:
		return "TWO_PAIR"
	case ThreeOfAKind:
		return "THREE_OF_A_KIND"
	case Straight:
		return "STRAIGHT"
	case Flush:
		return "FLUSH"
	case FullHouse:
		return "FULL_HOUSE"
	case FourOfAKind:
		return "FOUR_OF_A_KIND"
	case StraightFlush:
		return "STRAIGHT_FLUSH"
	case RoyalFlush:
		return "ROYAL_FLUSH"
	default:
		return "UNKNOWN"
	}
}

// HandValue is the evaluated strength of a best-five hand: a category plus
// an ordered tiebreaker vector compared lexicographically within the
// category. For TWO_PAIR the vector is [higher pair, lower pair, kicker];
// straights carry only their high card, with the wheel high card being Five.
type HandValue struct {
	Category Category
	Tiebreak []Rank
}

// Compare returns -1, 0 or 1 as v is weaker than, equal to or stronger
// than other.
func (v HandValue) Compare(other HandValue) int {
	if v.Category != other.Category {
		if v.Category < other.Category {
			return -1
		}
		return 1
	}
	for i := range v.Tiebreak {
		if i >= len(other.Tiebreak) {
			break
		}
		if v.Tiebreak[i] != other.Tiebreak[i] {
			if v.Tiebreak[i] < other.Tiebreak[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Describe returns a human-readable description, e.g. "Two Pair, Kings and Fours".
func (v HandValue) Describe() string {
	tb := func(i int) Rank {
		if i < len(v.Tiebreak) {
			return v.Tiebreak[i]
		}
		return 0
	}
	switch v.Category {
	case RoyalFlush:
		return "Royal Flush"
	case StraightFlush:
		return fmt.Sprintf("Straight Flush, %s high", tb(0).Name())
	case FourOfAKind:
		return fmt.Sprintf("Four of a Kind, %s", plural(tb(0)))
	case FullHouse:
		return fmt.Sprintf("Full House, %s full of %s", plural(tb(0)), plural(tb(1)))
	case Flush:
		return fmt.Sprintf("Flush, %s high", tb(0).Name())
	case Straight:
		return fmt.Sprintf("Straight, %s high", tb(0).Name())
	case ThreeOfAKind:
		return fmt.Sprintf("Three of a Kind, %s", plural(tb(0)))
	case TwoPair:
		return fmt.Sprintf("Two Pair, %s and %s", plural(tb(0)), plural(tb(1)))
	case Pair:
		return fmt.Sprintf("Pair of %s", plural(tb(0)))
	default:
		return fmt.Sprintf("High Card %s", tb(0).Name())
	}
}

func plural(r Rank) string {
	if r == Six {
		return "Sixes"
	}
	return r.Name() + "s"
}

// Evaluate returns the value of the best five-card hand that can be made
// from the given cards (five to seven of them).
func Evaluate(cards []Card) HandValue {
	var rankCount [15]int
	var suitCount [4]int
	for _, c := range cards {
		rankCount[c.Rank]++
		suitCount[c.Suit]++
	}

	flushSuit := Suit(255)
	for s := Hearts; s <= Spades; s++ {
		if suitCount[s] >= 5 {
			flushSuit = s
			break
		}
	}

	// Straight flush and royal flush.
	if flushSuit != Suit(255) {
		var suited [15]bool
		for _, c := range cards {
			if c.Suit == flushSuit {
				suited[c.Rank] = true
			}
		}
		if high := straightHigh(suited); high != 0 {
			if high == Ace {
				return HandValue{Category: RoyalFlush, Tiebreak: []Rank{Ace}}
			}
			return HandValue{Category: StraightFlush, Tiebreak: []Rank{high}}
		}
	}

	// Group ranks by multiplicity, each group sorted high-to-low.
	var quads, trips, pairs, singles []Rank
	for r := Ace; r >= Two; r-- {
		switch rankCount[r] {
		case 4:
			quads = append(quads, r)
		case 3:
			trips = append(trips, r)
		case 2:
			pairs = append(pairs, r)
		case 1:
			singles = append(singles, r)
		}
	}

	if len(quads) > 0 {
		kicker := bestExcluding(rankCount, quads[0])
		return HandValue{Category: FourOfAKind, Tiebreak: []Rank{quads[0], kicker}}
	}

	if len(trips) > 0 && (len(trips) > 1 || len(pairs) > 0) {
		pairRank := Rank(0)
		if len(trips) > 1 {
			pairRank = trips[1]
		}
		if len(pairs) > 0 && pairs[0] > pairRank {
			pairRank = pairs[0]
		}
		return HandValue{Category: FullHouse, Tiebreak: []Rank{trips[0], pairRank}}
	}

	if flushSuit != Suit(255) {
		var flushRanks []Rank
		for _, c := range cards {
			if c.Suit == flushSuit {
				flushRanks = append(flushRanks, c.Rank)
			}
		}
		sort.Slice(flushRanks, func(i, j int) bool { return flushRanks[i] > flushRanks[j] })
		return HandValue{Category: Flush, Tiebreak: flushRanks[:5]}
	}

	var present [15]bool
	for _, c := range cards {
		present[c.Rank] = true
	}
	if high := straightHigh(present); high != 0 {
		return HandValue{Category: Straight, Tiebreak: []Rank{high}}
	}

	if len(trips) > 0 {
		tb := append([]Rank{trips[0]}, topN(singles, 2)...)
		return HandValue{Category: ThreeOfAKind, Tiebreak: tb}
	}

	if len(pairs) >= 2 {
		kicker := bestExcluding(rankCount, pairs[0], pairs[1])
		return HandValue{Category: TwoPair, Tiebreak: []Rank{pairs[0], pairs[1], kicker}}
	}

	if len(pairs) == 1 {
		tb := append([]Rank{pairs[0]}, topN(singles, 3)...)
		return HandValue{Category: Pair, Tiebreak: tb}
	}

	return HandValue{Category: HighCard, Tiebreak: topN(singles, 5)}
}

// straightHigh returns the high card of the best straight in the rank set,
// or 0 if there is none. The wheel (A-2-3-4-5) counts with Five high.
func straightHigh(present [15]bool) Rank {
	for high := Ace; high >= Six; high-- {
		run := true
		for r := high; r > high-5; r-- {
			if !present[r] {
				run = false
				break
			}
		}
		if run {
			return high
		}
	}
	if present[Ace] && present[Two] && present[Three] && present[Four] && present[Five] {
		return Five
	}
	return 0
}

// bestExcluding returns the highest rank with nonzero count that is not in
// the excluded set.
func bestExcluding(rankCount [15]int, exclude ...Rank) Rank {
	for r := Ace; r >= Two; r-- {
		if rankCount[r] == 0 {
			continue
		}
		skip := false
		for _, e := range exclude {
			if r == e {
				skip = true
				break
			}
		}
		if !skip {
			return r
		}
	}
	return 0
}

func topN(ranks []Rank, n int) []Rank {
	if len(ranks) < n {
		n = len(ranks)
	}
	out := make([]Rank, n)
	copy(out, ranks[:n])
	return out
}
