package poker

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Deck is an ordered sequence of cards dealt from the front. Production
// decks are shuffled with a CSPRNG-seeded Fisher-Yates; tests may construct
// a deck from a fixed permutation.
type Deck struct {
	cards []Card
	next  int
}

// NewDeck creates a standard 52-card deck shuffled with a
// cryptographically seeded source.
func NewDeck() *Deck {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand never fails on supported platforms; guard anyway.
		panic(fmt.Sprintf("poker: seed deck: %v", err))
	}
	rng := rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
	return NewDeckWithRNG(rng)
}

// NewDeckWithRNG creates a 52-card deck shuffled with the given source.
func NewDeckWithRNG(rng *rand.Rand) *Deck {
	d := &Deck{cards: orderedCards()}
	d.shuffle(rng)
	return d
}

// NewDeckFromCards builds a deck from an explicit permutation of the 52
// distinct cards, in deal order.
func NewDeckFromCards(cards []Card) (*Deck, error) {
	if len(cards) != 52 {
		return nil, fmt.Errorf("poker: deck needs 52 cards, got %d", len(cards))
	}
	seen := make(map[Card]bool, 52)
	for _, c := range cards {
		if !c.Valid() {
			return nil, fmt.Errorf("poker: invalid card %v in deck", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("poker: duplicate card %v in deck", c)
		}
		seen[c] = true
	}
	d := &Deck{cards: make([]Card, 52)}
	copy(d.cards, cards)
	return d, nil
}

func orderedCards() []Card {
	cards := make([]Card, 0, 52)
	for suit := Hearts; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			cards = append(cards, Card{Rank: rank, Suit: suit})
		}
	}
	return cards
}

// shuffle performs Fisher-Yates over the full deck.
func (d *Deck) shuffle(rng *rand.Rand) {
	d.next = 0
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the next n cards.
func (d *Deck) Deal(n int) []Card {
	if d.next+n > len(d.cards) {
		return nil
	}
	cards := make([]Card, n)
	copy(cards, d.cards[d.next:d.next+n])
	d.next += n
	return cards
}

// DealOne removes and returns the next card.
func (d *Deck) DealOne() (Card, bool) {
	if d.next >= len(d.cards) {
		return Card{}, false
	}
	c := d.cards[d.next]
	d.next++
	return c, true
}

// Remaining returns a copy of the undealt cards in order.
func (d *Deck) Remaining() []Card {
	out := make([]Card, len(d.cards)-d.next)
	copy(out, d.cards[d.next:])
	return out
}

// CardsRemaining returns the number of undealt cards.
func (d *Deck) CardsRemaining() int {
	return len(d.cards) - d.next
}
