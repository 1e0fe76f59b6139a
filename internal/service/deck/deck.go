// Package deck implements the 54-card landlord deck and the combination
// rules used to validate and compare plays.
package deck

import (
	mrand "math/rand"
	"sort"
)

// Card tokens are suit+rank ("S3", "H10", "DQ"), plus the joker sentinels
// BlackJoker and RedJoker.
const (
	BlackJoker = "BJ"
	RedJoker   = "RJ"
)

var suits = []string{"S", "H", "C", "D"}

var ranks = []string{"3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A", "2"}

var rankWeight = func() map[string]int {
	weights := make(map[string]int, len(ranks)+2)
	for i, rank := range ranks {
		weights[rank] = i
	}
	weights[BlackJoker] = len(ranks)
	weights[RedJoker] = len(ranks) + 1
	return weights
}()

// ShuffledDeck returns a freshly shuffled 54-card deck.
func ShuffledDeck() []string {
	cards := make([]string, 0, 54)
	for _, rank := range ranks {
		for _, suit := range suits {
			cards = append(cards, suit+rank)
		}
	}
	cards = append(cards, BlackJoker, RedJoker)
	mrand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return cards
}

// SortCards orders a hand ascending by rank weight, suit-agnostic, so the
// strongest cards end up at the tail for display.
func SortCards(cards []string) {
	sort.SliceStable(cards, func(i, j int) bool {
		return Weight(cards[i]) < Weight(cards[j])
	})
}

// Weight returns the comparison weight of a single card, -1 for garbage.
func Weight(card string) int {
	w, ok := rankWeight[cardRank(card)]
	if !ok {
		return -1
	}
	return w
}

func cardRank(card string) string {
	if card == BlackJoker || card == RedJoker {
		return card
	}
	if len(card) < 2 {
		return ""
	}
	return card[1:]
}

func weightOfRank(rank string) (int, bool) {
	w, ok := rankWeight[rank]
	return w, ok
}
