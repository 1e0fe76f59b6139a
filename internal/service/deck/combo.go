package deck

import (
	"sort"

	appErr "landlord-service/pkg/errors"
)

// ComboType classifies a legal play.
type ComboType string

const (
	Single             ComboType = "SINGLE"
	Pair               ComboType = "PAIR"
	Trips              ComboType = "TRIPS"
	TripsWithSingle    ComboType = "TRIPS_WITH_SINGLE"
	TripsWithPair      ComboType = "TRIPS_WITH_PAIR"
	Straight           ComboType = "STRAIGHT"
	StraightPairs      ComboType = "STRAIGHT_PAIRS"
	Airplane           ComboType = "AIRPLANE"
	AirplaneWithSingle ComboType = "AIRPLANE_WITH_SINGLE"
	AirplaneWithPairs  ComboType = "AIRPLANE_WITH_PAIRS"
	FourWithTwo        ComboType = "FOUR_WITH_TWO"
	Bomb               ComboType = "BOMB"
	JokerBomb          ComboType = "JOKER_BOMB"
)

// Combo is the parsed shape of a card set. It is recomputed from raw cards
// for every legality check and never persisted.
type Combo struct {
	Type       ComboType
	MainWeight int
	Size       int
	GroupCount int
}

// Parse classifies a set of cards into a Combo or fails with
// ErrInvalidCombination when the set matches none of the recognized shapes.
func Parse(cards []string) (Combo, error) {
	if len(cards) == 0 {
		return Combo{}, appErr.ErrEmptyAction
	}
	counts, err := countRanks(cards)
	if err != nil {
		return Combo{}, err
	}
	total := len(cards)

	if total == 2 && counts[BlackJoker] == 1 && counts[RedJoker] == 1 {
		return Combo{Type: JokerBomb, MainWeight: mustWeight(RedJoker), Size: total, GroupCount: 1}, nil
	}

	if len(counts) == 1 {
		var rank string
		for r := range counts {
			rank = r
		}
		switch counts[rank] {
		case 4:
			return Combo{Type: Bomb, MainWeight: mustWeight(rank), Size: total, GroupCount: 1}, nil
		case 3:
			return Combo{Type: Trips, MainWeight: mustWeight(rank), Size: total, GroupCount: 1}, nil
		case 2:
			return Combo{Type: Pair, MainWeight: mustWeight(rank), Size: total, GroupCount: 1}, nil
		default:
			return Combo{Type: Single, MainWeight: mustWeight(rank), Size: total, GroupCount: 1}, nil
		}
	}

	// Trips with an attachment.
	if total == 4 || total == 5 {
		trips := ranksWithCount(counts, 3)
		if len(trips) == 1 {
			main := mustWeight(trips[0])
			if total == 4 {
				return Combo{Type: TripsWithSingle, MainWeight: main, Size: total, GroupCount: 1}, nil
			}
			if hasCount(counts, 2) {
				return Combo{Type: TripsWithPair, MainWeight: main, Size: total, GroupCount: 1}, nil
			}
		}
	}

	// Four with two arbitrary extra cards.
	if total == 6 {
		fours := ranksWithCount(counts, 4)
		if len(fours) == 1 {
			return Combo{Type: FourWithTwo, MainWeight: mustWeight(fours[0]), Size: total, GroupCount: 1}, nil
		}
	}

	if total >= 5 && isRun(counts, 1) {
		return Combo{Type: Straight, MainWeight: maxWeight(counts), Size: total, GroupCount: total}, nil
	}

	if total >= 6 && total%2 == 0 && isRun(counts, 2) {
		return Combo{Type: StraightPairs, MainWeight: maxWeight(counts), Size: total, GroupCount: total / 2}, nil
	}

	// Airplane, optionally with one single or one pair per plane rank.
	trips := ranksWithCount(counts, 3)
	if len(trips) >= 2 && consecutiveRanks(trips) {
		planeLen := len(trips)
		main := maxWeightOf(trips)
		switch total {
		case planeLen * 3:
			return Combo{Type: Airplane, MainWeight: main, Size: total, GroupCount: planeLen}, nil
		case planeLen * 4:
			return Combo{Type: AirplaneWithSingle, MainWeight: main, Size: total, GroupCount: planeLen}, nil
		case planeLen * 5:
			if countOfCount(counts, 2) == planeLen {
				return Combo{Type: AirplaneWithPairs, MainWeight: main, Size: total, GroupCount: planeLen}, nil
			}
		}
	}

	return Combo{}, appErr.ErrInvalidCombination
}

// CanBeat reports whether current may be played over last. A nil last means
// the player is leading the trick and anything legal goes. Type, size and
// group count must all match unless the challenger is a bomb or joker bomb.
func CanBeat(current Combo, last *Combo) bool {
	if last == nil {
		return true
	}
	if current.Type == JokerBomb {
		return true
	}
	if current.Type == Bomb && last.Type != Bomb && last.Type != JokerBomb {
		return true
	}
	if current.Type != last.Type {
		return false
	}
	if current.Type == Bomb {
		return current.MainWeight > last.MainWeight
	}
	if current.Size != last.Size || current.GroupCount != last.GroupCount {
		return false
	}
	return current.MainWeight > last.MainWeight
}

func countRanks(cards []string) (map[string]int, error) {
	counts := make(map[string]int, len(cards))
	for _, card := range cards {
		rank := cardRank(card)
		if _, ok := weightOfRank(rank); !ok {
			return nil, appErr.ErrInvalidCombination
		}
		counts[rank]++
	}
	return counts, nil
}

func mustWeight(rank string) int {
	w, _ := weightOfRank(rank)
	return w
}

func ranksWithCount(counts map[string]int, target int) []string {
	var result []string
	for rank, count := range counts {
		if count == target {
			result = append(result, rank)
		}
	}
	return result
}

func hasCount(counts map[string]int, target int) bool {
	for _, count := range counts {
		if count == target {
			return true
		}
	}
	return false
}

func countOfCount(counts map[string]int, target int) int {
	n := 0
	for _, count := range counts {
		if count == target {
			n++
		}
	}
	return n
}

// isRun checks that every rank appears exactly required times and the ranks
// form one consecutive sequence. 2 and the jokers never participate.
func isRun(counts map[string]int, required int) bool {
	ranks := make([]string, 0, len(counts))
	for rank, count := range counts {
		if count != required {
			return false
		}
		ranks = append(ranks, rank)
	}
	return consecutiveRanks(ranks)
}

func consecutiveRanks(ranks []string) bool {
	if len(ranks) < 2 {
		return false
	}
	weights := make([]int, 0, len(ranks))
	for _, rank := range ranks {
		if rank == "2" || rank == BlackJoker || rank == RedJoker {
			return false
		}
		weights = append(weights, mustWeight(rank))
	}
	sort.Ints(weights)
	for i := 1; i < len(weights); i++ {
		if weights[i]-weights[i-1] != 1 {
			return false
		}
	}
	return true
}

func maxWeight(counts map[string]int) int {
	max := -1
	for rank := range counts {
		if w := mustWeight(rank); w > max {
			max = w
		}
	}
	return max
}

func maxWeightOf(ranks []string) int {
	max := -1
	for _, rank := range ranks {
		if w := mustWeight(rank); w > max {
			max = w
		}
	}
	return max
}
