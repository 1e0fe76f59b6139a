package deck_test

import (
	"errors"
	"testing"

	"landlord-service/internal/service/deck"
	appErr "landlord-service/pkg/errors"
)

func mustParse(t *testing.T, cards []string) deck.Combo {
	t.Helper()
	combo, err := deck.Parse(cards)
	if err != nil {
		t.Fatalf("parse %v failed: %v", cards, err)
	}
	return combo
}

func TestParseShapes(t *testing.T) {
	cases := []struct {
		name  string
		cards []string
		want  deck.ComboType
	}{
		{"single", []string{"S7"}, deck.Single},
		{"pair", []string{"S7", "H7"}, deck.Pair},
		{"trips", []string{"S7", "H7", "C7"}, deck.Trips},
		{"trips with single", []string{"S7", "H7", "C7", "D3"}, deck.TripsWithSingle},
		{"trips with pair", []string{"S7", "H7", "C7", "D3", "S3"}, deck.TripsWithPair},
		{"straight", []string{"S3", "H4", "C5", "D6", "S7"}, deck.Straight},
		{"long straight", []string{"S3", "H4", "C5", "D6", "S7", "H8", "C9", "D10"}, deck.Straight},
		{"straight pairs", []string{"S3", "H3", "C4", "D4", "S5", "H5"}, deck.StraightPairs},
		{"airplane", []string{"S7", "H7", "C7", "S8", "H8", "C8"}, deck.Airplane},
		{"airplane with singles", []string{"S7", "H7", "C7", "S8", "H8", "C8", "D3", "D4"}, deck.AirplaneWithSingle},
		{"airplane with pairs", []string{"S7", "H7", "C7", "S8", "H8", "C8", "D3", "S3", "D4", "S4"}, deck.AirplaneWithPairs},
		{"four with two", []string{"S7", "H7", "C7", "D7", "S3", "H9"}, deck.FourWithTwo},
		{"four with pair", []string{"S7", "H7", "C7", "D7", "S3", "H3"}, deck.FourWithTwo},
		{"bomb", []string{"S7", "H7", "C7", "D7"}, deck.Bomb},
		{"joker bomb", []string{"BJ", "RJ"}, deck.JokerBomb},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			combo := mustParse(t, tc.cards)
			if combo.Type != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, combo.Type)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name  string
		cards []string
	}{
		{"mixed garbage", []string{"S3", "H7"}},
		{"short straight", []string{"S3", "H4", "C5", "D6"}},
		{"straight through 2", []string{"SJ", "HQ", "CK", "DA", "S2"}},
		{"straight with joker", []string{"SJ", "HQ", "CK", "DA", "BJ"}},
		{"odd straight pairs", []string{"S3", "H3", "C4", "D4"}},
		{"gap straight", []string{"S3", "H4", "C5", "D6", "S8"}},
		{"nonconsecutive airplane", []string{"S7", "H7", "C7", "S9", "H9", "C9"}},
		{"unknown token", []string{"ZZ"}},
		{"trips with two singles", []string{"S7", "H7", "C7", "D3", "D4", "S5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := deck.Parse(tc.cards); !errors.Is(err, appErr.ErrInvalidCombination) {
				t.Fatalf("expected ErrInvalidCombination, got %v", err)
			}
		})
	}

	if _, err := deck.Parse(nil); !errors.Is(err, appErr.ErrEmptyAction) {
		t.Fatalf("expected ErrEmptyAction for empty play, got %v", err)
	}
}

func TestParseMainWeight(t *testing.T) {
	straight := mustParse(t, []string{"S3", "H4", "C5", "D6", "S7"})
	if straight.MainWeight != deck.Weight("S7") {
		t.Fatalf("straight main weight should be the top card")
	}
	airplane := mustParse(t, []string{"S7", "H7", "C7", "S8", "H8", "C8"})
	if airplane.MainWeight != deck.Weight("S8") {
		t.Fatalf("airplane main weight should be the top plane rank")
	}
	if airplane.GroupCount != 2 {
		t.Fatalf("expected plane length 2, got %d", airplane.GroupCount)
	}
}

func TestCanBeat(t *testing.T) {
	single7 := mustParse(t, []string{"S7"})
	single9 := mustParse(t, []string{"S9"})
	pair9 := mustParse(t, []string{"S9", "H9"})
	bomb5 := mustParse(t, []string{"S5", "H5", "C5", "D5"})
	bomb6 := mustParse(t, []string{"S6", "H6", "C6", "D6"})
	jokerBomb := mustParse(t, []string{"BJ", "RJ"})
	run37 := mustParse(t, []string{"S3", "H4", "C5", "D6", "S7"})
	run48 := mustParse(t, []string{"S4", "H5", "C6", "D7", "S8"})
	run49 := mustParse(t, []string{"S4", "H5", "C6", "D7", "S8", "H9"})

	cases := []struct {
		name    string
		current deck.Combo
		last    *deck.Combo
		want    bool
	}{
		{"anything beats nothing", single7, nil, true},
		{"higher single", single9, &single7, true},
		{"lower single", single7, &single9, false},
		{"equal single", single7, &single7, false},
		{"pair over single", pair9, &single7, false},
		{"bomb over single", bomb5, &single9, true},
		{"bomb over pair", bomb5, &pair9, true},
		{"higher bomb", bomb6, &bomb5, true},
		{"lower bomb", bomb5, &bomb6, false},
		{"joker bomb over bomb", jokerBomb, &bomb6, true},
		{"bomb under joker bomb", bomb6, &jokerBomb, false},
		{"higher straight same length", run48, &run37, true},
		{"longer straight mismatch", run49, &run37, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deck.CanBeat(tc.current, tc.last); got != tc.want {
				t.Fatalf("CanBeat = %v, want %v", got, tc.want)
			}
		})
	}
}
