package bracket

import (
	"testing"

	"github.com/tolelom/tolchain/core"
)

func players(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

func TestReverseBits32(t *testing.T) {
	cases := []struct {
		in, want uint32
	}{
		{0x00000000, 0x00000000},
		{0xffffffff, 0xffffffff},
		{0x00000001, 0x80000000},
		{0x80000000, 0x00000001},
		{0x0000000f, 0xf0000000},
	}
	for _, c := range cases {
		if got := ReverseBits32(c.in); got != c.want {
			t.Errorf("ReverseBits32(%#x) = %#x, want %#x", c.in, got, c.want)
		}
	}
}

func TestSeedPlayersDeterministic(t *testing.T) {
	p := players(16)
	seed := [32]byte{7, 7, 7}
	a := SeedPlayers(p, NewRNG(seed))
	b := SeedPlayers(p, NewRNG(seed))

	if len(a) != len(p) || len(b) != len(p) {
		t.Fatalf("unexpected lengths: %d %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("shuffle diverged at %d: %q != %q", i, a[i], b[i])
		}
	}
	// Input must not be mutated.
	for i := range p {
		if p[i] != players(16)[i] {
			t.Fatalf("input slice mutated at %d", i)
		}
	}
}

func TestBuildBracketPowerOfTwoHasNoByes(t *testing.T) {
	for _, n := range []int{2, 4, 8, 16, 1024} {
		seeded := SeedPlayers(players(n), NewRNG([32]byte{1}))
		paired, rounds := BuildBracket(seeded)
		if len(paired) != n {
			t.Fatalf("n=%d: bracket size %d != %d", n, len(paired), n)
		}
		want := core.BracketRounds(uint32(n))
		if rounds != want {
			t.Fatalf("n=%d: rounds %d != %d", n, rounds, want)
		}
		for i, p := range paired {
			if p == "" {
				t.Fatalf("n=%d: unexpected bye at position %d", n, i)
			}
		}
	}
}

func TestBuildBracketNonPowerOfTwoHasByes(t *testing.T) {
	for _, n := range []int{3, 5, 6, 7, 9} {
		seeded := SeedPlayers(players(n), NewRNG([32]byte{2}))
		paired, rounds := BuildBracket(seeded)
		size := 1 << uint(rounds)
		if len(paired) != size {
			t.Fatalf("n=%d: bracket size %d != 2^%d", n, len(paired), rounds)
		}
		byes := 0
		seen := make(map[string]bool)
		for _, p := range paired {
			if p == "" {
				byes++
				continue
			}
			if seen[p] {
				t.Fatalf("n=%d: player %q placed twice", n, p)
			}
			seen[p] = true
		}
		if byes != size-n {
			t.Fatalf("n=%d: got %d byes, want %d", n, byes, size-n)
		}
	}
}

func TestBuildFirstRoundMatchesBye(t *testing.T) {
	// N=3: one bye in the first round, one real pairing.
	seeded := []string{"a", "b", "c"}
	paired, rounds := BuildBracket(seeded)
	totalMatches := (1 << uint(rounds)) - 1
	matches := BuildFirstRoundMatches(paired, totalMatches)

	if len(matches) != totalMatches {
		t.Fatalf("got %d matches, want %d", len(matches), totalMatches)
	}

	completedByes := 0
	inProgress := 0
	for _, m := range matches {
		switch m.State {
		case core.MatchComplete:
			completedByes++
			if len(m.MatchWinners) != 1 {
				t.Errorf("bye match %d: want 1 winner, got %d", m.Index, len(m.MatchWinners))
			}
		case core.MatchInProgress:
			inProgress++
			if len(m.Players) != 2 {
				t.Errorf("in-progress match %d: want 2 players, got %d", m.Index, len(m.Players))
			}
		}
	}
	if completedByes != 1 {
		t.Fatalf("want exactly 1 bye-completed match, got %d", completedByes)
	}
	if inProgress != 1 {
		t.Fatalf("want exactly 1 in-progress match, got %d", inProgress)
	}
}

func TestBuildFirstRoundMatchesNoByes(t *testing.T) {
	seeded := []string{"a", "b", "c", "d"}
	paired, rounds := BuildBracket(seeded)
	totalMatches := (1 << uint(rounds)) - 1 // 3
	matches := BuildFirstRoundMatches(paired, totalMatches)

	// The final (root) match waits on its two children; the two leaves are
	// the in-progress first-round pairings.
	if matches[0].State != core.MatchWaitingOnPreviousMatches {
		t.Errorf("root match should be waiting, got %v", matches[0].State)
	}
	for _, idx := range []int{1, 2} {
		m := matches[idx]
		if m.State != core.MatchInProgress {
			t.Errorf("match %d: want in_progress, got %v", idx, m.State)
		}
		if len(m.Players) != 2 {
			t.Errorf("match %d: want 2 players, got %d", idx, len(m.Players))
		}
	}
}
