package bracket

import (
	"github.com/tolelom/tolchain/core"
)

// SeedPlayers shuffles players into seeded order using a Fisher-Yates
// traversal driven by rng. players is not mutated; the returned slice is a
// fresh copy in the shuffled order used as input to BuildBracket.
func SeedPlayers(players []string, rng *RNG) []string {
	seeded := make([]string, len(players))
	copy(seeded, players)
	for i := len(seeded) - 1; i >= 1; i-- {
		j := rng.Next(uint32(i + 1))
		seeded[i], seeded[j] = seeded[j], seeded[i]
	}
	return seeded
}

// ReverseBits32 performs the standard 5-stage bitwise reversal of a 32-bit
// word.
func ReverseBits32(x uint32) uint32 {
	x = (x >> 16) | (x << 16)
	x = ((x & 0xff00ff00) >> 8) | ((x & 0x00ff00ff) << 8)
	x = ((x & 0xf0f0f0f0) >> 4) | ((x & 0x0f0f0f0f) << 4)
	x = ((x & 0xcccccccc) >> 2) | ((x & 0x33333333) << 2)
	x = ((x & 0xaaaaaaaa) >> 1) | ((x & 0x55555555) << 1)
	return x
}

// BuildBracket places seeded players into first-round bracket positions
// using reflected Gray code plus bit-reversal, which yields the canonical
// standard-seeding bye placement (seed 1 plays the lowest seed, often a bye,
// in the top of the bracket; seed 2 lands in the opposite half; and so on).
// The returned slice has length 2^R, where R = core.BracketRounds(len(seeded));
// unfilled positions (byes) are the empty string.
func BuildBracket(seeded []string) (paired []string, rounds int) {
	n := len(seeded)
	rounds = core.BracketRounds(uint32(n))
	size := 1 << uint(rounds)
	paired = make([]string, size)

	for playerNum := 0; playerNum < n; playerNum++ {
		gray := playerNum ^ (playerNum >> 1)
		position := ReverseBits32(uint32(gray)) >> uint(32-rounds)
		paired[position] = seeded[playerNum]
	}
	return paired, rounds
}

// BuildFirstRoundMatches converts a paired bracket into the leaf
// (first-round) TournamentMatch slots of a flat match array of the given
// total length. A slot with a single real player (its partner is a bye)
// completes immediately with that player as the winner, matching the
// external Match component's bye-completion contract.
func BuildFirstRoundMatches(paired []string, totalMatches int) []*core.TournamentMatch {
	matches := make([]*core.TournamentMatch, totalMatches)
	for i := range matches {
		matches[i] = &core.TournamentMatch{Index: i, State: core.MatchWaitingOnPreviousMatches}
	}

	numFirstRound := len(paired) / 2
	firstRoundStart := totalMatches - numFirstRound
	for i := 0; i < numFirstRound; i++ {
		a, b := paired[2*i], paired[2*i+1]
		m := matches[firstRoundStart+i]
		switch {
		case a != "" && b != "":
			m.Players = []string{a, b}
			m.State = core.MatchInProgress
		case a != "" || b != "":
			player := a
			if player == "" {
				player = b
			}
			m.Players = []string{player}
			m.MatchWinners = []string{player}
			m.State = core.MatchComplete
		default:
			// Both slots empty only happens for N < 2, which registration
			// invariants already disallow.
		}
	}
	return matches
}
