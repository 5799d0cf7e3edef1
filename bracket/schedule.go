package bracket

import (
	"fmt"

	"github.com/tolelom/tolchain/core"
)

// numRoundsForMatches returns R given a flat match count of 2^R - 1.
func numRoundsForMatches(numMatches int) int {
	r := 0
	total := 0
	for total < numMatches {
		r++
		total = (1 << uint(r)) - 1
	}
	return r
}

// roundLevel maps a round number (0 = first round, the leaves) to its
// heap-array level (0 = root, the final).
func roundLevel(numRounds, round int) int {
	return numRounds - 1 - round
}

// levelBounds returns the [first, first+count) index range of a complete
// binary tree's level in its 0-indexed flat array representation, where the
// root is index 0 and a node at index m has children at 2m+1 and 2m+2. This
// addressing is equivalent to (and simpler than) the tournament's
// num_matches-relative bit-shift description, while satisfying the same
// "round 0 occupies [num_matches - 2^(R-1), num_matches)" boundary.
func levelBounds(level int) (first, count int) {
	first = (1 << uint(level)) - 1
	count = 1 << uint(level)
	return first, count
}

func childIndices(m int) (left, right int) {
	return 2*m + 1, 2*m + 2
}

func allComplete(matches []*core.TournamentMatch, first, count int) bool {
	for i := first; i < first+count; i++ {
		if matches[i].State != core.MatchComplete {
			return false
		}
	}
	return true
}

// CheckForNewMatchesToStart scans the flat bracket round-by-round from the
// first round upward, finds the highest round that is fully complete, and
// — if the next round's matches are still waiting — promotes each pair of
// child winners into the corresponding parent match's Players. A parent that
// receives a single player (because one of its two child matches completed
// with no winner) is marked complete with
// that player as the winner; otherwise the parent is left waiting for the
// external Match component to progress it once Players is populated.
//
// It is an error to call this when the final match (the whole tournament) is
// already complete; callers are expected to have already transitioned the
// tournament to concluded in that case.
func CheckForNewMatchesToStart(matches []*core.TournamentMatch) error {
	numMatches := len(matches)
	if numMatches == 0 {
		return nil
	}
	numRounds := numRoundsForMatches(numMatches)

	highestComplete := -1
	for round := 0; round < numRounds; round++ {
		first, count := levelBounds(roundLevel(numRounds, round))
		if allComplete(matches, first, count) {
			highestComplete = round
		} else {
			break
		}
	}
	if highestComplete == -1 {
		return nil
	}
	if highestComplete == numRounds-1 {
		return fmt.Errorf("bracket: final match already complete, nothing to advance")
	}

	nextRound := highestComplete + 1
	first, count := levelBounds(roundLevel(numRounds, nextRound))

	if matches[first].State != core.MatchWaitingOnPreviousMatches {
		// Already populated by a previous call; nothing new to do.
		return nil
	}

	for i := 0; i < count; i++ {
		parentIdx := first + i
		parent := matches[parentIdx]
		left, right := childIndices(parentIdx)

		winners := make([]string, 0, 2)
		for _, childIdx := range [2]int{left, right} {
			child := matches[childIdx]
			if len(child.MatchWinners) > 1 {
				return fmt.Errorf("bracket: child match %d has %d winners, expected 0 or 1", childIdx, len(child.MatchWinners))
			}
			winners = append(winners, child.MatchWinners...)
		}

		parent.Players = winners
		if len(winners) == 1 {
			parent.MatchWinners = []string{winners[0]}
			parent.State = core.MatchComplete
		}
	}
	return nil
}
