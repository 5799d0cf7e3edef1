package bracket

import (
	"testing"

	"github.com/tolelom/tolchain/core"
)

func waiting(i int) *core.TournamentMatch {
	return &core.TournamentMatch{Index: i, State: core.MatchWaitingOnPreviousMatches}
}

// buildFourPlayerBracket returns a 3-match flat bracket (R=2): index 0 is the
// final, indices 1 and 2 are the first-round matches.
func buildFourPlayerBracket() []*core.TournamentMatch {
	return []*core.TournamentMatch{
		waiting(0),
		{Index: 1, Players: []string{"a", "b"}, State: core.MatchInProgress},
		{Index: 2, Players: []string{"c", "d"}, State: core.MatchInProgress},
	}
}

func TestCheckForNewMatchesToStartNoneReady(t *testing.T) {
	matches := buildFourPlayerBracket()
	if err := CheckForNewMatchesToStart(matches); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches[0].State != core.MatchWaitingOnPreviousMatches {
		t.Fatalf("final should still be waiting, got %v", matches[0].State)
	}
}

func TestCheckForNewMatchesToStartPromotesWinners(t *testing.T) {
	matches := buildFourPlayerBracket()
	matches[1].State = core.MatchComplete
	matches[1].MatchWinners = []string{"a"}
	matches[2].State = core.MatchComplete
	matches[2].MatchWinners = []string{"c"}

	if err := CheckForNewMatchesToStart(matches); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := matches[0]
	if len(final.Players) != 2 || final.Players[0] != "a" || final.Players[1] != "c" {
		t.Fatalf("final players = %v, want [a c]", final.Players)
	}
	if final.State != core.MatchWaitingOnPreviousMatches {
		t.Fatalf("final should remain waiting for the external match to start, got %v", final.State)
	}
}

func TestCheckForNewMatchesToStartIsIdempotent(t *testing.T) {
	matches := buildFourPlayerBracket()
	matches[1].State = core.MatchComplete
	matches[1].MatchWinners = []string{"a"}
	matches[2].State = core.MatchComplete
	matches[2].MatchWinners = []string{"c"}

	if err := CheckForNewMatchesToStart(matches); err != nil {
		t.Fatalf("first call: %v", err)
	}
	// Once populated, the final is no longer "waiting" so a second call must
	// not re-promote or error.
	matches[0].State = core.MatchInProgress
	if err := CheckForNewMatchesToStart(matches); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if matches[0].Players[0] != "a" || matches[0].Players[1] != "c" {
		t.Fatalf("final players mutated on idempotent call: %v", matches[0].Players)
	}
}

func TestCheckForNewMatchesToStartFinalAlreadyComplete(t *testing.T) {
	matches := buildFourPlayerBracket()
	matches[1].State = core.MatchComplete
	matches[1].MatchWinners = []string{"a"}
	matches[2].State = core.MatchComplete
	matches[2].MatchWinners = []string{"c"}
	matches[0].State = core.MatchComplete
	matches[0].MatchWinners = []string{"a"}

	if err := CheckForNewMatchesToStart(matches); err == nil {
		t.Fatal("expected an error when the final match is already complete")
	}
}

func TestCheckForNewMatchesToStartByeWinnerPromotedToFinal(t *testing.T) {
	// N=3 bracket, R=2: index 0 final, index 1 a bye (single winner already
	// recorded), index 2 a real first-round match.
	matches := []*core.TournamentMatch{
		waiting(0),
		{Index: 1, Players: []string{"a"}, MatchWinners: []string{"a"}, State: core.MatchComplete},
		{Index: 2, Players: []string{"b", "c"}, State: core.MatchInProgress},
	}
	matches[2].State = core.MatchComplete
	matches[2].MatchWinners = []string{"b"}

	if err := CheckForNewMatchesToStart(matches); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := matches[0]
	if len(final.Players) != 2 || final.Players[0] != "a" || final.Players[1] != "b" {
		t.Fatalf("final players = %v, want [a b]", final.Players)
	}
	if final.State != core.MatchWaitingOnPreviousMatches {
		t.Fatalf("two-player final should wait for the external match, got %v", final.State)
	}
}

func TestCheckForNewMatchesToStartEmptyBracket(t *testing.T) {
	if err := CheckForNewMatchesToStart(nil); err != nil {
		t.Fatalf("empty bracket should be a no-op, got %v", err)
	}
}

func TestCheckForNewMatchesToStartMissingChildWinner(t *testing.T) {
	matches := buildFourPlayerBracket()
	matches[1].State = core.MatchComplete
	matches[1].MatchWinners = []string{"a"}
	// matches[2] left in progress with no winner recorded.

	if err := CheckForNewMatchesToStart(matches); err != nil {
		t.Fatalf("unexpected error (should be a no-op since round isn't fully complete): %v", err)
	}
}
