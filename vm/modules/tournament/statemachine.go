package tournament

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchain/bracket"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/metrics"
	"github.com/tolelom/tolchain/vm"
)

func init() {
	vm.Register(core.TxTournamentCreate, handleTournamentCreate)
	vm.Register(core.TxTournamentJoin, handleTournamentJoin)
	vm.Register(core.TxTournamentLeave, handleTournamentLeave)
	vm.Register(core.TxTournamentReportMatch, handleTournamentReportMatch)
}

func handleTournamentCreate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TournamentCreatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode tournament_create payload: %w", err)
	}
	if p.ID == "" {
		return errors.New("tournament id required")
	}
	if _, err := ctx.State.GetTournament(p.ID); err == nil {
		return fmt.Errorf("tournament %q already exists", p.ID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("checking tournament %q: %w", p.ID, err)
	}

	options := core.TournamentOptions{
		NumberOfPlayers:      p.NumberOfPlayers,
		BuyInAmount:          p.BuyInAmount,
		BuyInAssetID:         p.BuyInAssetID,
		RegistrationDeadline: p.RegistrationDeadline,
		StartTime:            p.StartTime,
		StartDelaySeconds:    p.StartDelaySeconds,
		Whitelist:            p.Whitelist,
	}
	if err := options.Validate(); err != nil {
		return fmt.Errorf("invalid tournament options: %w", err)
	}

	t := core.NewTournament(p.ID, ctx.Tx.From, options)
	details := core.NewTournamentDetails(p.ID)
	if err := t.CheckInvariants(details); err != nil {
		return err
	}
	if err := ctx.State.SetTournament(t); err != nil {
		return err
	}
	if err := ctx.State.SetTournamentDetails(details); err != nil {
		return err
	}

	metrics.TournamentsCreated.Inc()
	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTournamentCreated,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"tournament_id":    p.ID,
				"creator":          ctx.Tx.From,
				"number_of_players": p.NumberOfPlayers,
			},
		})
	}
	return nil
}

func handleTournamentJoin(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TournamentJoinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode tournament_join payload: %w", err)
	}
	if p.PlayerID == "" {
		return errors.New("player_id required")
	}

	t, err := ctx.State.GetTournament(p.TournamentID)
	if err != nil {
		return fmt.Errorf("tournament %q: %w", p.TournamentID, err)
	}
	if t.State != core.TournamentAcceptingRegistrations {
		return fmt.Errorf("tournament %q is not accepting registrations (state=%s)", p.TournamentID, t.State)
	}
	if !t.Options.IsWhitelisted(p.PlayerID) {
		return fmt.Errorf("player %q is not whitelisted for tournament %q", p.PlayerID, p.TournamentID)
	}
	if t.RegisteredPlayers >= t.Options.NumberOfPlayers {
		return fmt.Errorf("tournament %q is full", p.TournamentID)
	}

	details, err := ctx.State.GetTournamentDetails(p.TournamentID)
	if err != nil {
		return fmt.Errorf("tournament details %q: %w", p.TournamentID, err)
	}
	if details.HasPlayer(p.PlayerID) {
		return fmt.Errorf("player %q already registered for tournament %q", p.PlayerID, p.TournamentID)
	}

	if err := lockBuyIn(ctx.State, ctx.Tx.From, p.PlayerID, t.Options.BuyInAmount, details); err != nil {
		return err
	}
	details.InsertPlayer(p.PlayerID)
	t.RegisteredPlayers++
	t.PrizePool += t.Options.BuyInAmount

	if t.RegisteredPlayers == t.Options.NumberOfPlayers {
		startTime := resolveStartTime(t, ctx.Block.Header.Timestamp)
		t.StartTime = &startTime
		t.State = core.TournamentAwaitingStart
		if startTime <= ctx.Block.Header.Timestamp {
			if err := startTournament(t, details, ctx.Block); err != nil {
				return err
			}
		}
	}

	if err := t.CheckInvariants(details); err != nil {
		return err
	}
	if err := ctx.State.SetTournament(t); err != nil {
		return err
	}
	if err := ctx.State.SetTournamentDetails(details); err != nil {
		return err
	}

	metrics.TournamentPlayersRegistered.Inc()
	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTournamentJoined,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"tournament_id": p.TournamentID, "player_id": p.PlayerID, "payer": ctx.Tx.From},
		})
	}
	return nil
}

func handleTournamentLeave(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TournamentLeavePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode tournament_leave payload: %w", err)
	}

	t, err := ctx.State.GetTournament(p.TournamentID)
	if err != nil {
		return fmt.Errorf("tournament %q: %w", p.TournamentID, err)
	}
	if t.State != core.TournamentAcceptingRegistrations && t.State != core.TournamentAwaitingStart {
		return fmt.Errorf("tournament %q no longer accepts leaves (state=%s)", p.TournamentID, t.State)
	}

	details, err := ctx.State.GetTournamentDetails(p.TournamentID)
	if err != nil {
		return fmt.Errorf("tournament details %q: %w", p.TournamentID, err)
	}
	if _, ok := details.PlayerPayer[p.PlayerID]; !ok || !details.HasPlayer(p.PlayerID) {
		return fmt.Errorf("player %q is not registered for tournament %q", p.PlayerID, p.TournamentID)
	}
	amount := t.Options.BuyInAmount

	if err := refundBuyIn(ctx.State, p.PlayerID, amount, details); err != nil {
		return err
	}
	details.RemovePlayer(p.PlayerID)
	t.RegisteredPlayers--
	t.PrizePool -= amount

	// A full tournament waiting to start reopens registration once a slot
	// frees up; any start time computed from the fill moment is discarded.
	if t.State == core.TournamentAwaitingStart {
		t.State = core.TournamentAcceptingRegistrations
		t.StartTime = nil
	}

	if err := t.CheckInvariants(details); err != nil {
		return err
	}
	if err := ctx.State.SetTournament(t); err != nil {
		return err
	}
	if err := ctx.State.SetTournamentDetails(details); err != nil {
		return err
	}

	metrics.TournamentPlayersRegistered.Dec()
	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTournamentLeft,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"tournament_id":        p.TournamentID,
				"player_id":            p.PlayerID,
				"canceling_account_id": ctx.Tx.From,
			},
		})
	}
	return nil
}

// handleTournamentReportMatch is the chain-level analogue of spec's
// game_move_operation forwarded to the external Match component: it records
// a match's winner, runs the scheduler, and concludes the tournament once
// the root match (index 0) resolves.
func handleTournamentReportMatch(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TournamentReportMatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode tournament_report_match payload: %w", err)
	}
	if p.Winner == "" {
		return errors.New("winner required")
	}

	t, err := ctx.State.GetTournament(p.TournamentID)
	if err != nil {
		return fmt.Errorf("tournament %q: %w", p.TournamentID, err)
	}
	if t.State != core.TournamentInProgress {
		return fmt.Errorf("tournament %q is not in progress (state=%s)", p.TournamentID, t.State)
	}

	details, err := ctx.State.GetTournamentDetails(p.TournamentID)
	if err != nil {
		return fmt.Errorf("tournament details %q: %w", p.TournamentID, err)
	}
	if p.MatchIndex < 0 || p.MatchIndex >= len(details.Matches) {
		return fmt.Errorf("match index %d out of range [0,%d)", p.MatchIndex, len(details.Matches))
	}
	match := details.Matches[p.MatchIndex]
	if match.State == core.MatchComplete {
		return fmt.Errorf("match %d already complete", p.MatchIndex)
	}
	var found bool
	for _, player := range match.Players {
		if player == p.Winner {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("winner %q is not a player in match %d", p.Winner, p.MatchIndex)
	}

	match.MatchWinners = []string{p.Winner}
	match.State = core.MatchComplete

	if err := bracket.CheckForNewMatchesToStart(details.Matches); err != nil {
		// "final match already complete" after we just completed it is the
		// expected path when match 0 was the one just reported; any other
		// error is a real bug.
		if p.MatchIndex != 0 {
			return err
		}
	}

	if p.MatchIndex == 0 {
		now := ctx.Block.Header.Timestamp
		t.EndTime = &now
		t.State = core.TournamentConcluded
		if err := payoutWinner(ctx.State, p.Winner, t.PrizePool); err != nil {
			return err
		}
		metrics.TournamentsConcluded.Inc()
		if ctx.Emitter != nil {
			ctx.Emitter.Emit(events.Event{
				Type:        events.EventTournamentPayout,
				TxID:        ctx.Tx.ID,
				BlockHeight: ctx.Block.Header.Height,
				Data:        map[string]any{"tournament_id": p.TournamentID, "winner": p.Winner, "amount": t.PrizePool},
			})
			ctx.Emitter.Emit(events.Event{
				Type:        events.EventTournamentConclude,
				TxID:        ctx.Tx.ID,
				BlockHeight: ctx.Block.Header.Height,
				Data:        map[string]any{"tournament_id": p.TournamentID, "winner": p.Winner},
			})
		}
	}

	if err := t.CheckInvariants(details); err != nil {
		return err
	}
	if err := ctx.State.SetTournament(t); err != nil {
		return err
	}
	return ctx.State.SetTournamentDetails(details)
}

// resolveStartTime computes the absolute start time (unix nanos) once
// registration fills, from whichever of StartTime/StartDelaySeconds the
// tournament's options set.
func resolveStartTime(t *core.Tournament, fillTimestamp int64) int64 {
	if t.Options.StartTime != nil {
		return *t.Options.StartTime
	}
	return fillTimestamp + (*t.Options.StartDelaySeconds)*1e9
}

// startTournament seeds players, builds the bracket, and transitions t into
// in_progress. Callers must persist t and details afterward.
func startTournament(t *core.Tournament, details *core.TournamentDetails, block *core.Block) error {
	seed := block.Header.RandomnessSeed()
	rng := bracket.NewRNG(seed)
	seeded := bracket.SeedPlayers(details.RegisteredPlayers, rng)
	paired, rounds := bracket.BuildBracket(seeded)
	totalMatches := (1 << uint(rounds)) - 1
	details.Matches = bracket.BuildFirstRoundMatches(paired, totalMatches)

	t.State = core.TournamentInProgress
	now := block.Header.Timestamp
	t.StartTime = &now

	// A freshly built first round is never itself fully complete, so this is
	// a no-op on today's brackets; kept so any later round already marked
	// complete (e.g. a one-round N=2 edge case) still gets promoted.
	return bracket.CheckForNewMatchesToStart(details.Matches)
}
