package tournament

import (
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/metrics"
)

// ProcessPendingEvents sweeps every tournament in state once per block,
// firing the two internally-triggered pseudo-events the FSM depends on:
// registration_deadline_passed (accepting_registrations -> expired, with
// refunds) and start_time_arrived (awaiting_start -> in_progress, seeding
// the bracket from block's randomness). Called from the PoA proposer's
// ProduceBlock after ExecuteBlock, the same per-block hook point consensus
// already uses to emit EventBlockCommit.
func ProcessPendingEvents(state core.State, emitter *events.Emitter, block *core.Block) error {
	ids, err := state.ListTournamentIDs()
	if err != nil {
		return fmt.Errorf("list tournaments: %w", err)
	}
	for _, id := range ids {
		if err := processOne(state, emitter, block, id); err != nil {
			return fmt.Errorf("tournament %q: %w", id, err)
		}
	}
	return nil
}

func processOne(state core.State, emitter *events.Emitter, block *core.Block, id string) error {
	t, err := state.GetTournament(id)
	if err != nil {
		return err
	}

	switch t.State {
	case core.TournamentAcceptingRegistrations:
		if block.Header.Timestamp < t.Options.RegistrationDeadline {
			return nil
		}
		return expireTournament(state, emitter, block, t)
	case core.TournamentAwaitingStart:
		if t.StartTime == nil || block.Header.Timestamp < *t.StartTime {
			return nil
		}
		details, err := state.GetTournamentDetails(id)
		if err != nil {
			return err
		}
		if err := startTournament(t, details, block); err != nil {
			return err
		}
		if err := t.CheckInvariants(details); err != nil {
			return err
		}
		if err := state.SetTournament(t); err != nil {
			return err
		}
		if err := state.SetTournamentDetails(details); err != nil {
			return err
		}
		if emitter != nil {
			emitter.Emit(events.Event{
				Type:        events.EventTournamentStarted,
				BlockHeight: block.Header.Height,
				Data:        map[string]any{"tournament_id": id},
			})
			if t.State == core.TournamentConcluded {
				emitter.Emit(events.Event{
					Type:        events.EventTournamentConclude,
					BlockHeight: block.Header.Height,
					Data:        map[string]any{"tournament_id": id},
				})
			}
		}
		return nil
	default:
		return nil
	}
}

func expireTournament(state core.State, emitter *events.Emitter, block *core.Block, t *core.Tournament) error {
	details, err := state.GetTournamentDetails(t.ID)
	if err != nil {
		return err
	}
	if err := refundAllPayers(state, details); err != nil {
		return err
	}
	t.State = core.TournamentRegistrationExpired
	// PrizePool/Payers stay at their pre-expiry values: registered_players and
	// payers are frozen once state leaves accepting_registrations, even though
	// the balances they represent have just been refunded.

	if err := t.CheckInvariants(details); err != nil {
		return err
	}
	if err := state.SetTournament(t); err != nil {
		return err
	}
	if err := state.SetTournamentDetails(details); err != nil {
		return err
	}

	metrics.TournamentsExpired.Inc()
	if emitter != nil {
		emitter.Emit(events.Event{
			Type:        events.EventTournamentExpired,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"tournament_id": t.ID},
		})
		emitter.Emit(events.Event{
			Type:        events.EventTournamentRefund,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"tournament_id": t.ID},
		})
	}
	return nil
}
