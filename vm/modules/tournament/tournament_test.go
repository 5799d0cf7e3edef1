package tournament_test

import (
	"testing"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/storage"
	"github.com/tolelom/tolchain/vm"
	"github.com/tolelom/tolchain/vm/modules/tournament"
	"github.com/tolelom/tolchain/wallet"
)

const chainID = "test-chain"

func newState(t *testing.T) core.State {
	t.Helper()
	return storage.NewStateDB(testutil.NewMemDB())
}

func mustExec(t *testing.T, exec *vm.Executor, block *core.Block, tx *core.Transaction) {
	t.Helper()
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatalf("execute %s: %v", tx.Type, err)
	}
}

func fundedWallet(t *testing.T, state core.State, balance uint64) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := state.SetAccount(&core.Account{Address: w.PubKey(), Balance: balance}); err != nil {
		t.Fatal(err)
	}
	return w
}

func startDelay(seconds int64) *int64 { return &seconds }

// TestTournamentCreateJoinFillsAndStarts walks a 2-player tournament from
// creation through full registration, which should immediately roll into
// in_progress since the configured start delay is zero.
func TestTournamentCreateJoinFillsAndStarts(t *testing.T) {
	state := newState(t)
	exec := vm.NewExecutor(state, events.NewEmitter())

	creator := fundedWallet(t, state, 0)
	p1 := fundedWallet(t, state, 1000)
	p2 := fundedWallet(t, state, 1000)

	block := core.NewBlock(chainID, 1, "0000", creator.PubKey(), nil)

	createTx, err := creator.CreateTournament(chainID, core.TournamentCreatePayload{
		ID:                   "t1",
		NumberOfPlayers:      2,
		BuyInAmount:          100,
		RegistrationDeadline: block.Header.Timestamp + int64(time1Hour),
		StartDelaySeconds:    startDelay(0),
	}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	mustExec(t, exec, block, createTx)

	joinTx1, err := p1.JoinTournament(chainID, "t1", p1.PubKey(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	mustExec(t, exec, block, joinTx1)

	joinTx2, err := p2.JoinTournament(chainID, "t1", p2.PubKey(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	mustExec(t, exec, block, joinTx2)

	tourn, err := state.GetTournament("t1")
	if err != nil {
		t.Fatal(err)
	}
	if tourn.State != core.TournamentInProgress {
		t.Fatalf("state = %s, want in_progress", tourn.State)
	}
	if tourn.PrizePool != 200 {
		t.Fatalf("prize_pool = %d, want 200", tourn.PrizePool)
	}

	details, err := state.GetTournamentDetails("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(details.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(details.Matches))
	}
	if err := tourn.CheckInvariants(details); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	p1Acc, _ := state.GetAccount(p1.PubKey())
	if p1Acc.Balance != 900 {
		t.Fatalf("p1 balance = %d, want 900", p1Acc.Balance)
	}
}

// TestTournamentLeaveRefunds verifies a player who leaves before the
// tournament fills gets their buy-in back and the slot reopens.
func TestTournamentLeaveRefunds(t *testing.T) {
	state := newState(t)
	exec := vm.NewExecutor(state, events.NewEmitter())

	creator := fundedWallet(t, state, 0)
	p1 := fundedWallet(t, state, 1000)

	block := core.NewBlock(chainID, 1, "0000", creator.PubKey(), nil)

	createTx, _ := creator.CreateTournament(chainID, core.TournamentCreatePayload{
		ID:                   "t1",
		NumberOfPlayers:      4,
		BuyInAmount:          50,
		RegistrationDeadline: block.Header.Timestamp + int64(time1Hour),
		StartDelaySeconds:    startDelay(0),
	}, 0, 0)
	mustExec(t, exec, block, createTx)

	joinTx, _ := p1.JoinTournament(chainID, "t1", p1.PubKey(), 0, 0)
	mustExec(t, exec, block, joinTx)

	leaveTx, _ := p1.LeaveTournament(chainID, "t1", p1.PubKey(), 1, 0)
	mustExec(t, exec, block, leaveTx)

	acc, _ := state.GetAccount(p1.PubKey())
	if acc.Balance != 1000 {
		t.Fatalf("balance after leave = %d, want 1000", acc.Balance)
	}

	tourn, _ := state.GetTournament("t1")
	if tourn.RegisteredPlayers != 0 || tourn.PrizePool != 0 {
		t.Fatalf("registered=%d prize_pool=%d, want 0/0", tourn.RegisteredPlayers, tourn.PrizePool)
	}
	details, _ := state.GetTournamentDetails("t1")
	if err := tourn.CheckInvariants(details); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

// TestTournamentLeaveRefundsThirdPartyPayer verifies that when a game server
// pays a different player's buy-in (payer != player), the refund on leave
// lands on the paying account, not the player's — the payer is the one
// whose balance was debited and details.Payers is keyed by payer, not
// player, per the spec's explicit "payer and player may differ" data model.
func TestTournamentLeaveRefundsThirdPartyPayer(t *testing.T) {
	state := newState(t)
	exec := vm.NewExecutor(state, events.NewEmitter())

	creator := fundedWallet(t, state, 0)
	gameServer := fundedWallet(t, state, 1000)
	player := fundedWallet(t, state, 0)

	block := core.NewBlock(chainID, 1, "0000", creator.PubKey(), nil)

	createTx, _ := creator.CreateTournament(chainID, core.TournamentCreatePayload{
		ID:                   "t1",
		NumberOfPlayers:      4,
		BuyInAmount:          50,
		RegistrationDeadline: block.Header.Timestamp + int64(time1Hour),
		StartDelaySeconds:    startDelay(0),
	}, 0, 0)
	mustExec(t, exec, block, createTx)

	joinTx, _ := gameServer.JoinTournament(chainID, "t1", player.PubKey(), 0, 0)
	mustExec(t, exec, block, joinTx)

	details, _ := state.GetTournamentDetails("t1")
	if amount := details.Payers[gameServer.PubKey()]; amount != 50 {
		t.Fatalf("payers[game_server] = %d, want 50", amount)
	}
	if _, ok := details.Payers[player.PubKey()]; ok {
		t.Fatalf("payers should not be keyed by player %q", player.PubKey())
	}

	leaveTx, _ := player.LeaveTournament(chainID, "t1", player.PubKey(), 0, 0)
	mustExec(t, exec, block, leaveTx)

	playerAcc, _ := state.GetAccount(player.PubKey())
	if playerAcc.Balance != 0 {
		t.Fatalf("player balance after leave = %d, want 0 (refund must not land on the player)", playerAcc.Balance)
	}
	gameServerAcc, _ := state.GetAccount(gameServer.PubKey())
	if gameServerAcc.Balance != 1000 {
		t.Fatalf("game server balance after leave = %d, want 1000 (full refund)", gameServerAcc.Balance)
	}

	tourn, _ := state.GetTournament("t1")
	details, _ = state.GetTournamentDetails("t1")
	if err := tourn.CheckInvariants(details); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

// TestTournamentReportMatchConcludes drives a filled 2-player tournament to
// conclusion via tournament_report_match and checks that it is concluded with
// an end time set.
func TestTournamentReportMatchConcludes(t *testing.T) {
	state := newState(t)
	emitter := events.NewEmitter()
	exec := vm.NewExecutor(state, emitter)

	creator := fundedWallet(t, state, 0)
	p1 := fundedWallet(t, state, 1000)
	p2 := fundedWallet(t, state, 1000)

	block := core.NewBlock(chainID, 1, "0000", creator.PubKey(), nil)

	createTx, _ := creator.CreateTournament(chainID, core.TournamentCreatePayload{
		ID:                   "t1",
		NumberOfPlayers:      2,
		RegistrationDeadline: block.Header.Timestamp + int64(time1Hour),
		StartDelaySeconds:    startDelay(0),
	}, 0, 0)
	mustExec(t, exec, block, createTx)

	joinTx1, _ := p1.JoinTournament(chainID, "t1", p1.PubKey(), 0, 0)
	mustExec(t, exec, block, joinTx1)
	joinTx2, _ := p2.JoinTournament(chainID, "t1", p2.PubKey(), 0, 0)
	mustExec(t, exec, block, joinTx2)

	details, _ := state.GetTournamentDetails("t1")
	winner := details.Matches[0].Players[0]

	reportTx, _ := p1.ReportMatch(chainID, "t1", 0, winner, 1, 0)
	mustExec(t, exec, block, reportTx)

	tourn, _ := state.GetTournament("t1")
	if tourn.State != core.TournamentConcluded {
		t.Fatalf("state = %s, want concluded", tourn.State)
	}
	if tourn.EndTime == nil {
		t.Fatal("end_time not set after conclusion")
	}
}

// TestProcessPendingEventsExpiresRegistration verifies the per-block sweep
// moves an unfilled tournament to registration_period_expired once its
// deadline passes, refunding any partial registrations.
func TestProcessPendingEventsExpiresRegistration(t *testing.T) {
	state := newState(t)
	emitter := events.NewEmitter()
	exec := vm.NewExecutor(state, emitter)

	creator := fundedWallet(t, state, 0)
	p1 := fundedWallet(t, state, 1000)

	block := core.NewBlock(chainID, 1, "0000", creator.PubKey(), nil)

	createTx, _ := creator.CreateTournament(chainID, core.TournamentCreatePayload{
		ID:                   "t1",
		NumberOfPlayers:      4,
		BuyInAmount:          25,
		RegistrationDeadline: block.Header.Timestamp + 1,
		StartDelaySeconds:    startDelay(0),
	}, 0, 0)
	mustExec(t, exec, block, createTx)

	joinTx, _ := p1.JoinTournament(chainID, "t1", p1.PubKey(), 0, 0)
	mustExec(t, exec, block, joinTx)

	futureBlock := core.NewBlock(chainID, 2, block.Hash, creator.PubKey(), nil)
	futureBlock.Header.Timestamp = block.Header.Timestamp + 2

	if err := tournament.ProcessPendingEvents(state, emitter, futureBlock); err != nil {
		t.Fatalf("ProcessPendingEvents: %v", err)
	}

	tourn, _ := state.GetTournament("t1")
	if tourn.State != core.TournamentRegistrationExpired {
		t.Fatalf("state = %s, want registration_period_expired", tourn.State)
	}

	acc, _ := state.GetAccount(p1.PubKey())
	if acc.Balance != 1000 {
		t.Fatalf("balance after expiry refund = %d, want 1000", acc.Balance)
	}

	// registered_players/payers stay frozen at their pre-expiry values even
	// though the underlying balance has been returned.
	if tourn.RegisteredPlayers != 1 {
		t.Fatalf("registered_players = %d, want 1 (frozen)", tourn.RegisteredPlayers)
	}
	details, _ := state.GetTournamentDetails("t1")
	if err := tourn.CheckInvariants(details); err != nil {
		t.Fatalf("invariants after expiry: %v", err)
	}
}

const time1Hour = 60 * 60 * 1_000_000_000
