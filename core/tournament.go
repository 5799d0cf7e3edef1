package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrInvariantViolation is raised when a committed tournament object would
// violate one of the accounting/state invariants. Seeing this indicates a
// bug in the state machine, not a malformed input; callers should treat it
// as fatal rather than retry.
var ErrInvariantViolation = errors.New("tournament invariant violation")

// TournamentState is the lifecycle stage of a Tournament. It is persisted as
// a single byte.
type TournamentState uint8

const (
	TournamentAcceptingRegistrations TournamentState = iota
	TournamentAwaitingStart
	TournamentInProgress
	TournamentRegistrationExpired
	TournamentConcluded
)

func (s TournamentState) String() string {
	switch s {
	case TournamentAcceptingRegistrations:
		return "accepting_registrations"
	case TournamentAwaitingStart:
		return "awaiting_start"
	case TournamentInProgress:
		return "in_progress"
	case TournamentRegistrationExpired:
		return "registration_period_expired"
	case TournamentConcluded:
		return "concluded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MatchState mirrors the subset of the external Match component's state
// machine that the scheduler needs to observe.
type MatchState uint8

const (
	MatchWaitingOnPreviousMatches MatchState = iota
	MatchInProgress
	MatchComplete
)

// TournamentOptions are immutable once the tournament is created.
type TournamentOptions struct {
	NumberOfPlayers      uint32   `json:"number_of_players"`
	BuyInAmount          uint64   `json:"buy_in_amount"`
	BuyInAssetID         string   `json:"buy_in_asset_id"`
	RegistrationDeadline int64    `json:"registration_deadline"` // unix nanos
	StartTime            *int64   `json:"start_time,omitempty"`
	StartDelaySeconds    *int64   `json:"start_delay_seconds,omitempty"`
	Whitelist            []string `json:"whitelist,omitempty"`
}

// Validate checks the static constraints on options that do not depend on
// any chain state (registration progress, current time, ...).
func (o *TournamentOptions) Validate() error {
	if o.NumberOfPlayers < 2 {
		return errors.New("number_of_players must be >= 2")
	}
	hasStart := o.StartTime != nil
	hasDelay := o.StartDelaySeconds != nil
	if hasStart == hasDelay {
		return errors.New("exactly one of start_time or start_delay_seconds must be set")
	}
	if hasDelay && *o.StartDelaySeconds < 0 {
		return errors.New("start_delay_seconds must be non-negative")
	}
	return nil
}

// IsWhitelisted reports whether player is eligible to join. An empty
// whitelist means the tournament is open to anyone.
func (o *TournamentOptions) IsWhitelisted(player string) bool {
	if len(o.Whitelist) == 0 {
		return true
	}
	for _, w := range o.Whitelist {
		if w == player {
			return true
		}
	}
	return false
}

// Tournament is the mutable, host-owned aggregate root. RegisteredPlayers and
// PrizePool are cached here for cheap reads; the source of truth for the
// registration set and payer ledger lives in the paired TournamentDetails.
type Tournament struct {
	ID                string            `json:"id"`
	Creator           string            `json:"creator"`
	Options           TournamentOptions `json:"options"`
	StartTime         *int64            `json:"start_time,omitempty"`
	EndTime           *int64            `json:"end_time,omitempty"`
	PrizePool         uint64            `json:"prize_pool"`
	RegisteredPlayers uint32            `json:"registered_players"`
	State             TournamentState   `json:"state"`
}

// NewTournament creates a fresh tournament in accepting_registrations with no
// registered players. Callers must validate options beforehand.
func NewTournament(id, creator string, options TournamentOptions) *Tournament {
	return &Tournament{
		ID:      id,
		Creator: creator,
		Options: options,
		State:   TournamentAcceptingRegistrations,
	}
}

// TournamentMatch is the flat-array bracket slot this core schedules; the
// actual match gameplay is delegated to an external Match component
// identified (conceptually) by Index within Details.Matches.
type TournamentMatch struct {
	Index        int        `json:"index"`
	Players      []string   `json:"players"`       // 0, 1, or 2 entries
	MatchWinners []string   `json:"match_winners"`  // 0 or 1 entries
	State        MatchState `json:"state"`
}

// TournamentDetails holds the mutable registration/bracket data for one
// tournament. RegisteredPlayers is kept in a canonical sorted order so the
// seeded shuffle (bracket.SeedPlayers) is reproducible from the same set
// regardless of join order.
//
// Payers is keyed by the account that actually debited its balance (the
// payer), not by the player it registered: a single payer may register
// several distinct players and accumulates amount = k*buy_in under its own
// key. PlayerPayer is the auxiliary player->payer index this requires so a
// leave can find and refund the correct payer even though Payers itself has
// no per-player entries.
type TournamentDetails struct {
	TournamentID      string             `json:"tournament_id"`
	RegisteredPlayers []string           `json:"registered_players"`
	Payers            map[string]uint64  `json:"payers"`
	PlayerPayer       map[string]string  `json:"player_payer"`
	Matches           []*TournamentMatch `json:"matches"`
}

// NewTournamentDetails creates an empty details object for tournament id.
func NewTournamentDetails(tournamentID string) *TournamentDetails {
	return &TournamentDetails{
		TournamentID: tournamentID,
		Payers:       make(map[string]uint64),
		PlayerPayer:  make(map[string]string),
	}
}

// HasPlayer reports whether player is already registered.
func (d *TournamentDetails) HasPlayer(player string) bool {
	for _, p := range d.RegisteredPlayers {
		if p == player {
			return true
		}
	}
	return false
}

// InsertPlayer adds player to the registered set, keeping it sorted so the
// canonical iteration order used as shuffle input is deterministic.
func (d *TournamentDetails) InsertPlayer(player string) {
	idx := sort.SearchStrings(d.RegisteredPlayers, player)
	d.RegisteredPlayers = append(d.RegisteredPlayers, "")
	copy(d.RegisteredPlayers[idx+1:], d.RegisteredPlayers[idx:])
	d.RegisteredPlayers[idx] = player
}

// RemovePlayer removes player from the registered set. Reports whether it was
// present.
func (d *TournamentDetails) RemovePlayer(player string) bool {
	idx := sort.SearchStrings(d.RegisteredPlayers, player)
	if idx >= len(d.RegisteredPlayers) || d.RegisteredPlayers[idx] != player {
		return false
	}
	d.RegisteredPlayers = append(d.RegisteredPlayers[:idx], d.RegisteredPlayers[idx+1:]...)
	return true
}

// TotalPayerContributions sums Payers for invariant checks.
func (d *TournamentDetails) TotalPayerContributions() uint64 {
	var total uint64
	for _, v := range d.Payers {
		total += v
	}
	return total
}

// CheckInvariants checks t against its paired details: the registered_players
// cache equals the details set size, payer contributions divided by buy_in
// equal registered_players (and are zero when buy_in is zero), prize_pool
// equals the sum of payers, registered_players does not exceed
// number_of_players, awaiting_start implies a full registration, and an
// in_progress or concluded tournament holds a 2^R-1 match array. It does not
// check that registered_players and payers stay unchanged once registration
// closes, nor that a full registration implies awaiting_start. A non-nil error
// here indicates a bug in the state machine (ErrInvariantViolation), not a
// user-triggerable condition.
func (t *Tournament) CheckInvariants(d *TournamentDetails) error {
	if uint32(len(d.RegisteredPlayers)) != t.RegisteredPlayers {
		return fmt.Errorf("%w: registered_players cache %d != details set size %d",
			ErrInvariantViolation, t.RegisteredPlayers, len(d.RegisteredPlayers))
	}
	if t.Options.BuyInAmount > 0 {
		total := d.TotalPayerContributions()
		if total/t.Options.BuyInAmount != uint64(t.RegisteredPlayers) {
			return fmt.Errorf("%w: payer contributions %d do not match registered_players*buy_in (%d*%d)",
				ErrInvariantViolation, total, t.RegisteredPlayers, t.Options.BuyInAmount)
		}
	} else if d.TotalPayerContributions() != 0 {
		return fmt.Errorf("%w: buy_in is zero but payer contributions are non-zero", ErrInvariantViolation)
	}
	if t.PrizePool != d.TotalPayerContributions() {
		return fmt.Errorf("%w: prize_pool %d != sum(payers) %d", ErrInvariantViolation, t.PrizePool, d.TotalPayerContributions())
	}
	if t.RegisteredPlayers > t.Options.NumberOfPlayers {
		return fmt.Errorf("%w: registered_players %d exceeds number_of_players %d",
			ErrInvariantViolation, t.RegisteredPlayers, t.Options.NumberOfPlayers)
	}
	wantAwaiting := t.RegisteredPlayers == t.Options.NumberOfPlayers
	if t.State == TournamentAwaitingStart && !wantAwaiting {
		return fmt.Errorf("%w: state is awaiting_start but registration is not full", ErrInvariantViolation)
	}
	if t.State == TournamentInProgress || t.State == TournamentConcluded {
		rounds := BracketRounds(t.Options.NumberOfPlayers)
		wantMatches := (1 << rounds) - 1
		if t.Options.NumberOfPlayers >= 2 && len(d.Matches) != wantMatches {
			return fmt.Errorf("%w: matches len %d != 2^R-1 (%d)", ErrInvariantViolation, len(d.Matches), wantMatches)
		}
	}
	return nil
}

// BracketRounds returns R = ceil(log2(n)), with the N=1 special case R=1 as
// specified. Shared by the invariant check and the bracket builder so both
// always agree on the number of rounds for a given player count.
func BracketRounds(n uint32) int {
	if n <= 1 {
		return 1
	}
	r := 0
	for (uint32(1) << uint(r)) < n {
		r++
	}
	return r
}

// ---- canonical binary encoding (storage format) ----
//
// Versioned, little-endian, length-prefixed. The state byte is written as a
// single byte per §9 of the design notes; strings are length-prefixed with a
// 4-byte little-endian count.

const tournamentEncodingVersion = 1

func writeLPString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readLPString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeOptionalInt64(buf *bytes.Buffer, v *int64) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(*v))
	buf.Write(b[:])
}

func readOptionalInt64(r *bytes.Reader) (*int64, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return nil, err
	}
	v := int64(binary.LittleEndian.Uint64(b[:]))
	return &v, nil
}

// MarshalBinary encodes the tournament in the canonical storage format.
func (t *Tournament) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tournamentEncodingVersion)
	writeLPString(&buf, t.ID)
	writeLPString(&buf, t.Creator)
	writeLPString(&buf, t.Options.BuyInAssetID)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], t.Options.NumberOfPlayers)
	buf.Write(u32[:])

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], t.Options.BuyInAmount)
	buf.Write(u64[:])
	binary.LittleEndian.PutUint64(u64[:], uint64(t.Options.RegistrationDeadline))
	buf.Write(u64[:])

	writeOptionalInt64(&buf, t.Options.StartTime)
	writeOptionalInt64(&buf, t.Options.StartDelaySeconds)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(t.Options.Whitelist)))
	buf.Write(u32[:])
	for _, w := range t.Options.Whitelist {
		writeLPString(&buf, w)
	}

	writeOptionalInt64(&buf, t.StartTime)
	writeOptionalInt64(&buf, t.EndTime)

	binary.LittleEndian.PutUint64(u64[:], t.PrizePool)
	buf.Write(u64[:])
	binary.LittleEndian.PutUint32(u32[:], t.RegisteredPlayers)
	buf.Write(u32[:])

	buf.WriteByte(byte(t.State))
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Tournament previously written by MarshalBinary.
func (t *Tournament) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return err
	}
	if version != tournamentEncodingVersion {
		return fmt.Errorf("tournament: unsupported encoding version %d", version)
	}
	if t.ID, err = readLPString(r); err != nil {
		return err
	}
	if t.Creator, err = readLPString(r); err != nil {
		return err
	}
	if t.Options.BuyInAssetID, err = readLPString(r); err != nil {
		return err
	}

	var u32 [4]byte
	if _, err := r.Read(u32[:]); err != nil {
		return err
	}
	t.Options.NumberOfPlayers = binary.LittleEndian.Uint32(u32[:])

	var u64 [8]byte
	if _, err := r.Read(u64[:]); err != nil {
		return err
	}
	t.Options.BuyInAmount = binary.LittleEndian.Uint64(u64[:])
	if _, err := r.Read(u64[:]); err != nil {
		return err
	}
	t.Options.RegistrationDeadline = int64(binary.LittleEndian.Uint64(u64[:]))

	if t.Options.StartTime, err = readOptionalInt64(r); err != nil {
		return err
	}
	if t.Options.StartDelaySeconds, err = readOptionalInt64(r); err != nil {
		return err
	}

	if _, err := r.Read(u32[:]); err != nil {
		return err
	}
	n := binary.LittleEndian.Uint32(u32[:])
	t.Options.Whitelist = make([]string, n)
	for i := range t.Options.Whitelist {
		if t.Options.Whitelist[i], err = readLPString(r); err != nil {
			return err
		}
	}

	if t.StartTime, err = readOptionalInt64(r); err != nil {
		return err
	}
	if t.EndTime, err = readOptionalInt64(r); err != nil {
		return err
	}

	if _, err := r.Read(u64[:]); err != nil {
		return err
	}
	t.PrizePool = binary.LittleEndian.Uint64(u64[:])

	if _, err := r.Read(u32[:]); err != nil {
		return err
	}
	t.RegisteredPlayers = binary.LittleEndian.Uint32(u32[:])

	state, err := r.ReadByte()
	if err != nil {
		return err
	}
	t.State = TournamentState(state)
	return nil
}

// MarshalBinary encodes the tournament details (registration set, payer
// ledger, and match bracket) in the canonical storage format. The match
// array is written as a length-prefixed sequence per §9 of the design notes.
func (d *TournamentDetails) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tournamentEncodingVersion)
	writeLPString(&buf, d.TournamentID)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(d.RegisteredPlayers)))
	buf.Write(u32[:])
	for _, p := range d.RegisteredPlayers {
		writeLPString(&buf, p)
	}

	binary.LittleEndian.PutUint32(u32[:], uint32(len(d.Payers)))
	buf.Write(u32[:])
	payerKeys := make([]string, 0, len(d.Payers))
	for k := range d.Payers {
		payerKeys = append(payerKeys, k)
	}
	sort.Strings(payerKeys)
	for _, k := range payerKeys {
		writeLPString(&buf, k)
		var u64 [8]byte
		binary.LittleEndian.PutUint64(u64[:], d.Payers[k])
		buf.Write(u64[:])
	}

	binary.LittleEndian.PutUint32(u32[:], uint32(len(d.PlayerPayer)))
	buf.Write(u32[:])
	playerKeys := make([]string, 0, len(d.PlayerPayer))
	for k := range d.PlayerPayer {
		playerKeys = append(playerKeys, k)
	}
	sort.Strings(playerKeys)
	for _, k := range playerKeys {
		writeLPString(&buf, k)
		writeLPString(&buf, d.PlayerPayer[k])
	}

	binary.LittleEndian.PutUint32(u32[:], uint32(len(d.Matches)))
	buf.Write(u32[:])
	for _, m := range d.Matches {
		binary.LittleEndian.PutUint32(u32[:], uint32(m.Index))
		buf.Write(u32[:])
		binary.LittleEndian.PutUint32(u32[:], uint32(len(m.Players)))
		buf.Write(u32[:])
		for _, p := range m.Players {
			writeLPString(&buf, p)
		}
		binary.LittleEndian.PutUint32(u32[:], uint32(len(m.MatchWinners)))
		buf.Write(u32[:])
		for _, w := range m.MatchWinners {
			writeLPString(&buf, w)
		}
		buf.WriteByte(byte(m.State))
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes TournamentDetails previously written by
// MarshalBinary.
func (d *TournamentDetails) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return err
	}
	if version != tournamentEncodingVersion {
		return fmt.Errorf("tournament details: unsupported encoding version %d", version)
	}
	if d.TournamentID, err = readLPString(r); err != nil {
		return err
	}

	var u32 [4]byte
	if _, err := r.Read(u32[:]); err != nil {
		return err
	}
	n := binary.LittleEndian.Uint32(u32[:])
	d.RegisteredPlayers = make([]string, n)
	for i := range d.RegisteredPlayers {
		if d.RegisteredPlayers[i], err = readLPString(r); err != nil {
			return err
		}
	}

	if _, err := r.Read(u32[:]); err != nil {
		return err
	}
	numPayers := binary.LittleEndian.Uint32(u32[:])
	d.Payers = make(map[string]uint64, numPayers)
	for i := uint32(0); i < numPayers; i++ {
		k, err := readLPString(r)
		if err != nil {
			return err
		}
		var u64 [8]byte
		if _, err := r.Read(u64[:]); err != nil {
			return err
		}
		d.Payers[k] = binary.LittleEndian.Uint64(u64[:])
	}

	if _, err := r.Read(u32[:]); err != nil {
		return err
	}
	numPlayerPayers := binary.LittleEndian.Uint32(u32[:])
	d.PlayerPayer = make(map[string]string, numPlayerPayers)
	for i := uint32(0); i < numPlayerPayers; i++ {
		k, err := readLPString(r)
		if err != nil {
			return err
		}
		v, err := readLPString(r)
		if err != nil {
			return err
		}
		d.PlayerPayer[k] = v
	}

	if _, err := r.Read(u32[:]); err != nil {
		return err
	}
	numMatches := binary.LittleEndian.Uint32(u32[:])
	d.Matches = make([]*TournamentMatch, numMatches)
	for i := uint32(0); i < numMatches; i++ {
		m := &TournamentMatch{}
		if _, err := r.Read(u32[:]); err != nil {
			return err
		}
		m.Index = int(binary.LittleEndian.Uint32(u32[:]))

		if _, err := r.Read(u32[:]); err != nil {
			return err
		}
		numPlayers := binary.LittleEndian.Uint32(u32[:])
		m.Players = make([]string, numPlayers)
		for j := range m.Players {
			if m.Players[j], err = readLPString(r); err != nil {
				return err
			}
		}

		if _, err := r.Read(u32[:]); err != nil {
			return err
		}
		numWinners := binary.LittleEndian.Uint32(u32[:])
		m.MatchWinners = make([]string, numWinners)
		for j := range m.MatchWinners {
			if m.MatchWinners[j], err = readLPString(r); err != nil {
				return err
			}
		}

		state, err := r.ReadByte()
		if err != nil {
			return err
		}
		m.State = MatchState(state)
		d.Matches[i] = m
	}
	return nil
}
