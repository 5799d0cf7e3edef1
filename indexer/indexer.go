// Package indexer maintains secondary indexes over committed blocks so game
// servers can query assets/sessions by owner without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/impact"
	"github.com/tolelom/tolchain/storage"
)

const (
	prefixOwnerAssets    = "idx:owner:asset:"
	prefixPlayerSession  = "idx:player:session:"
	prefixAccountNotify  = "idx:account:notify:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
//
// It also accumulates a per-block impact.ChangeBatch from tournament
// lifecycle events and, on EventBlockCommit, runs it through impact.Dispatch
// so that for each non-empty new/modified/removed category the union of
// impacted accounts gets indexed for later lookup (GetNotifiedTournaments).
type Indexer struct {
	db        storage.DB
	emitter   *events.Emitter
	impactCfg impact.Config

	mu      sync.Mutex
	pending impact.ChangeBatch
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter, impactCfg: impact.DefaultConfig}
	emitter.Subscribe(events.EventAssetMinted, idx.onAssetMinted)
	emitter.Subscribe(events.EventAssetTransfer, idx.onAssetTransferred)
	emitter.Subscribe(events.EventAssetBurned, idx.onAssetBurned)
	emitter.Subscribe(events.EventSessionOpen, idx.onSessionOpen)

	emitter.Subscribe(events.EventTournamentCreated, idx.onTournamentCreated)
	emitter.Subscribe(events.EventTournamentJoined, idx.onTournamentJoined)
	emitter.Subscribe(events.EventTournamentLeft, idx.onTournamentLeft)
	emitter.Subscribe(events.EventTournamentPayout, idx.onTournamentPayout)
	emitter.Subscribe(events.EventBlockCommit, idx.onBlockCommit)
	return idx
}

// SetImpactConfig overrides the Config used for impact.Dispatch, e.g. to opt
// out of the historical tournament-leave erase bug. Must be called before
// any block is processed; not safe for concurrent use with event delivery.
func (idx *Indexer) SetImpactConfig(cfg impact.Config) {
	idx.impactCfg = cfg
}

// GetAssetsByOwner returns all asset IDs owned by the given pubkey.
func (idx *Indexer) GetAssetsByOwner(owner string) ([]string, error) {
	return idx.getList(prefixOwnerAssets + owner)
}

// GetSessionsByPlayer returns all session IDs a player participated in.
func (idx *Indexer) GetSessionsByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerSession + player)
}

// GetNotifiedTournaments returns the tournament ids that impact.Dispatch has
// notified account about across all committed blocks, letting a game server
// ask "what changed that affects me" without re-deriving impacted accounts
// itself.
func (idx *Indexer) GetNotifiedTournaments(account string) ([]string, error) {
	return idx.getList(prefixAccountNotify + account)
}

// ---- event handlers ----

func (idx *Indexer) onAssetMinted(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if owner == "" || assetID == "" {
		return
	}
	if err := idx.addToList(prefixOwnerAssets+owner, assetID); err != nil {
		log.Printf("[indexer] mint index write failed (owner=%s asset=%s): %v", owner, assetID, err)
	}
}

func (idx *Indexer) onAssetTransferred(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if assetID == "" || from == "" || to == "" {
		return
	}
	if err := idx.removeFromList(prefixOwnerAssets+from, assetID); err != nil {
		log.Printf("[indexer] transfer remove failed (from=%s asset=%s): %v", from, assetID, err)
	}
	if err := idx.addToList(prefixOwnerAssets+to, assetID); err != nil {
		log.Printf("[indexer] transfer add failed (to=%s asset=%s): %v", to, assetID, err)
	}
}

func (idx *Indexer) onAssetBurned(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if owner == "" || assetID == "" {
		return
	}
	if err := idx.removeFromList(prefixOwnerAssets+owner, assetID); err != nil {
		log.Printf("[indexer] burn remove failed (owner=%s asset=%s): %v", owner, assetID, err)
	}
}

func (idx *Indexer) onSessionOpen(ev events.Event) {
	sessionID, _ := ev.Data["session_id"].(string)
	players, _ := ev.Data["players"].([]any)
	if sessionID == "" {
		return
	}
	for _, p := range players {
		player, _ := p.(string)
		if player != "" {
			if err := idx.addToList(prefixPlayerSession+player, sessionID); err != nil {
				log.Printf("[indexer] session index write failed (player=%s session=%s): %v", player, sessionID, err)
			}
		}
	}
}

// ---- impact dispatch ----
//
// Each handler only records a Change into the pending batch; impact.Dispatch
// runs once per block, at commit, mirroring the host's "after a committed
// database checkpoint" timing from the change-notification design.

func (idx *Indexer) onTournamentCreated(ev events.Event) {
	tournamentID, _ := ev.Data["tournament_id"].(string)
	creator, _ := ev.Data["creator"].(string)
	if tournamentID == "" {
		return
	}
	op := impact.TournamentCreateOperation{Creator: creator}
	idx.addChange(&idx.pending.New, tournamentID, op)
}

func (idx *Indexer) onTournamentJoined(ev events.Event) {
	tournamentID, _ := ev.Data["tournament_id"].(string)
	playerID, _ := ev.Data["player_id"].(string)
	payer, _ := ev.Data["payer"].(string)
	if tournamentID == "" {
		return
	}
	op := impact.TournamentJoinOperation{PayerAccountID: payer, PlayerAccountID: playerID}
	idx.addChange(&idx.pending.Modified, tournamentID, op)
}

func (idx *Indexer) onTournamentLeft(ev events.Event) {
	tournamentID, _ := ev.Data["tournament_id"].(string)
	playerID, _ := ev.Data["player_id"].(string)
	cancelingAccount, _ := ev.Data["canceling_account_id"].(string)
	if tournamentID == "" {
		return
	}
	op := impact.TournamentLeaveOperation{CancelingAccountID: cancelingAccount, PlayerAccountID: playerID}
	idx.addChange(&idx.pending.Modified, tournamentID, op)
}

func (idx *Indexer) onTournamentPayout(ev events.Event) {
	tournamentID, _ := ev.Data["tournament_id"].(string)
	winner, _ := ev.Data["winner"].(string)
	if tournamentID == "" {
		return
	}
	op := impact.TournamentPayoutOperation{PayoutAccountID: winner}
	idx.addChange(&idx.pending.Modified, tournamentID, op)
}

func (idx *Indexer) addChange(into *[]impact.Change, id string, op impact.Operation) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	*into = append(*into, impact.Change{ID: id, Obj: impact.OperationHistoryObject{Op: op}})
}

func (idx *Indexer) onBlockCommit(events.Event) {
	idx.mu.Lock()
	batch := idx.pending
	idx.pending = impact.ChangeBatch{}
	idx.mu.Unlock()

	for _, notification := range impact.DispatchWithConfig(idx.impactCfg, batch) {
		for account := range notification.Accounts {
			for _, id := range notification.IDs {
				if err := idx.addToList(prefixAccountNotify+account, id); err != nil {
					log.Printf("[indexer] impact notify write failed (account=%s tournament=%s category=%s): %v",
						account, id, notification.Category, err)
				}
			}
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) removeFromList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	if ids == nil {
		return nil
	}
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
