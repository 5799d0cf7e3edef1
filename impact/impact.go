// Package impact resolves which accounts are affected by a chain operation
// or by a committed object, mirroring the account-impact rules a game
// server's indexer needs to decide whose cached view to invalidate.
//
// Dispatch is a Go type switch over a closed Operation/Object interface (a
// tagged sum via an unexported marker method) rather than a per-variant
// visitor. Go does not check a type switch for exhaustiveness: a variant that
// OperationImpacted or ObjectImpacted does not name falls to the switch's
// default branch and resolves to an empty account set.
package impact

// Operation is implemented by every operation variant the resolver knows
// how to attribute to accounts. The marker method is unexported so the set
// of implementations is closed to this package and its callers can only
// construct one of the named types below.
type Operation interface {
	isOperation()
}

// Object is implemented by every persisted object variant ObjectImpacted
// knows how to attribute to accounts.
type Object interface {
	isObject()
}

// Authority is a minimal weighted-key authority: tolchain itself has no
// multi-signature authority tree, so this introduces just enough structure
// (an account -> weight map) for the authority-recursion rules below to be
// testable against account creation, account update, and proposal
// operations.
type Authority struct {
	AccountAuths map[string]uint32
}

// AuthorityResolver looks up the owner/active authority of account, mirroring
// a host database account lookup. It reports ok=false for accounts with no
// on-chain authority record (a plain key-controlled account, or one that
// does not exist).
type AuthorityResolver func(account string) (owner, active Authority, ok bool)

// AddAuthorityAccounts inserts every account reachable from auth's weighted
// key set into set, recursively resolving nested account authorities via
// resolve. Accounts already present in set are not re-expanded, so a cyclic
// authority graph terminates instead of recursing forever. A nil resolve
// treats every account auth as a leaf (no nested lookup), which is the
// correct behavior for a resolver that does not track authority accounts at
// all.
func AddAuthorityAccounts(set map[string]struct{}, auth Authority, resolve AuthorityResolver) {
	for account := range auth.AccountAuths {
		if _, seen := set[account]; seen {
			continue
		}
		set[account] = struct{}{}
		if resolve == nil {
			continue
		}
		if owner, active, ok := resolve(account); ok {
			AddAuthorityAccounts(set, owner, resolve)
			AddAuthorityAccounts(set, active, resolve)
		}
	}
}

// Config gates the togglable behaviors this package must preserve from
// historical source behavior that later turned out to be a bug.
type Config struct {
	// LeaveErasesAccounts reproduces the tournament_leave account-impact bug:
	// when true (the default, matching historical behavior bit-for-bit), a
	// leave erases the canceling and player accounts from the running
	// impacted-accounts set instead of inserting them, leaving both
	// un-notified of their own leave. Set false to get the corrected
	// insert-not-erase behavior.
	LeaveErasesAccounts bool
}

// DefaultConfig preserves the historical erase-on-leave behavior so
// existing indexed history keeps reproducing bit-for-bit unless a caller
// opts out.
var DefaultConfig = Config{LeaveErasesAccounts: true}

func accountSet(accounts ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return set
}

// --- Operation variants (spec §4.F(1)) ---

// TransferOperation is a plain balance transfer; only the recipient's view
// changes (the sender already knows it sent the funds).
type TransferOperation struct{ To string }

// OverrideTransferOperation is an issuer-forced transfer, which additionally
// impacts the sender and the issuer authorizing the override.
type OverrideTransferOperation struct{ To, From, Issuer string }

// OrderCancelOperation impacts the account paying the cancellation fee.
type OrderCancelOperation struct{ FeePayingAccount string }

// OrderFillOperation impacts the account whose order filled.
type OrderFillOperation struct{ AccountID string }

// AccountCreateOperation impacts the registrar, the referrer, and every
// account named directly in the new account's owner/active authorities;
// nested account authorities are not expanded.
type AccountCreateOperation struct {
	Registrar, Referrer string
	Owner, Active        Authority
}

// AccountUpdateOperation impacts the updated account, plus the accounts named
// directly in any new owner/active authority it sets; nested account
// authorities are not expanded.
type AccountUpdateOperation struct {
	Account       string
	Owner, Active *Authority
}

// AccountWhitelistOperation impacts the listed account (spec: "Whitelist /
// transfer: listed account / new owner").
type AccountWhitelistOperation struct{ ListedAccount string }

// AssetUpdateOperation impacts the new issuer, if one is being set.
type AssetUpdateOperation struct{ NewIssuer *string }

// AssetIssueOperation impacts the recipient of newly issued supply.
type AssetIssueOperation struct{ IssueToAccount string }

// AssetDividendDistributionOperation impacts the account receiving a
// dividend payout.
type AssetDividendDistributionOperation struct{ AccountID string }

// WitnessOperation covers both witness create and witness update: both
// impact only the managed account.
type WitnessOperation struct{ WitnessAccount string }

// CommitteeMemberOperation covers both committee-member create and update:
// both impact only the managed account.
type CommitteeMemberOperation struct{ CommitteeMemberAccount string }

// ProposalCreateOperation impacts the accounts each proposed operation
// impacts (as OperationImpacted resolves them), plus the proposal's own
// authority accounts expanded recursively through Resolve. The signing
// authorities that the proposed operations require are not derived.
type ProposalCreateOperation struct {
	ProposedOperations []Operation
	Authority          Authority
	Resolve            AuthorityResolver
}

// WithdrawPermissionOperation covers withdraw-permission create, update, and
// delete: all three impact only the authorized account.
type WithdrawPermissionOperation struct{ AuthorizedAccount string }

// WithdrawPermissionClaimOperation impacts the account being withdrawn from.
type WithdrawPermissionClaimOperation struct{ WithdrawFromAccount string }

// VestingBalanceCreateOperation impacts the vesting balance's owner.
type VestingBalanceCreateOperation struct{ Owner string }

// TransferToBlindOperation is a confidential transfer into blinded balances:
// impacts the visible recipient plus every authority account appearing in
// the blinded outputs.
type TransferToBlindOperation struct {
	To          string
	Authorities []string
}

// TransferFromBlindOperation is a confidential transfer out of blinded
// balances: impacts the visible sender plus every authority account
// appearing in the blinded inputs.
type TransferFromBlindOperation struct {
	From        string
	Authorities []string
}

// AssetSettleCancelOperation impacts the account whose settle order is
// cancelled.
type AssetSettleCancelOperation struct{ Account string }

// FBADistributeOperation impacts the account receiving a fee-backed-asset
// distribution.
type FBADistributeOperation struct{ AccountID string }

// TournamentCreateOperation impacts the creator and every whitelisted
// account named in the tournament's options.
type TournamentCreateOperation struct {
	Creator   string
	Whitelist []string
}

// TournamentJoinOperation impacts both the payer (whose balance was debited)
// and the player (whose registration changed), which may be distinct
// accounts when a game server pays on behalf of a player.
type TournamentJoinOperation struct{ PayerAccountID, PlayerAccountID string }

// TournamentLeaveOperation is the spec's explicitly-flagged historical bug:
// see Config.LeaveErasesAccounts.
type TournamentLeaveOperation struct{ CancelingAccountID, PlayerAccountID string }

// GameMoveOperation impacts the player who made the move.
type GameMoveOperation struct{ PlayerAccountID string }

// TournamentPayoutOperation impacts the winner receiving the prize pool.
type TournamentPayoutOperation struct{ PayoutAccountID string }

// AffiliatePayoutOperation impacts the affiliate receiving their cut.
type AffiliatePayoutOperation struct{ Affiliate string }

// NoImpactOperation covers every operation variant spec §4.F lists as
// contributing nothing (sport/event/betting variants, fee-pool, settle,
// publish-feed, and similar).
type NoImpactOperation struct{}

func (TransferOperation) isOperation()                 {}
func (OverrideTransferOperation) isOperation()         {}
func (OrderCancelOperation) isOperation()              {}
func (OrderFillOperation) isOperation()                {}
func (AccountCreateOperation) isOperation()            {}
func (AccountUpdateOperation) isOperation()            {}
func (AccountWhitelistOperation) isOperation()         {}
func (AssetUpdateOperation) isOperation()              {}
func (AssetIssueOperation) isOperation()               {}
func (AssetDividendDistributionOperation) isOperation() {}
func (WitnessOperation) isOperation()                  {}
func (CommitteeMemberOperation) isOperation()          {}
func (ProposalCreateOperation) isOperation()           {}
func (WithdrawPermissionOperation) isOperation()       {}
func (WithdrawPermissionClaimOperation) isOperation()  {}
func (VestingBalanceCreateOperation) isOperation()     {}
func (TransferToBlindOperation) isOperation()          {}
func (TransferFromBlindOperation) isOperation()        {}
func (AssetSettleCancelOperation) isOperation()        {}
func (FBADistributeOperation) isOperation()            {}
func (TournamentCreateOperation) isOperation()         {}
func (TournamentJoinOperation) isOperation()           {}
func (TournamentLeaveOperation) isOperation()          {}
func (GameMoveOperation) isOperation()                 {}
func (TournamentPayoutOperation) isOperation()         {}
func (AffiliatePayoutOperation) isOperation()          {}
func (NoImpactOperation) isOperation()                 {}

// OperationImpacted returns the accounts whose view is affected by op, using
// the package's DefaultConfig for any togglable behavior.
func OperationImpacted(op Operation) map[string]struct{} {
	return OperationImpactedWithConfig(DefaultConfig, op)
}

// OperationImpactedWithConfig is OperationImpacted with an explicit Config,
// for callers that need the corrected (non-buggy) leave behavior.
func OperationImpactedWithConfig(cfg Config, op Operation) map[string]struct{} {
	switch o := op.(type) {
	case TransferOperation:
		return accountSet(o.To)
	case OverrideTransferOperation:
		return accountSet(o.To, o.From, o.Issuer)
	case OrderCancelOperation:
		return accountSet(o.FeePayingAccount)
	case OrderFillOperation:
		return accountSet(o.AccountID)
	case AccountCreateOperation:
		set := accountSet(o.Registrar, o.Referrer)
		AddAuthorityAccounts(set, o.Owner, nil)
		AddAuthorityAccounts(set, o.Active, nil)
		return set
	case AccountUpdateOperation:
		set := accountSet(o.Account)
		if o.Owner != nil {
			AddAuthorityAccounts(set, *o.Owner, nil)
		}
		if o.Active != nil {
			AddAuthorityAccounts(set, *o.Active, nil)
		}
		return set
	case AccountWhitelistOperation:
		return accountSet(o.ListedAccount)
	case AssetUpdateOperation:
		if o.NewIssuer == nil {
			return accountSet()
		}
		return accountSet(*o.NewIssuer)
	case AssetIssueOperation:
		return accountSet(o.IssueToAccount)
	case AssetDividendDistributionOperation:
		return accountSet(o.AccountID)
	case WitnessOperation:
		return accountSet(o.WitnessAccount)
	case CommitteeMemberOperation:
		return accountSet(o.CommitteeMemberAccount)
	case ProposalCreateOperation:
		set := accountSet()
		AddAuthorityAccounts(set, o.Authority, o.Resolve)
		for _, proposed := range o.ProposedOperations {
			for account := range OperationImpactedWithConfig(cfg, proposed) {
				set[account] = struct{}{}
			}
		}
		return set
	case WithdrawPermissionOperation:
		return accountSet(o.AuthorizedAccount)
	case WithdrawPermissionClaimOperation:
		return accountSet(o.WithdrawFromAccount)
	case VestingBalanceCreateOperation:
		return accountSet(o.Owner)
	case TransferToBlindOperation:
		set := accountSet(o.To)
		for _, a := range o.Authorities {
			set[a] = struct{}{}
		}
		return set
	case TransferFromBlindOperation:
		set := accountSet(o.From)
		for _, a := range o.Authorities {
			set[a] = struct{}{}
		}
		return set
	case AssetSettleCancelOperation:
		return accountSet(o.Account)
	case FBADistributeOperation:
		return accountSet(o.AccountID)
	case TournamentCreateOperation:
		set := accountSet(o.Creator)
		for _, w := range o.Whitelist {
			set[w] = struct{}{}
		}
		return set
	case TournamentJoinOperation:
		return accountSet(o.PayerAccountID, o.PlayerAccountID)
	case TournamentLeaveOperation:
		set := accountSet()
		if cfg.LeaveErasesAccounts {
			// Historical bug, preserved bit-for-bit: erase rather than
			// insert, leaving both accounts un-notified of their own leave.
			delete(set, o.PlayerAccountID)
			if o.CancelingAccountID != o.PlayerAccountID {
				delete(set, o.CancelingAccountID)
			}
			return set
		}
		set[o.PlayerAccountID] = struct{}{}
		if o.CancelingAccountID != "" {
			set[o.CancelingAccountID] = struct{}{}
		}
		return set
	case GameMoveOperation:
		return accountSet(o.PlayerAccountID)
	case TournamentPayoutOperation:
		return accountSet(o.PayoutAccountID)
	case AffiliatePayoutOperation:
		return accountSet(o.Affiliate)
	case NoImpactOperation:
		return accountSet()
	default:
		return accountSet()
	}
}

// --- Object variants (spec §4.F(2)) ---

// AccountObject is the account itself.
type AccountObject struct{ ID string }

// AssetObject impacts its issuer.
type AssetObject struct{ Issuer string }

// OrderObject impacts its owner.
type OrderObject struct{ Owner string }

// BlindedBalanceObject impacts the authority accounts of its owner.
type BlindedBalanceObject struct{ Authorities []string }

// ProposalObject recursively impacts the accounts of its proposed
// transaction's operations, plus its own authority.
type ProposalObject struct {
	ProposedOperations []Operation
	Authority          Authority
	Resolve            AuthorityResolver
}

// OperationHistoryObject recursively impacts the accounts of the operation
// it records.
type OperationHistoryObject struct{ Op Operation }

// ImpersonalObject covers balance objects, block/schedule/global properties,
// and other object kinds with no owning account.
type ImpersonalObject struct{}

func (AccountObject) isObject()           {}
func (AssetObject) isObject()             {}
func (OrderObject) isObject()             {}
func (BlindedBalanceObject) isObject()    {}
func (ProposalObject) isObject()          {}
func (OperationHistoryObject) isObject()  {}
func (ImpersonalObject) isObject()        {}

// ObjectImpacted returns the accounts whose view is affected by a committed
// object, using the package's DefaultConfig for any operation recursion.
func ObjectImpacted(obj Object) map[string]struct{} {
	return ObjectImpactedWithConfig(DefaultConfig, obj)
}

// ObjectImpactedWithConfig is ObjectImpacted with an explicit Config.
func ObjectImpactedWithConfig(cfg Config, obj Object) map[string]struct{} {
	switch o := obj.(type) {
	case AccountObject:
		return accountSet(o.ID)
	case AssetObject:
		return accountSet(o.Issuer)
	case OrderObject:
		return accountSet(o.Owner)
	case BlindedBalanceObject:
		set := accountSet()
		for _, a := range o.Authorities {
			set[a] = struct{}{}
		}
		return set
	case ProposalObject:
		set := accountSet()
		AddAuthorityAccounts(set, o.Authority, o.Resolve)
		for _, proposed := range o.ProposedOperations {
			for account := range OperationImpactedWithConfig(cfg, proposed) {
				set[account] = struct{}{}
			}
		}
		return set
	case OperationHistoryObject:
		return OperationImpactedWithConfig(cfg, o.Op)
	case ImpersonalObject:
		return accountSet()
	default:
		return accountSet()
	}
}
