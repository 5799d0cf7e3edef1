package impact

// ChangeCategory is one of the three disjoint undo categories a committed
// checkpoint is split into.
type ChangeCategory string

const (
	CategoryNew      ChangeCategory = "new"
	CategoryModified ChangeCategory = "modified"
	CategoryRemoved  ChangeCategory = "removed"
)

// Change pairs an object id with the Object value needed to resolve its
// impacted accounts. Prior is set only for CategoryRemoved entries, holding
// the object as it stood immediately before removal so downstream consumers
// can archive it.
type Change struct {
	ID    string
	Obj   Object
	Prior Object
}

// ChangeBatch groups every object touched by one committed checkpoint into
// its three disjoint undo categories.
type ChangeBatch struct {
	New      []Change
	Modified []Change
	Removed  []Change
}

// Notification is the per-category result of a Dispatch call: the ids that
// changed and the union of accounts impacted across all of them. Consumers
// are responsible for their own durability; Dispatch does not retry or
// persist anything itself.
type Notification struct {
	Category ChangeCategory
	IDs      []string
	Accounts map[string]struct{}
	// Removed carries the prior object for each id in this notification,
	// populated only for CategoryRemoved.
	Removed []Change
}

// Dispatch assembles (ids, union_of_impacted_accounts) for each of batch's
// three categories and returns one Notification per category that is
// non-empty; a category with no changes contributes nothing to the result,
// matching spec's "dispatch only if the respective id set is non-empty".
func Dispatch(batch ChangeBatch) []Notification {
	return DispatchWithConfig(DefaultConfig, batch)
}

// DispatchWithConfig is Dispatch with an explicit Config, so callers can
// opt into the corrected (non-buggy) tournament-leave impact behavior.
func DispatchWithConfig(cfg Config, batch ChangeBatch) []Notification {
	var out []Notification
	if n := buildNotification(cfg, CategoryNew, batch.New); n != nil {
		out = append(out, *n)
	}
	if n := buildNotification(cfg, CategoryModified, batch.Modified); n != nil {
		out = append(out, *n)
	}
	if n := buildNotification(cfg, CategoryRemoved, batch.Removed); n != nil {
		out = append(out, *n)
	}
	return out
}

func buildNotification(cfg Config, cat ChangeCategory, changes []Change) *Notification {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(changes))
	accounts := make(map[string]struct{})
	var removed []Change
	for _, c := range changes {
		ids = append(ids, c.ID)
		for account := range ObjectImpactedWithConfig(cfg, c.Obj) {
			accounts[account] = struct{}{}
		}
		if cat == CategoryRemoved {
			removed = append(removed, c)
		}
	}
	return &Notification{Category: cat, IDs: ids, Accounts: accounts, Removed: removed}
}
