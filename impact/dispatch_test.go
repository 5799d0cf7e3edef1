package impact_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/impact"
)

func TestDispatchSkipsEmptyCategories(t *testing.T) {
	batch := impact.ChangeBatch{
		Modified: []impact.Change{
			{ID: "t1", Obj: impact.OperationHistoryObject{Op: impact.TournamentJoinOperation{PayerAccountID: "P", PlayerAccountID: "Q"}}},
		},
	}
	notifications := impact.Dispatch(batch)
	require.Len(t, notifications, 1, "new/removed categories are empty and must contribute nothing")

	n := notifications[0]
	assert.Equal(t, impact.CategoryModified, n.Category)
	assert.Equal(t, []string{"t1"}, n.IDs)
	assert.Contains(t, n.Accounts, "P")
	assert.Contains(t, n.Accounts, "Q")
}

func TestDispatchEmptyBatchYieldsNoNotifications(t *testing.T) {
	assert.Empty(t, impact.Dispatch(impact.ChangeBatch{}))
}

func TestDispatchRemovedCarriesPriorObjects(t *testing.T) {
	prior := impact.OperationHistoryObject{Op: impact.TournamentCreateOperation{Creator: "creator"}}
	batch := impact.ChangeBatch{
		Removed: []impact.Change{{ID: "t1", Obj: prior, Prior: prior}},
	}
	notifications := impact.Dispatch(batch)
	require.Len(t, notifications, 1)

	n := notifications[0]
	assert.Equal(t, impact.CategoryRemoved, n.Category)
	require.Len(t, n.Removed, 1)
	assert.Equal(t, "t1", n.Removed[0].ID)
}

func TestDispatchRespectsLeaveEraseToggle(t *testing.T) {
	batch := impact.ChangeBatch{
		Modified: []impact.Change{
			{ID: "t1", Obj: impact.OperationHistoryObject{Op: impact.TournamentLeaveOperation{CancelingAccountID: "P", PlayerAccountID: "Q"}}},
		},
	}

	buggy := impact.DispatchWithConfig(impact.Config{LeaveErasesAccounts: true}, batch)
	require.Len(t, buggy, 1)
	assert.Empty(t, buggy[0].Accounts)

	fixed := impact.DispatchWithConfig(impact.Config{LeaveErasesAccounts: false}, batch)
	require.Len(t, fixed, 1)
	assert.Len(t, fixed[0].Accounts, 2)
}
