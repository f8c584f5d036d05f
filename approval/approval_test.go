package approval_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/chronoplan/approval"
)

func TestRequiresApproval_Table(t *testing.T) {
	// Single-entity operations run immediately.
	assert.False(t, approval.RequiresApproval(approval.KindTaskCreate))
	assert.False(t, approval.RequiresApproval(approval.KindTaskComplete))
	assert.False(t, approval.RequiresApproval(approval.KindEventCreate))
	assert.False(t, approval.RequiresApproval(approval.KindEventCancel))

	// Anything touching other calendars is gated.
	assert.True(t, approval.RequiresApproval(approval.KindEventCreateWithParticipants))
	assert.True(t, approval.RequiresApproval(approval.KindEventUpdateWithParticipants))
	assert.True(t, approval.RequiresApproval(approval.KindEventCancelWithParticipants))

	// Safety interlocks and bulk operations are gated.
	assert.True(t, approval.RequiresApproval(approval.KindTaskCreateDuplicate))
	assert.True(t, approval.RequiresApproval(approval.KindEventCreateConflictReschedule))
	assert.True(t, approval.RequiresApproval(approval.KindBulkDelete))
	assert.True(t, approval.RequiresApproval(approval.KindBulkReschedule))
}

func TestRequiresApproval_FailsClosed(t *testing.T) {
	assert.True(t, approval.RequiresApproval(approval.Kind("made_up_kind")))
	assert.Error(t, approval.Kind("made_up_kind").Validate())
	assert.NoError(t, approval.KindTaskCreate.Validate())
}

func TestRewrite(t *testing.T) {
	// Participants promote event operations.
	got := approval.Rewrite(approval.KindEventCreate, approval.Context{HasParticipants: true})
	assert.Equal(t, approval.KindEventCreateWithParticipants, got)

	got = approval.Rewrite(approval.KindEventUpdate, approval.Context{HasParticipants: true})
	assert.Equal(t, approval.KindEventUpdateWithParticipants, got)

	// Bulk promotes mutating operations.
	got = approval.Rewrite(approval.KindTaskComplete, approval.Context{IsBulk: true})
	assert.Equal(t, approval.KindBulkComplete, got)

	// Bulk wins when both apply.
	got = approval.Rewrite(approval.KindEventCancel, approval.Context{HasParticipants: true, IsBulk: true})
	assert.Equal(t, approval.KindBulkCancel, got)

	// No context, no rewrite.
	got = approval.Rewrite(approval.KindTaskCreate, approval.Context{})
	assert.Equal(t, approval.KindTaskCreate, got)

	// Task operations have no participant form.
	got = approval.Rewrite(approval.KindTaskComplete, approval.Context{HasParticipants: true})
	assert.Equal(t, approval.KindTaskComplete, got)
}

func TestIsBulkQuery(t *testing.T) {
	assert.True(t, approval.IsBulkQuery("complete all of them please", "complete"))
	assert.True(t, approval.IsBulkQuery("Delete ALL TASKS tagged urgent", "delete"))
	assert.True(t, approval.IsBulkQuery("cancel all my meetings tomorrow", "cancel"))

	// The phrase list is closed.
	assert.False(t, approval.IsBulkQuery("complete my task", "complete"))
	assert.False(t, approval.IsBulkQuery("complete both of those", "complete"))

	// Bulk only applies to mutations. "show me all tasks" is a search.
	assert.False(t, approval.IsBulkQuery("show me all tasks", "list"))
	assert.False(t, approval.IsBulkQuery("create all tasks from my notes", "create"))
}

func TestRecordRoundTrip(t *testing.T) {
	rec := approval.NewRecord(approval.KindBulkComplete,
		json.RawMessage(`{"query":"complete all tasks"}`),
		approval.Preview{Summary: "Complete 3 tasks"})
	rec.BulkMatches = []approval.BulkMatch{
		{ID: "1", Title: "Write report"},
		{ID: "2", Title: "Send invoice"},
	}

	raw, err := rec.Encode()
	require.NoError(t, err)

	decoded, err := approval.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, approval.KindBulkComplete, decoded.Kind)
	assert.Equal(t, "Complete 3 tasks", decoded.Preview.Summary)
	require.Len(t, decoded.BulkMatches, 2)
	assert.Equal(t, "Write report", decoded.BulkMatches[0].Title)
}

func TestDecode_Rejections(t *testing.T) {
	_, err := approval.Decode(nil)
	assert.Error(t, err)

	_, err = approval.Decode(json.RawMessage(`not json`))
	assert.Error(t, err)

	_, err = approval.Decode(json.RawMessage(`{"id":"abc","kind":"made_up"}`))
	assert.Error(t, err)

	_, err = approval.Decode(json.RawMessage(`{"kind":"task_create"}`))
	assert.Error(t, err, "record id is required")
}

func TestExpectKind(t *testing.T) {
	rec := approval.NewRecord(approval.KindEventCreateDuplicate, nil, approval.Preview{})

	assert.NoError(t, rec.ExpectKind(approval.KindEventCreateDuplicate))
	assert.NoError(t, rec.ExpectKind(approval.KindBulkComplete, approval.KindEventCreateDuplicate))
	assert.Error(t, rec.ExpectKind(approval.KindTaskCreateDuplicate))
}
