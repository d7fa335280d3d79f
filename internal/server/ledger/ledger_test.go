package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solidify/internal/server/ledger"
	"solidify/internal/server/repository/memory"
	"solidify/internal/shared/models"
)

const (
	admin    = models.Address("0xadmin")
	recorder = models.Address("0xrecorder")
	stranger = models.Address("0xstranger")
	holder   = models.Address("0xholder")
)

// tickingClock advances one second on every call.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(memory.New(), ledger.WithClock(tickingClock()))
	require.NoError(t, l.Bootstrap(context.Background(), admin))
	return l
}

func TestBootstrap_GrantsAdminOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	has, err := l.HasRole(ctx, models.RoleAdmin, admin)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, l.Bootstrap(ctx, "0xADMIN"))
	events, err := l.Events(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	assert.ErrorIs(t, l.Bootstrap(ctx, "  "), ledger.ErrInvalidArgument)
}

func TestRetrieve_NeverCreated(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	for _, id := range []int64{0, 1, 42, -3} {
		_, err := l.Retrieve(ctx, id)
		assert.ErrorIs(t, err, ledger.ErrNotFound, "id %d", id)
		assert.Equal(t, ledger.KindNotFound, ledger.KindOf(err))
	}
}

func TestCreateThenRetrieve(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	created, err := l.Create(ctx, 1, "Original content", admin)
	require.NoError(t, err)
	assert.Equal(t, admin, created.Owner)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := l.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Original content", got.Content)
	assert.False(t, got.Erased)
	assert.Equal(t, created, got)
}

func TestCreate_Twice(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	first, err := l.Create(ctx, 1, "first", admin)
	require.NoError(t, err)
	_, err = l.Create(ctx, 1, "second", admin)
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	got, err := l.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestCreate_AfterEraseFails(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Create(ctx, 7, "c", admin)
	require.NoError(t, err)
	require.NoError(t, l.Erase(ctx, 7, admin))

	_, err = l.Create(ctx, 7, "again", admin)
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestCreate_NonPositiveID(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	_, err := l.Create(ctx, 0, "c", admin)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = l.Create(ctx, -1, "c", admin)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestErase_Twice(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Create(ctx, 1, "c", admin)
	require.NoError(t, err)
	require.NoError(t, l.Erase(ctx, 1, admin))
	err = l.Erase(ctx, 1, admin)
	assert.ErrorIs(t, err, ledger.ErrAlreadyErased)
	assert.Equal(t, ledger.KindAlreadyErased, ledger.KindOf(err))
}

func TestErase_Missing(t *testing.T) {
	l := newLedger(t)
	assert.ErrorIs(t, l.Erase(context.Background(), 9, admin), ledger.ErrNotFound)
}

func TestUpdate_AfterEraseKeepsContent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Create(ctx, 1, "before", admin)
	require.NoError(t, err)
	require.NoError(t, l.Erase(ctx, 1, admin))

	_, err = l.Update(ctx, 1, "after", admin)
	assert.ErrorIs(t, err, ledger.ErrErased)
	assert.Equal(t, ledger.KindErased, ledger.KindOf(err))

	got, err := l.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Content)
	assert.True(t, got.Erased)
}

func TestUpdate_MissingIsNotErased(t *testing.T) {
	l := newLedger(t)
	_, err := l.Update(context.Background(), 5, "x", admin)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.NotErrorIs(t, err, ledger.ErrErased)
}

func TestUpdatedAtNeverBeforeCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := ledger.New(memory.New(), ledger.WithClock(clock))
	require.NoError(t, l.Bootstrap(ctx, admin))

	created, err := l.Create(ctx, 1, "c", admin)
	require.NoError(t, err)

	now = now.Add(-time.Hour)
	updated, err := l.Update(ctx, 1, "c2", admin)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
}

func TestIssueNFT_AtMostOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Create(ctx, 1, "c", admin)
	require.NoError(t, err)

	b, err := l.IssueNFT(ctx, 1, "0xHOLDER", admin)
	require.NoError(t, err)
	assert.Equal(t, holder, b.Holder)
	assert.Equal(t, admin, b.Issuer)

	for _, h := range []models.Address{holder, "0xother"} {
		_, err = l.IssueNFT(ctx, 1, h, admin)
		assert.ErrorIs(t, err, ledger.ErrAlreadyIssued)
	}

	got, err := l.Binding(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestIssueNFT_Preconditions(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.IssueNFT(ctx, 1, holder, admin)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = l.Create(ctx, 1, "c", admin)
	require.NoError(t, err)
	_, err = l.IssueNFT(ctx, 1, "", admin)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)

	require.NoError(t, l.Erase(ctx, 1, admin))
	_, err = l.IssueNFT(ctx, 1, holder, admin)
	assert.ErrorIs(t, err, ledger.ErrErased)
}

func TestBinding_NotIssued(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Binding(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = l.Create(ctx, 1, "c", admin)
	require.NoError(t, err)
	_, err = l.Binding(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrNotIssued)
	assert.Equal(t, ledger.KindNotIssued, ledger.KindOf(err))
}

func TestStrangerAlwaysUnauthorized(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	_, err := l.Create(ctx, 1, "c", admin)
	require.NoError(t, err)
	_, err = l.Create(ctx, 2, "c", admin)
	require.NoError(t, err)
	require.NoError(t, l.Erase(ctx, 2, admin))

	// 1 exists, 2 is erased, 3 never existed.
	for _, id := range []int64{1, 2, 3, 0} {
		_, err := l.Create(ctx, id, "x", stranger)
		assert.ErrorIs(t, err, ledger.ErrUnauthorized, "create %d", id)
		_, err = l.Update(ctx, id, "x", stranger)
		assert.ErrorIs(t, err, ledger.ErrUnauthorized, "update %d", id)
		err = l.Erase(ctx, id, stranger)
		assert.ErrorIs(t, err, ledger.ErrUnauthorized, "erase %d", id)
		_, err = l.IssueNFT(ctx, id, holder, stranger)
		assert.ErrorIs(t, err, ledger.ErrUnauthorized, "issue %d", id)
	}
	_, err = l.Create(ctx, 5, "x", "")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestRoleManagement(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	require.NoError(t, l.GrantRole(ctx, models.RoleRecorder, recorder, admin))
	has, err := l.HasRole(ctx, models.RoleRecorder, recorder)
	require.NoError(t, err)
	assert.True(t, has)

	// Recorders mutate records but cannot manage roles.
	_, err = l.Create(ctx, 1, "c", recorder)
	require.NoError(t, err)
	assert.ErrorIs(t, l.GrantRole(ctx, models.RoleRecorder, stranger, recorder), ledger.ErrUnauthorized)
	assert.ErrorIs(t, l.RevokeRole(ctx, models.RoleRecorder, recorder, recorder), ledger.ErrUnauthorized)

	require.NoError(t, l.RevokeRole(ctx, models.RoleRecorder, recorder, admin))
	has, err = l.HasRole(ctx, models.RoleRecorder, recorder)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRoleCalls_IdempotentWithoutEvents(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	rcpt, err := l.Submit(ctx, ledger.OpRevokeRole, ledger.Args{Role: models.RoleRecorder, Account: recorder}, admin)
	require.NoError(t, err)
	assert.Nil(t, rcpt.Event)

	rcpt, err = l.Submit(ctx, ledger.OpGrantRole, ledger.Args{Role: models.RoleRecorder, Account: recorder}, admin)
	require.NoError(t, err)
	require.NotNil(t, rcpt.Event)
	assert.Equal(t, models.EventRoleGranted, rcpt.Event.Kind)

	rcpt, err = l.Submit(ctx, ledger.OpGrantRole, ledger.Args{Role: models.RoleRecorder, Account: "0xRECORDER"}, admin)
	require.NoError(t, err)
	assert.Nil(t, rcpt.Event)

	events, err := l.Events(ctx, 0)
	require.NoError(t, err)
	// bootstrap grant plus one recorder grant
	assert.Len(t, events, 2)
}

func TestRoleCalls_Validation(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	assert.ErrorIs(t, l.GrantRole(ctx, "OWNER", recorder, admin), ledger.ErrInvalidArgument)
	assert.ErrorIs(t, l.GrantRole(ctx, models.RoleRecorder, " ", admin), ledger.ErrInvalidArgument)
	// authorization is checked first
	assert.ErrorIs(t, l.GrantRole(ctx, "OWNER", recorder, stranger), ledger.ErrUnauthorized)

	_, err := l.HasRole(ctx, "OWNER", recorder)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestAdminCanGrantAdmin(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	require.NoError(t, l.GrantRole(ctx, models.RoleAdmin, "0xsecond", admin))
	require.NoError(t, l.GrantRole(ctx, models.RoleRecorder, recorder, "0xsecond"))
}

func TestSubmit_UnknownOperation(t *testing.T) {
	l := newLedger(t)
	_, err := l.Submit(context.Background(), "transfer", ledger.Args{ID: 1}, admin)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
	assert.Equal(t, ledger.KindInvalidArgument, ledger.KindOf(err))
}

func TestSubmit_ReceiptCarriesEvent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	rcpt, err := l.Submit(ctx, ledger.OpCreate, ledger.Args{ID: 3, Content: "c"}, "0xAdmin")
	require.NoError(t, err)
	assert.Equal(t, ledger.OpCreate, rcpt.Operation)
	require.NotNil(t, rcpt.Record)
	assert.Equal(t, admin, rcpt.Record.Owner)
	require.NotNil(t, rcpt.Event)
	assert.Equal(t, models.EventRecordCreated, rcpt.Event.Kind)
	assert.Equal(t, int64(3), rcpt.Event.RecordID)
	assert.Positive(t, rcpt.Event.Seq)
}

func TestEvents_History(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Events(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = l.Create(ctx, 1, "a", admin)
	require.NoError(t, err)
	_, err = l.Update(ctx, 1, "b", admin)
	require.NoError(t, err)
	_, err = l.IssueNFT(ctx, 1, holder, admin)
	require.NoError(t, err)
	require.NoError(t, l.Erase(ctx, 1, admin))
	_, err = l.Update(ctx, 1, "rejected", admin)
	require.Error(t, err)

	events, err := l.Events(ctx, 1)
	require.NoError(t, err)
	kinds := make([]models.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
		if i > 0 {
			assert.Greater(t, ev.Seq, events[i-1].Seq)
		}
	}
	assert.Equal(t, []models.EventKind{
		models.EventRecordCreated,
		models.EventRecordUpdated,
		models.EventNFTIssued,
		models.EventRecordErased,
	}, kinds)
	assert.Equal(t, "b", events[3].Content)
	assert.Equal(t, holder, events[2].Subject)
}

func TestScenario_Lifecycle(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Create(ctx, 1, "Original content", admin)
	require.NoError(t, err)
	rec, err := l.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Original content", rec.Content)
	assert.False(t, rec.Erased)

	_, err = l.Update(ctx, 1, "Updated content", admin)
	require.NoError(t, err)
	rec, err = l.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Updated content", rec.Content)
	assert.False(t, rec.Erased)
	assert.True(t, rec.UpdatedAt.After(rec.CreatedAt))

	require.NoError(t, l.Erase(ctx, 1, admin))
	rec, err = l.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Updated content", rec.Content)
	assert.True(t, rec.Erased)

	// issuance after erasure is refused before the binding is considered
	_, err = l.IssueNFT(ctx, 1, holder, admin)
	assert.ErrorIs(t, err, ledger.ErrErased)
}

func TestScenario_IssueBeforeErase(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Create(ctx, 1, "Original content", admin)
	require.NoError(t, err)
	_, err = l.IssueNFT(ctx, 1, holder, admin)
	require.NoError(t, err)
	_, err = l.IssueNFT(ctx, 1, "0xother", admin)
	assert.ErrorIs(t, err, ledger.ErrAlreadyIssued)
	require.NoError(t, l.Erase(ctx, 1, admin))

	// the binding survives erasure
	b, err := l.Binding(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, holder, b.Holder)
}

func TestScenario_RecorderRevoked(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	x := models.Address("0xx")

	require.NoError(t, l.GrantRole(ctx, models.RoleRecorder, x, admin))
	_, err := l.Create(ctx, 2, "c", x)
	require.NoError(t, err)
	require.NoError(t, l.RevokeRole(ctx, models.RoleRecorder, x, admin))
	_, err = l.Update(ctx, 2, "c2", x)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	rec, err := l.Retrieve(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "c", rec.Content)
	assert.Equal(t, x, rec.Owner)
}

func TestConcurrentCreate_ExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memory.New())
	require.NoError(t, l.Bootstrap(ctx, admin))

	const workers = 32
	var wg sync.WaitGroup
	var wins, dupes atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Create(ctx, 1, fmt.Sprintf("writer %d", i), admin)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ledger.ErrAlreadyExists):
				dupes.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(workers-1), dupes.Load())
}

func TestConcurrentIssue_ExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memory.New())
	require.NoError(t, l.Bootstrap(ctx, admin))
	_, err := l.Create(ctx, 1, "c", admin)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.IssueNFT(ctx, 1, models.Address(fmt.Sprintf("0xh%d", i)), admin); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ledger.ErrorKind(""), ledger.KindOf(nil))
	assert.Equal(t, ledger.KindInternal, ledger.KindOf(errors.New("disk on fire")))
	wrapped := fmt.Errorf("outer: %w", fmt.Errorf("%w: record 1", ledger.ErrAlreadyIssued))
	assert.Equal(t, ledger.KindAlreadyIssued, ledger.KindOf(wrapped))
}
