package badgerkv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solidify/internal/server/ledger"
	"solidify/internal/server/repository"
	"solidify/internal/shared/models"
)

func open(t *testing.T, dir string) *Repository {
	t.Helper()
	repo, err := New(dir, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestLedgerOnBadger_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo := open(t, dir)
	l := ledger.New(repo)
	require.NoError(t, l.Bootstrap(ctx, "0xadmin"))
	require.NoError(t, l.GrantRole(ctx, models.RoleRecorder, "0xr", "0xadmin"))
	_, err := l.Create(ctx, 1, "Original content", "0xr")
	require.NoError(t, err)
	_, err = l.Update(ctx, 1, "Updated content", "0xr")
	require.NoError(t, err)
	_, err = l.IssueNFT(ctx, 1, "0xh", "0xr")
	require.NoError(t, err)
	require.NoError(t, l.Erase(ctx, 1, "0xr"))
	require.NoError(t, repo.Close())

	repo = open(t, dir)
	t.Cleanup(func() { _ = repo.Close() })
	l = ledger.New(repo)

	rec, err := l.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Updated content", rec.Content)
	assert.True(t, rec.Erased)
	assert.Equal(t, models.Address("0xr"), rec.Owner)
	assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))

	b, err := l.Binding(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.Address("0xh"), b.Holder)

	_, err = l.Create(ctx, 1, "again", "0xadmin")
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	has, err := l.HasRole(ctx, models.RoleRecorder, "0xr")
	require.NoError(t, err)
	assert.True(t, has)

	evs, err := l.Events(ctx, 1)
	require.NoError(t, err)
	require.Len(t, evs, 4)
	assert.Equal(t, models.EventRecordCreated, evs[0].Kind)
	assert.Equal(t, models.EventRecordErased, evs[3].Kind)

	roleEvents, err := l.Events(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, roleEvents, 2)
	assert.Less(t, roleEvents[0].Seq, evs[0].Seq)
}

func TestUpdate_DiscardsOnError(t *testing.T) {
	repo := open(t, t.TempDir())
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Update(ctx, func(tx ledger.Tx) error {
		if err := tx.PutRecord(models.Record{ID: 3, Content: "x", CreatedAt: time.Now(), UpdatedAt: time.Now()}); err != nil {
			return err
		}
		if err := tx.SetRole(models.RoleAdmin, "0xa", true); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, repo.View(ctx, func(tx ledger.Tx) error {
		_, ok, err := tx.GetRecord(3)
		require.NoError(t, err)
		assert.False(t, ok)
		has, err := tx.HasRole(models.RoleAdmin, "0xa")
		require.NoError(t, err)
		assert.False(t, has)
		return nil
	}))
}

func TestPutBinding_RefusesOverwrite(t *testing.T) {
	repo := open(t, t.TempDir())
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()
	b := models.NFTBinding{RecordID: 1, Holder: "0xh", IssuedAt: time.Now()}

	require.NoError(t, repo.Update(ctx, func(tx ledger.Tx) error { return tx.PutBinding(b) }))
	b.Holder = "0xother"
	assert.Error(t, repo.Update(ctx, func(tx ledger.Tx) error { return tx.PutBinding(b) }))
}

func TestEventsPerRecordDoNotMix(t *testing.T) {
	repo := open(t, t.TempDir())
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	// record 1 and record 10 share a decimal prefix; the padded key keeps them apart
	require.NoError(t, repo.Update(ctx, func(tx ledger.Tx) error {
		for _, id := range []int64{1, 10, 1} {
			if _, err := tx.AppendEvent(models.Event{Kind: models.EventRecordUpdated, RecordID: id, At: time.Now()}); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, repo.View(ctx, func(tx ledger.Tx) error {
		evs, err := tx.ListEvents(1)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, []int64{1, 3}, []int64{evs[0].Seq, evs[1].Seq})
		return nil
	}))
}

func TestAccounts(t *testing.T) {
	repo := open(t, t.TempDir())
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	acct, err := repo.CreateAccount(ctx, "0xa", []byte("hash"))
	require.NoError(t, err)
	assert.Equal(t, models.Address("0xa"), acct.Address)

	_, err = repo.CreateAccount(ctx, "0xa", []byte("other"))
	assert.ErrorIs(t, err, repository.ErrAccountExists)

	got, hash, err := repo.GetAccount(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, []byte("hash"), hash)
	assert.True(t, got.CreatedAt.Equal(acct.CreatedAt))

	_, _, err = repo.GetAccount(ctx, "0xmissing")
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestCanceledContext(t *testing.T) {
	repo := open(t, t.TempDir())
	t.Cleanup(func() { _ = repo.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := repo.Update(ctx, func(ledger.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefreshTokensAreSingleUse(t *testing.T) {
	dir := t.TempDir()
	repo := open(t, dir)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).UTC()
	require.NoError(t, repo.SaveRefreshToken(ctx, "h1", "0xa", exp))
	require.NoError(t, repo.Close())

	repo = open(t, dir)
	t.Cleanup(func() { _ = repo.Close() })
	addr, gotExp, err := repo.ConsumeRefreshToken(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, models.Address("0xa"), addr)
	assert.True(t, gotExp.Equal(exp))

	_, _, err = repo.ConsumeRefreshToken(ctx, "h1")
	assert.ErrorIs(t, err, repository.ErrRefreshTokenNotFound)
}
