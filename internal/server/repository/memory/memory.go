// Package memory is an in-process backend for the ledger and accounts.
// State is lost on exit.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"solidify/internal/server/ledger"
	"solidify/internal/server/repository"
	"solidify/internal/shared/models"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type roleKey struct {
	role    models.Role
	account models.Address
}

type account struct {
	acct models.Account
	hash []byte
}

type Store struct {
	mu       sync.RWMutex
	records  map[int64]models.Record
	bindings map[int64]models.NFTBinding
	roles    map[roleKey]bool
	events   []models.Event
	accounts map[models.Address]account
	refresh  map[string]refreshToken
}

type refreshToken struct {
	address   models.Address
	expiresAt time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records:  make(map[int64]models.Record),
		bindings: make(map[int64]models.NFTBinding),
		roles:    make(map[roleKey]bool),
		accounts: make(map[models.Address]account),
		refresh:  make(map[string]refreshToken),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) View(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.newTx(false))
}

// Update stages writes in the tx overlay and merges them only when fn
// succeeds.
func (s *Store) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.newTx(true)
	if err := fn(tx); err != nil {
		return err
	}
	for id, rec := range tx.records {
		s.records[id] = rec
	}
	for id, b := range tx.bindings {
		s.bindings[id] = b
	}
	for k, member := range tx.roles {
		if member {
			s.roles[k] = true
		} else {
			delete(s.roles, k)
		}
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *Store) newTx(writable bool) *tx {
	t := &tx{s: s, writable: writable}
	if writable {
		t.records = make(map[int64]models.Record)
		t.bindings = make(map[int64]models.NFTBinding)
		t.roles = make(map[roleKey]bool)
	}
	return t
}

type tx struct {
	s        *Store
	writable bool
	records  map[int64]models.Record
	bindings map[int64]models.NFTBinding
	roles    map[roleKey]bool
	events   []models.Event
}

func (t *tx) GetRecord(id int64) (models.Record, bool, error) {
	if rec, ok := t.records[id]; ok {
		return rec, true, nil
	}
	rec, ok := t.s.records[id]
	return rec, ok, nil
}

func (t *tx) PutRecord(rec models.Record) error {
	if !t.writable {
		return errReadOnly
	}
	t.records[rec.ID] = rec
	return nil
}

func (t *tx) GetBinding(recordID int64) (models.NFTBinding, bool, error) {
	if b, ok := t.bindings[recordID]; ok {
		return b, true, nil
	}
	b, ok := t.s.bindings[recordID]
	return b, ok, nil
}

func (t *tx) PutBinding(b models.NFTBinding) error {
	if !t.writable {
		return errReadOnly
	}
	t.bindings[b.RecordID] = b
	return nil
}

func (t *tx) HasRole(role models.Role, acct models.Address) (bool, error) {
	k := roleKey{role, acct}
	if member, ok := t.roles[k]; ok {
		return member, nil
	}
	return t.s.roles[k], nil
}

func (t *tx) SetRole(role models.Role, acct models.Address, member bool) error {
	if !t.writable {
		return errReadOnly
	}
	t.roles[roleKey{role, acct}] = member
	return nil
}

func (t *tx) AppendEvent(ev models.Event) (models.Event, error) {
	if !t.writable {
		return models.Event{}, errReadOnly
	}
	ev.Seq = int64(len(t.s.events) + len(t.events) + 1)
	t.events = append(t.events, ev)
	return ev, nil
}

func (t *tx) ListEvents(recordID int64) ([]models.Event, error) {
	var out []models.Event
	for _, ev := range t.s.events {
		if ev.RecordID == recordID {
			out = append(out, ev)
		}
	}
	for _, ev := range t.events {
		if ev.RecordID == recordID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Accounts

func (s *Store) CreateAccount(_ context.Context, address models.Address, passwordHash []byte) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[address]; ok {
		return models.Account{}, repository.ErrAccountExists
	}
	acct := models.Account{Address: address, CreatedAt: time.Now().UTC()}
	s.accounts[address] = account{acct: acct, hash: append([]byte(nil), passwordHash...)}
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, address models.Address) (models.Account, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[address]
	if !ok {
		return models.Account{}, nil, repository.ErrAccountNotFound
	}
	return a.acct, a.hash, nil
}

// Refresh tokens

func (s *Store) SaveRefreshToken(_ context.Context, tokenHash string, address models.Address, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = refreshToken{address: address, expiresAt: expiresAt.UTC()}
	return nil
}

func (s *Store) ConsumeRefreshToken(_ context.Context, tokenHash string) (models.Address, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[tokenHash]
	if !ok {
		return "", time.Time{}, repository.ErrRefreshTokenNotFound
	}
	delete(s.refresh, tokenHash)
	return rt.address, rt.expiresAt, nil
}
