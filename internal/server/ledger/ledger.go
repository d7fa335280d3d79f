// Package ledger implements the record lifecycle state machine: records keyed
// by caller-assigned ids, mutated only by ADMIN or RECORDER members, erased
// irreversibly, and bound to at most one NFT holder each.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solidify/internal/shared/models"
)

// Ledger serializes every mutation through one mutex and applies it inside a
// single Store transaction. Reads bypass the mutex.
type Ledger struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Ledger)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.log = logger.With().Str("component", "ledger").Logger() }
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Bootstrap grants ADMIN to the initializing account without a caller check.
// It is a no-op when the account already holds ADMIN.
func (l *Ledger) Bootstrap(ctx context.Context, admin models.Address) error {
	admin = admin.Normalize()
	if admin == "" {
		return fmt.Errorf("%w: empty admin address", ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Update(ctx, func(tx Tx) error {
		has, err := tx.HasRole(models.RoleAdmin, admin)
		if err != nil || has {
			return err
		}
		if err := tx.SetRole(models.RoleAdmin, admin, true); err != nil {
			return err
		}
		_, err = tx.AppendEvent(models.Event{
			Kind:    models.EventRoleGranted,
			Subject: admin,
			Role:    models.RoleAdmin,
			At:      l.now().UTC(),
		})
		return err
	})
}

func (l *Ledger) Create(ctx context.Context, id int64, content string, caller models.Address) (models.Record, error) {
	rcpt, err := l.Submit(ctx, OpCreate, Args{ID: id, Content: content}, caller)
	if err != nil {
		return models.Record{}, err
	}
	return *rcpt.Record, nil
}

func (l *Ledger) Update(ctx context.Context, id int64, content string, caller models.Address) (models.Record, error) {
	rcpt, err := l.Submit(ctx, OpUpdate, Args{ID: id, Content: content}, caller)
	if err != nil {
		return models.Record{}, err
	}
	return *rcpt.Record, nil
}

func (l *Ledger) Erase(ctx context.Context, id int64, caller models.Address) error {
	_, err := l.Submit(ctx, OpErase, Args{ID: id}, caller)
	return err
}

func (l *Ledger) IssueNFT(ctx context.Context, id int64, holder, caller models.Address) (models.NFTBinding, error) {
	rcpt, err := l.Submit(ctx, OpIssueNFT, Args{ID: id, Holder: holder}, caller)
	if err != nil {
		return models.NFTBinding{}, err
	}
	return *rcpt.Binding, nil
}

func (l *Ledger) GrantRole(ctx context.Context, role models.Role, account, caller models.Address) error {
	_, err := l.Submit(ctx, OpGrantRole, Args{Role: role, Account: account}, caller)
	return err
}

func (l *Ledger) RevokeRole(ctx context.Context, role models.Role, account, caller models.Address) error {
	_, err := l.Submit(ctx, OpRevokeRole, Args{Role: role, Account: account}, caller)
	return err
}

// Retrieve returns the record as stored. Erased records are returned with
// Erased set; only ids that were never created fail with ErrNotFound.
func (l *Ledger) Retrieve(ctx context.Context, id int64) (models.Record, error) {
	var rec models.Record
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	return rec, err
}

// Query is the read path used by the retrieve handler.
func (l *Ledger) Query(ctx context.Context, id int64) (models.Record, error) {
	return l.Retrieve(ctx, id)
}

func (l *Ledger) HasRole(ctx context.Context, role models.Role, account models.Address) (bool, error) {
	if !validRole(role) {
		return false, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}
	var has bool
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		has, err = tx.HasRole(role, account.Normalize())
		return err
	})
	return has, err
}

// Binding returns the NFT binding of a record, ErrNotIssued when the record
// exists without one.
func (l *Ledger) Binding(ctx context.Context, id int64) (models.NFTBinding, error) {
	var b models.NFTBinding
	err := l.store.View(ctx, func(tx Tx) error {
		if _, err := getRecord(tx, id); err != nil {
			return err
		}
		var ok bool
		var err error
		b, ok, err = tx.GetBinding(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: record %d", ErrNotIssued, id)
		}
		return nil
	})
	return b, err
}

// Events lists the history of a record. recordID 0 lists role changes.
func (l *Ledger) Events(ctx context.Context, recordID int64) ([]models.Event, error) {
	var out []models.Event
	err := l.store.View(ctx, func(tx Tx) error {
		if recordID != 0 {
			if _, err := getRecord(tx, recordID); err != nil {
				return err
			}
		}
		var err error
		out, err = tx.ListEvents(recordID)
		return err
	})
	return out, err
}

func getRecord(tx Tx, id int64) (models.Record, error) {
	rec, ok, err := tx.GetRecord(id)
	if err != nil {
		return models.Record{}, err
	}
	if !ok {
		return models.Record{}, fmt.Errorf("%w: record %d", ErrNotFound, id)
	}
	return rec, nil
}

func validRole(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleRecorder
}

// requireAny fails with ErrUnauthorized unless caller holds one of roles.
func requireAny(tx Tx, caller models.Address, roles ...models.Role) error {
	if caller != "" {
		for _, role := range roles {
			has, err := tx.HasRole(role, caller)
			if err != nil {
				return err
			}
			if has {
				return nil
			}
		}
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return fmt.Errorf("%w: account %q is missing role %s", ErrUnauthorized, caller, strings.Join(names, " or "))
}
