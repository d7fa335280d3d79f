package ledger

import (
	"context"
	"fmt"

	"solidify/internal/shared/models"
)

type Operation string

const (
	OpCreate     Operation = "create"
	OpUpdate     Operation = "update"
	OpErase      Operation = "erase"
	OpIssueNFT   Operation = "issueNFT"
	OpGrantRole  Operation = "grantRole"
	OpRevokeRole Operation = "revokeRole"
)

// Args carries the operands of a Submit call. Each operation reads only the
// fields it needs.
type Args struct {
	ID      int64
	Content string
	Holder  models.Address
	Role    models.Role
	Account models.Address
}

// Receipt describes a completed mutation. Event is nil when a role call did
// not change membership.
type Receipt struct {
	Operation Operation          `json:"operation"`
	Record    *models.Record     `json:"record,omitempty"`
	Binding   *models.NFTBinding `json:"binding,omitempty"`
	Event     *models.Event      `json:"event,omitempty"`
}

// Submit applies one mutation atomically on behalf of caller.
func (l *Ledger) Submit(ctx context.Context, op Operation, args Args, caller models.Address) (Receipt, error) {
	caller = caller.Normalize()
	l.mu.Lock()
	defer l.mu.Unlock()

	var rcpt Receipt
	err := l.store.Update(ctx, func(tx Tx) error {
		var err error
		rcpt, err = l.apply(tx, op, args, caller)
		return err
	})
	if err != nil {
		l.log.Debug().Err(err).
			Str("op", string(op)).
			Int64("record_id", args.ID).
			Str("caller", caller.String()).
			Str("kind", string(KindOf(err))).
			Msg("mutation rejected")
		return Receipt{}, err
	}
	l.log.Debug().
		Str("op", string(op)).
		Int64("record_id", args.ID).
		Str("caller", caller.String()).
		Bool("changed", rcpt.Event != nil).
		Msg("mutation applied")
	return rcpt, nil
}

func (l *Ledger) apply(tx Tx, op Operation, args Args, caller models.Address) (Receipt, error) {
	switch op {
	case OpCreate, OpUpdate, OpErase, OpIssueNFT:
		if err := requireAny(tx, caller, models.RoleAdmin, models.RoleRecorder); err != nil {
			return Receipt{}, err
		}
	case OpGrantRole, OpRevokeRole:
		if err := requireAny(tx, caller, models.RoleAdmin); err != nil {
			return Receipt{}, err
		}
	default:
		return Receipt{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidArgument, op)
	}

	rcpt := Receipt{Operation: op}
	var err error
	switch op {
	case OpCreate:
		err = l.create(tx, args, caller, &rcpt)
	case OpUpdate:
		err = l.update(tx, args, caller, &rcpt)
	case OpErase:
		err = l.erase(tx, args, caller, &rcpt)
	case OpIssueNFT:
		err = l.issueNFT(tx, args, caller, &rcpt)
	case OpGrantRole:
		err = l.setRole(tx, args, caller, true, &rcpt)
	case OpRevokeRole:
		err = l.setRole(tx, args, caller, false, &rcpt)
	}
	if err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

func (l *Ledger) create(tx Tx, args Args, caller models.Address, rcpt *Receipt) error {
	if args.ID <= 0 {
		return fmt.Errorf("%w: record id must be positive, got %d", ErrInvalidArgument, args.ID)
	}
	_, exists, err := tx.GetRecord(args.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: record %d", ErrAlreadyExists, args.ID)
	}
	now := l.now().UTC()
	rec := models.Record{
		ID:        args.ID,
		Content:   args.Content,
		CreatedAt: now,
		UpdatedAt: now,
		Owner:     caller,
	}
	if err := tx.PutRecord(rec); err != nil {
		return err
	}
	rcpt.Record = &rec
	return l.emit(tx, rcpt, models.Event{
		Kind:     models.EventRecordCreated,
		RecordID: rec.ID,
		Content:  rec.Content,
		Actor:    caller,
		At:       now,
	})
}

func (l *Ledger) update(tx Tx, args Args, caller models.Address, rcpt *Receipt) error {
	rec, err := getRecord(tx, args.ID)
	if err != nil {
		return err
	}
	if rec.Erased {
		return fmt.Errorf("%w: record %d", ErrErased, rec.ID)
	}
	now := l.now().UTC()
	if now.Before(rec.CreatedAt) {
		now = rec.CreatedAt
	}
	rec.Content = args.Content
	rec.UpdatedAt = now
	if err := tx.PutRecord(rec); err != nil {
		return err
	}
	rcpt.Record = &rec
	return l.emit(tx, rcpt, models.Event{
		Kind:     models.EventRecordUpdated,
		RecordID: rec.ID,
		Content:  rec.Content,
		Actor:    caller,
		At:       now,
	})
}

func (l *Ledger) erase(tx Tx, args Args, caller models.Address, rcpt *Receipt) error {
	rec, err := getRecord(tx, args.ID)
	if err != nil {
		return err
	}
	if rec.Erased {
		return fmt.Errorf("%w: record %d", ErrAlreadyErased, rec.ID)
	}
	rec.Erased = true
	if err := tx.PutRecord(rec); err != nil {
		return err
	}
	rcpt.Record = &rec
	return l.emit(tx, rcpt, models.Event{
		Kind:     models.EventRecordErased,
		RecordID: rec.ID,
		Content:  rec.Content,
		Actor:    caller,
		At:       l.now().UTC(),
	})
}

func (l *Ledger) issueNFT(tx Tx, args Args, caller models.Address, rcpt *Receipt) error {
	holder := args.Holder.Normalize()
	if holder == "" {
		return fmt.Errorf("%w: empty holder address", ErrInvalidArgument)
	}
	rec, err := getRecord(tx, args.ID)
	if err != nil {
		return err
	}
	if rec.Erased {
		return fmt.Errorf("%w: record %d", ErrErased, rec.ID)
	}
	_, issued, err := tx.GetBinding(rec.ID)
	if err != nil {
		return err
	}
	if issued {
		return fmt.Errorf("%w: record %d", ErrAlreadyIssued, rec.ID)
	}
	b := models.NFTBinding{
		RecordID: rec.ID,
		Holder:   holder,
		Issuer:   caller,
		IssuedAt: l.now().UTC(),
	}
	if err := tx.PutBinding(b); err != nil {
		return err
	}
	rcpt.Record = &rec
	rcpt.Binding = &b
	return l.emit(tx, rcpt, models.Event{
		Kind:     models.EventNFTIssued,
		RecordID: rec.ID,
		Actor:    caller,
		Subject:  holder,
		At:       b.IssuedAt,
	})
}

func (l *Ledger) setRole(tx Tx, args Args, caller models.Address, member bool, rcpt *Receipt) error {
	if !validRole(args.Role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, args.Role)
	}
	account := args.Account.Normalize()
	if account == "" {
		return fmt.Errorf("%w: empty account address", ErrInvalidArgument)
	}
	has, err := tx.HasRole(args.Role, account)
	if err != nil {
		return err
	}
	if has == member {
		return nil
	}
	if err := tx.SetRole(args.Role, account, member); err != nil {
		return err
	}
	kind := models.EventRoleGranted
	if !member {
		kind = models.EventRoleRevoked
	}
	return l.emit(tx, rcpt, models.Event{
		Kind:    kind,
		Actor:   caller,
		Subject: account,
		Role:    args.Role,
		At:      l.now().UTC(),
	})
}

func (l *Ledger) emit(tx Tx, rcpt *Receipt, ev models.Event) error {
	stored, err := tx.AppendEvent(ev)
	if err != nil {
		return err
	}
	rcpt.Event = &stored
	return nil
}
