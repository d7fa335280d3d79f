package ledger

import (
	"context"

	"solidify/internal/shared/models"
)

// Store is the persistence behind a Ledger. Update must be all-or-nothing:
// when fn returns an error none of its writes may be visible afterwards.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
}

// Tx is the view of a Store inside one transaction. Lookups report absence
// through the boolean, never through an error.
type Tx interface {
	GetRecord(id int64) (models.Record, bool, error)
	PutRecord(rec models.Record) error

	GetBinding(recordID int64) (models.NFTBinding, bool, error)
	PutBinding(b models.NFTBinding) error

	HasRole(role models.Role, account models.Address) (bool, error)
	SetRole(role models.Role, account models.Address, member bool) error

	// AppendEvent assigns ev.Seq and returns the stored event.
	AppendEvent(ev models.Event) (models.Event, error)
	// ListEvents returns events for recordID in Seq order.
	ListEvents(recordID int64) ([]models.Event, error)
}
