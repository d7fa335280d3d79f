// Package badgerkv stores ledger state and accounts in a badger key-value
// database. Values are msgpack encoded.
package badgerkv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/rs/zerolog"
	"github.com/ugorji/go/codec"

	"solidify/internal/server/ledger"
	"solidify/internal/server/repository"
	"solidify/internal/shared/models"
)

var (
	mh codec.MsgpackHandle

	eventSeqKey = []byte("meta/event_seq")
)

func recordKey(id int64) []byte { return []byte(fmt.Sprintf("rec/%020d", id)) }
func bindingKey(id int64) []byte { return []byte(fmt.Sprintf("nft/%020d", id)) }
func eventPrefix(recordID int64) []byte { return []byte(fmt.Sprintf("evt/%020d/", recordID)) }
func eventKey(recordID, seq int64) []byte { return []byte(fmt.Sprintf("evt/%020d/%020d", recordID, seq)) }
func accountKey(a models.Address) []byte { return []byte("acct/" + string(a)) }
func refreshKey(tokenHash string) []byte { return []byte("rtok/" + tokenHash) }
func roleKey(role models.Role, a models.Address) []byte {
	return []byte("role/" + string(role) + "/" + string(a))
}

type recordValue struct {
	ID        int64  `codec:"id"`
	Content   string `codec:"content"`
	Owner     string `codec:"owner"`
	Erased    bool   `codec:"erased"`
	CreatedAt int64  `codec:"created_at"`
	UpdatedAt int64  `codec:"updated_at"`
}

type bindingValue struct {
	RecordID int64  `codec:"record_id"`
	Holder   string `codec:"holder"`
	Issuer   string `codec:"issuer"`
	IssuedAt int64  `codec:"issued_at"`
}

type eventValue struct {
	Seq      int64  `codec:"seq"`
	Kind     string `codec:"kind"`
	RecordID int64  `codec:"record_id"`
	Content  string `codec:"content"`
	Actor    string `codec:"actor"`
	Subject  string `codec:"subject"`
	Role     string `codec:"role"`
	At       int64  `codec:"at"`
}

type accountValue struct {
	PasswordHash []byte `codec:"password_hash"`
	CreatedAt    int64  `codec:"created_at"`
}

type refreshValue struct {
	Address   string `codec:"address"`
	ExpiresAt int64  `codec:"expires_at"`
}

type Repository struct {
	db *badger.DB
}

var _ ledger.Store = (*Repository)(nil)

// New opens (or creates) the database in dir. Badger's own logging is
// forwarded to logger.
func New(dir string, logger zerolog.Logger) (*Repository, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.With().Str("component", "badger").Logger()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) View(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.View(func(txn *badger.Txn) error { return fn(&kvTx{txn: txn}) })
}

// Update runs fn in a read-write badger transaction; badger discards the
// transaction when fn fails.
func (r *Repository) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error { return fn(&kvTx{txn: txn}) })
}

type kvTx struct {
	txn *badger.Txn
}

// get decodes the value under key into v; ok is false when the key is absent.
func (t *kvTx) get(key []byte, v any) (bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if v == nil {
		return true, nil
	}
	return true, decode(data, v)
}

func (t *kvTx) put(key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return t.txn.Set(key, data)
}

func (t *kvTx) GetRecord(id int64) (models.Record, bool, error) {
	var v recordValue
	ok, err := t.get(recordKey(id), &v)
	if err != nil || !ok {
		return models.Record{}, false, err
	}
	return models.Record{
		ID:        v.ID,
		Content:   v.Content,
		Owner:     models.Address(v.Owner),
		Erased:    v.Erased,
		CreatedAt: fromNanos(v.CreatedAt),
		UpdatedAt: fromNanos(v.UpdatedAt),
	}, true, nil
}

func (t *kvTx) PutRecord(rec models.Record) error {
	return t.put(recordKey(rec.ID), recordValue{
		ID:        rec.ID,
		Content:   rec.Content,
		Owner:     string(rec.Owner),
		Erased:    rec.Erased,
		CreatedAt: rec.CreatedAt.UnixNano(),
		UpdatedAt: rec.UpdatedAt.UnixNano(),
	})
}

func (t *kvTx) GetBinding(recordID int64) (models.NFTBinding, bool, error) {
	var v bindingValue
	ok, err := t.get(bindingKey(recordID), &v)
	if err != nil || !ok {
		return models.NFTBinding{}, false, err
	}
	return models.NFTBinding{
		RecordID: v.RecordID,
		Holder:   models.Address(v.Holder),
		Issuer:   models.Address(v.Issuer),
		IssuedAt: fromNanos(v.IssuedAt),
	}, true, nil
}

func (t *kvTx) PutBinding(b models.NFTBinding) error {
	exists, err := t.get(bindingKey(b.RecordID), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("badger: binding for record %d already stored", b.RecordID)
	}
	return t.put(bindingKey(b.RecordID), bindingValue{
		RecordID: b.RecordID,
		Holder:   string(b.Holder),
		Issuer:   string(b.Issuer),
		IssuedAt: b.IssuedAt.UnixNano(),
	})
}

func (t *kvTx) HasRole(role models.Role, account models.Address) (bool, error) {
	return t.get(roleKey(role, account), nil)
}

func (t *kvTx) SetRole(role models.Role, account models.Address, member bool) error {
	if member {
		return t.txn.Set(roleKey(role, account), []byte{1})
	}
	return t.txn.Delete(roleKey(role, account))
}

func (t *kvTx) AppendEvent(ev models.Event) (models.Event, error) {
	var seq int64
	item, err := t.txn.Get(eventSeqKey)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return models.Event{}, err
	default:
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return models.Event{}, err
		}
		seq = int64(binary.BigEndian.Uint64(raw))
	}
	seq++
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(seq))
	if err := t.txn.Set(eventSeqKey, raw[:]); err != nil {
		return models.Event{}, err
	}
	ev.Seq = seq
	err = t.put(eventKey(ev.RecordID, seq), eventValue{
		Seq:      ev.Seq,
		Kind:     string(ev.Kind),
		RecordID: ev.RecordID,
		Content:  ev.Content,
		Actor:    string(ev.Actor),
		Subject:  string(ev.Subject),
		Role:     string(ev.Role),
		At:       ev.At.UnixNano(),
	})
	if err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

// ListEvents relies on the zero-padded seq in the key for ordering.
func (t *kvTx) ListEvents(recordID int64) ([]models.Event, error) {
	prefix := eventPrefix(recordID)
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	var out []models.Event
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var v eventValue
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		out = append(out, models.Event{
			Seq:      v.Seq,
			Kind:     models.EventKind(v.Kind),
			RecordID: v.RecordID,
			Content:  v.Content,
			Actor:    models.Address(v.Actor),
			Subject:  models.Address(v.Subject),
			Role:     models.Role(v.Role),
			At:       fromNanos(v.At),
		})
	}
	return out, nil
}

// Accounts

func (r *Repository) CreateAccount(ctx context.Context, address models.Address, passwordHash []byte) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}
	now := time.Now().UTC()
	err := r.db.Update(func(txn *badger.Txn) error {
		t := &kvTx{txn: txn}
		exists, err := t.get(accountKey(address), nil)
		if err != nil {
			return err
		}
		if exists {
			return repository.ErrAccountExists
		}
		return t.put(accountKey(address), accountValue{PasswordHash: passwordHash, CreatedAt: now.UnixNano()})
	})
	if err != nil {
		return models.Account{}, err
	}
	return models.Account{Address: address, CreatedAt: fromNanos(now.UnixNano())}, nil
}

func (r *Repository) GetAccount(ctx context.Context, address models.Address) (models.Account, []byte, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, nil, err
	}
	var v accountValue
	err := r.db.View(func(txn *badger.Txn) error {
		ok, err := (&kvTx{txn: txn}).get(accountKey(address), &v)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		return models.Account{}, nil, err
	}
	return models.Account{Address: address, CreatedAt: fromNanos(v.CreatedAt)}, v.PasswordHash, nil
}

// Refresh tokens

func (r *Repository) SaveRefreshToken(ctx context.Context, tokenHash string, address models.Address, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(refreshValue{Address: string(address), ExpiresAt: expiresAt.UTC().UnixNano()})
	if err != nil {
		return err
	}
	// Expired tokens are dropped by badger on their own.
	entry := badger.NewEntry(refreshKey(tokenHash), data).WithTTL(time.Until(expiresAt))
	return r.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(entry) })
}

// ConsumeRefreshToken deletes the token and returns what it was issued for.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, tokenHash string) (models.Address, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", time.Time{}, err
	}
	var v refreshValue
	err := r.db.Update(func(txn *badger.Txn) error {
		ok, err := (&kvTx{txn: txn}).get(refreshKey(tokenHash), &v)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrRefreshTokenNotFound
		}
		return txn.Delete(refreshKey(tokenHash))
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return models.Address(v.Address), fromNanos(v.ExpiresAt), nil
}

func encode(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, &mh).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func decode(data []byte, v any) error {
	return codec.NewDecoderBytes(data, &mh).Decode(v)
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct{ log zerolog.Logger }

func (l badgerLogger) Errorf(f string, v ...interface{}) { l.log.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{}) { l.log.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{}) { l.log.Debug().Msgf(f, v...) }
