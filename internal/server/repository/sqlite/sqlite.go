package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"solidify/internal/server/ledger"
	"solidify/internal/server/repository"
	"solidify/internal/shared/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY,
	content TEXT NOT NULL,
	owner TEXT NOT NULL,
	erased INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS nft_bindings (
	record_id INTEGER PRIMARY KEY,
	holder TEXT NOT NULL,
	issuer TEXT NOT NULL,
	issued_at INTEGER NOT NULL,
	FOREIGN KEY(record_id) REFERENCES records(id)
);
CREATE TABLE IF NOT EXISTS role_members (
	role TEXT NOT NULL,
	address TEXT NOT NULL,
	PRIMARY KEY(role, address)
);
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	record_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	actor TEXT NOT NULL,
	subject TEXT NOT NULL,
	role TEXT NOT NULL,
	at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_record_id ON events(record_id, seq);
CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	password_hash BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS refresh_tokens (
	token_hash TEXT PRIMARY KEY,
	address TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// Repository stores ledger state and accounts in sqlite. Timestamps are
// kept as unix nanoseconds.
type Repository struct {
	db *sql.DB
}

var _ ledger.Store = (*Repository)(nil)

func New(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection serializes transactions; memory DSNs live as long
	// as it stays open.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) View(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&sqlTx{ctx: ctx, tx: tx})
}

func (r *Repository) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqlTx) GetRecord(id int64) (models.Record, bool, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT id, content, owner, erased, created_at, updated_at FROM records WHERE id = ?`, id)
	var rec models.Record
	var owner string
	var created, updated int64
	if err := row.Scan(&rec.ID, &rec.Content, &owner, &rec.Erased, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Record{}, false, nil
		}
		return models.Record{}, false, err
	}
	rec.Owner = models.Address(owner)
	rec.CreatedAt = fromNanos(created)
	rec.UpdatedAt = fromNanos(updated)
	return rec, true, nil
}

func (t *sqlTx) PutRecord(rec models.Record) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO records(id, content, owner, erased, created_at, updated_at)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content,
			erased=excluded.erased,
			updated_at=excluded.updated_at
	`, rec.ID, rec.Content, string(rec.Owner), rec.Erased, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	return err
}

func (t *sqlTx) GetBinding(recordID int64) (models.NFTBinding, bool, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT record_id, holder, issuer, issued_at FROM nft_bindings WHERE record_id = ?`, recordID)
	var b models.NFTBinding
	var holder, issuer string
	var issued int64
	if err := row.Scan(&b.RecordID, &holder, &issuer, &issued); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NFTBinding{}, false, nil
		}
		return models.NFTBinding{}, false, err
	}
	b.Holder = models.Address(holder)
	b.Issuer = models.Address(issuer)
	b.IssuedAt = fromNanos(issued)
	return b, true, nil
}

// PutBinding never overwrites: a second binding for the same record fails
// on the primary key.
func (t *sqlTx) PutBinding(b models.NFTBinding) error {
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO nft_bindings(record_id, holder, issuer, issued_at) VALUES(?,?,?,?)`,
		b.RecordID, string(b.Holder), string(b.Issuer), b.IssuedAt.UnixNano())
	return err
}

func (t *sqlTx) HasRole(role models.Role, account models.Address) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(1) FROM role_members WHERE role = ? AND address = ?`, string(role), string(account)).Scan(&n)
	return n > 0, err
}

func (t *sqlTx) SetRole(role models.Role, account models.Address, member bool) error {
	var err error
	if member {
		_, err = t.tx.ExecContext(t.ctx, `INSERT OR IGNORE INTO role_members(role, address) VALUES(?,?)`, string(role), string(account))
	} else {
		_, err = t.tx.ExecContext(t.ctx, `DELETE FROM role_members WHERE role = ? AND address = ?`, string(role), string(account))
	}
	return err
}

func (t *sqlTx) AppendEvent(ev models.Event) (models.Event, error) {
	res, err := t.tx.ExecContext(t.ctx, `INSERT INTO events(kind, record_id, content, actor, subject, role, at) VALUES(?,?,?,?,?,?,?)`,
		string(ev.Kind), ev.RecordID, ev.Content, string(ev.Actor), string(ev.Subject), string(ev.Role), ev.At.UnixNano())
	if err != nil {
		return models.Event{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return models.Event{}, err
	}
	ev.Seq = seq
	return ev, nil
}

func (t *sqlTx) ListEvents(recordID int64) ([]models.Event, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT seq, kind, record_id, content, actor, subject, role, at FROM events WHERE record_id = ? ORDER BY seq`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var kind, actor, subject, role string
		var at int64
		if err := rows.Scan(&ev.Seq, &kind, &ev.RecordID, &ev.Content, &actor, &subject, &role, &at); err != nil {
			return nil, err
		}
		ev.Kind = models.EventKind(kind)
		ev.Actor = models.Address(actor)
		ev.Subject = models.Address(subject)
		ev.Role = models.Role(role)
		ev.At = fromNanos(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Accounts

func (r *Repository) CreateAccount(ctx context.Context, address models.Address, passwordHash []byte) (models.Account, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT INTO accounts(address, password_hash, created_at) VALUES(?,?,?) ON CONFLICT(address) DO NOTHING`,
		string(address), passwordHash, now.UnixNano())
	if err != nil {
		return models.Account{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Account{}, repository.ErrAccountExists
	}
	return models.Account{Address: address, CreatedAt: fromNanos(now.UnixNano())}, nil
}

func (r *Repository) GetAccount(ctx context.Context, address models.Address) (models.Account, []byte, error) {
	row := r.db.QueryRowContext(ctx, `SELECT password_hash, created_at FROM accounts WHERE address = ?`, string(address))
	var hash []byte
	var created int64
	if err := row.Scan(&hash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, nil, repository.ErrAccountNotFound
		}
		return models.Account{}, nil, err
	}
	return models.Account{Address: address, CreatedAt: fromNanos(created)}, hash, nil
}

// Refresh tokens

func (r *Repository) SaveRefreshToken(ctx context.Context, tokenHash string, address models.Address, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO refresh_tokens(token_hash, address, expires_at) VALUES(?,?,?)`,
		tokenHash, string(address), expiresAt.UTC().UnixNano())
	return err
}

// ConsumeRefreshToken deletes the token and returns what it was issued for.
// A token can be consumed once.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, tokenHash string) (models.Address, time.Time, error) {
	row := r.db.QueryRowContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = ? RETURNING address, expires_at`, tokenHash)
	var addr string
	var exp int64
	if err := row.Scan(&addr, &exp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, repository.ErrRefreshTokenNotFound
		}
		return "", time.Time{}, err
	}
	return models.Address(addr), fromNanos(exp), nil
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
