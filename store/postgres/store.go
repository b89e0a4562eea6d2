package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	identity "github.com/allocar/identity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// ErrUnknownAccount is returned by Save when no row has the account's id.
var ErrUnknownAccount = errors.New("postgres: account does not exist")

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store is an identity.CredentialStore over the accounts table.
type Store struct {
	db    querier
	now   func() time.Time
	newID func() string
}

func New(db querier) *Store {
	return &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

const selectAccount = `
	SELECT id, COALESCE(email, ''), COALESCE(phone, ''), password_hash,
	       is_email_verified, is_phone_verified, is_active, extras,
	       created_at, updated_at
	FROM accounts`

func (s *Store) FindByID(ctx context.Context, id string) (*identity.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return s.findOne(ctx, selectAccount+` WHERE id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	if email == "" {
		return nil, nil
	}
	return s.findOne(ctx, selectAccount+` WHERE lower(email) = lower($1)`, email)
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (*identity.Account, error) {
	if phone == "" {
		return nil, nil
	}
	return s.findOne(ctx, selectAccount+` WHERE phone = $1`, phone)
}

func (s *Store) findOne(ctx context.Context, query string, arg string) (*identity.Account, error) {
	account, err := scanAccount(s.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

func (s *Store) Create(ctx context.Context, n identity.NewAccount) (*identity.Account, error) {
	extras, err := encodeExtras(n.Extras)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &identity.Account{
		ID:           s.newID(),
		Email:        n.Email,
		Phone:        n.Phone,
		PasswordHash: n.PasswordHash,
		IsActive:     n.IsActive,
		Extras:       copyExtras(n.Extras),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO accounts (id, email, phone, password_hash, is_active, extras, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		account.ID, nullable(n.Email), nullable(n.Phone), n.PasswordHash, n.IsActive, extras, now,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return account, nil
}

func (s *Store) Save(ctx context.Context, account *identity.Account) error {
	if account == nil {
		return errors.New("postgres: nil account")
	}
	extras, err := encodeExtras(account.Extras)
	if err != nil {
		return err
	}

	now := s.now()
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET email = $2, phone = $3, password_hash = $4,
		    is_email_verified = $5, is_phone_verified = $6, is_active = $7,
		    extras = $8, updated_at = $9
		WHERE id = $1`,
		account.ID, nullable(account.Email), nullable(account.Phone), account.PasswordHash,
		account.IsEmailVerified, account.IsPhoneVerified, account.IsActive, extras, now,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownAccount
	}
	account.UpdatedAt = now
	return nil
}

func scanAccount(row pgx.Row) (*identity.Account, error) {
	var (
		a      identity.Account
		extras []byte
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Phone,
		&a.PasswordHash,
		&a.IsEmailVerified,
		&a.IsPhoneVerified,
		&a.IsActive,
		&extras,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(extras) > 0 {
		if err := json.Unmarshal(extras, &a.Extras); err != nil {
			return nil, fmt.Errorf("decode extras: %w", err)
		}
	}
	return &a, nil
}

// mapError turns a unique violation on either identifier index into
// identity.ErrConflict so concurrent registrations surface as conflicts.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		field := "identifier"
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			field = "email"
		case strings.Contains(pgErr.ConstraintName, "phone"):
			field = "phone"
		}
		return fmt.Errorf("%w: %s", identity.ErrConflict, field)
	}
	return err
}

func encodeExtras(extras map[string]string) ([]byte, error) {
	if len(extras) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("encode extras: %w", err)
	}
	return raw, nil
}

func copyExtras(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
