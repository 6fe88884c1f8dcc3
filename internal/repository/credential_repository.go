package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Credential repository errors
var (
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrEmailAlreadyExists    = errors.New("email already exists")
)

// CredentialRepository defines the interface for credential data access
type CredentialRepository interface {
	Create(ctx context.Context, cred *Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*Credential, error)
	GetByUsername(ctx context.Context, username string) (*Credential, error)
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	// RecordFailure atomically increments the failed-attempt counter and,
	// when the counter reaches threshold, sets locked_until in the same
	// statement. Returns the new counter and whether the lockout tripped.
	RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockedUntil time.Time) (int, bool, error)
	ClearFailures(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// credentialRepository implements CredentialRepository using PostgreSQL
type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository instance
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

const credentialColumns = `
	id, username, email, password_hash, role, enabled, two_factor_enabled,
	failed_attempts, locked_until, created_at, updated_at
`

// Create inserts a new credential into the database
func (r *credentialRepository) Create(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO credentials (username, email, password_hash, role, enabled, two_factor_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		cred.Username,
		strings.ToLower(cred.Email),
		cred.PasswordHash,
		cred.Role,
		cred.Enabled,
		cred.TwoFactorEnabled,
	).Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "idx_credentials_username") {
			return ErrUsernameAlreadyExists
		}
		if strings.Contains(err.Error(), "idx_credentials_email") {
			return ErrEmailAlreadyExists
		}
		return err
	}

	return nil
}

// GetByID retrieves a credential by its ID
func (r *credentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername retrieves a credential by username
func (r *credentialRepository) GetByUsername(ctx context.Context, username string) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE username = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, username))
}

// GetByEmail retrieves a credential by email address (case-insensitive)
func (r *credentialRepository) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE LOWER(email) = LOWER($1)`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *credentialRepository) scanOne(row pgx.Row) (*Credential, error) {
	cred := &Credential{}
	err := row.Scan(
		&cred.ID,
		&cred.Username,
		&cred.Email,
		&cred.PasswordHash,
		&cred.Role,
		&cred.Enabled,
		&cred.TwoFactorEnabled,
		&cred.FailedAttempts,
		&cred.LockedUntil,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}

	return cred, nil
}

// RecordFailure increments failed_attempts and trips the lockout in a single
// UPDATE so concurrent failed attempts cannot under-count toward the
// threshold.
func (r *credentialRepository) RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockedUntil time.Time) (int, bool, error) {
	query := `
		UPDATE credentials
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts
	`

	var attempts int
	err := r.pool.QueryRow(ctx, query, id, threshold, lockedUntil).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, ErrCredentialNotFound
		}
		return 0, false, err
	}

	return attempts, attempts >= threshold, nil
}

// ClearFailures resets the failed-attempt counter and clears the lockout
// deadline after a successful authentication.
func (r *credentialRepository) ClearFailures(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE credentials
		SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// UpdatePassword replaces the stored password hash
func (r *credentialRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `
		UPDATE credentials
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// SetEnabled enables or disables the account
func (r *credentialRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE credentials
		SET enabled = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}
