package passwordreset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/audit"
	"github.com/taskora/taskora/backend/internal/auth"
	"github.com/taskora/taskora/backend/internal/clock"
	"github.com/taskora/taskora/backend/internal/config"
	"github.com/taskora/taskora/backend/internal/notification"
	"github.com/taskora/taskora/backend/internal/repository"
)

// MockResetTokenRepository implements repository.ResetTokenRepository for
// testing. It shares the credential map so the combined confirm-and-update
// mutates both aggregates together, like the real transaction.
type MockResetTokenRepository struct {
	tokens    map[string]*repository.PasswordResetToken
	creds     *MockCredentialRepository
	updateErr error
}

func NewMockResetTokenRepository(creds *MockCredentialRepository) *MockResetTokenRepository {
	return &MockResetTokenRepository{
		tokens: make(map[string]*repository.PasswordResetToken),
		creds:  creds,
	}
}

func (m *MockResetTokenRepository) Create(ctx context.Context, token *repository.PasswordResetToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *MockResetTokenRepository) GetByToken(ctx context.Context, token string) (*repository.PasswordResetToken, error) {
	t, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrResetTokenNotFound
	}
	copy := *t
	return &copy, nil
}

func (m *MockResetTokenRepository) ConfirmAndUpdatePassword(ctx context.Context, token string, confirmedAt time.Time, userID uuid.UUID, passwordHash string) (bool, error) {
	t, exists := m.tokens[token]
	if !exists || t.ConfirmedAt != nil {
		return false, nil
	}
	if m.updateErr != nil {
		// The transaction rolled back, nothing changed.
		return false, m.updateErr
	}
	if err := m.creds.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return false, err
	}
	t.ConfirmedAt = &confirmedAt
	return true, nil
}

// MockCredentialRepository implements the subset of credential access the
// reset flow touches.
type MockCredentialRepository struct {
	creds   map[uuid.UUID]*repository.Credential
	byEmail map[string]*repository.Credential
}

func NewMockCredentialRepository() *MockCredentialRepository {
	return &MockCredentialRepository{
		creds:   make(map[uuid.UUID]*repository.Credential),
		byEmail: make(map[string]*repository.Credential),
	}
}

func (m *MockCredentialRepository) Create(ctx context.Context, cred *repository.Credential) error {
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	m.creds[cred.ID] = cred
	m.byEmail[cred.Email] = cred
	return nil
}

func (m *MockCredentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*repository.Credential, error) {
	cred, exists := m.creds[id]
	if !exists {
		return nil, repository.ErrCredentialNotFound
	}
	copy := *cred
	return &copy, nil
}

func (m *MockCredentialRepository) GetByUsername(ctx context.Context, username string) (*repository.Credential, error) {
	for _, cred := range m.creds {
		if cred.Username == username {
			copy := *cred
			return &copy, nil
		}
	}
	return nil, repository.ErrCredentialNotFound
}

func (m *MockCredentialRepository) GetByEmail(ctx context.Context, email string) (*repository.Credential, error) {
	cred, exists := m.byEmail[email]
	if !exists {
		return nil, repository.ErrCredentialNotFound
	}
	copy := *cred
	return &copy, nil
}

func (m *MockCredentialRepository) RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockedUntil time.Time) (int, bool, error) {
	return 0, false, nil
}

func (m *MockCredentialRepository) ClearFailures(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (m *MockCredentialRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	cred, exists := m.creds[id]
	if !exists {
		return repository.ErrCredentialNotFound
	}
	cred.PasswordHash = passwordHash
	return nil
}

func (m *MockCredentialRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	cred, exists := m.creds[id]
	if !exists {
		return repository.ErrCredentialNotFound
	}
	cred.Enabled = enabled
	return nil
}

// capturePublisher records published notifications for assertions
type capturePublisher struct {
	messages []notification.Message
}

func (p *capturePublisher) Publish(ctx context.Context, msg notification.Message) error {
	p.messages = append(p.messages, msg)
	return nil
}

var testResetConfig = config.ResetConfig{TokenTTL: 24 * time.Hour}

type fixture struct {
	svc       *Service
	tokens    *MockResetTokenRepository
	creds     *MockCredentialRepository
	publisher *capturePublisher
	clock     *clock.Fixed
	validator *auth.PasswordValidator
}

func newFixture() *fixture {
	clk := &clock.Fixed{Time: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	creds := NewMockCredentialRepository()
	tokens := NewMockResetTokenRepository(creds)
	publisher := &capturePublisher{}
	validator := auth.NewPasswordValidator()
	svc := NewService(tokens, creds, validator, publisher, audit.Nop{}, clk, testResetConfig, nil)
	return &fixture{svc: svc, tokens: tokens, creds: creds, publisher: publisher, clock: clk, validator: validator}
}

func seedAccount(t *testing.T, f *fixture, email, password string) *repository.Credential {
	t.Helper()

	hash, err := f.validator.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	cred := &repository.Credential{
		Username:     "alice",
		Email:        email,
		PasswordHash: hash,
		Role:         "MEMBER",
		Enabled:      true,
	}
	if err := f.creds.Create(context.Background(), cred); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
	return cred
}

// requestToken runs the request flow and returns the opaque token from the
// dispatched notification.
func requestToken(t *testing.T, f *fixture, email string) string {
	t.Helper()

	if err := f.svc.RequestReset(context.Background(), email); err != nil {
		t.Fatalf("failed to request reset: %v", err)
	}
	if len(f.publisher.messages) == 0 {
		t.Fatal("expected a reset notification")
	}
	msg := f.publisher.messages[len(f.publisher.messages)-1]
	if msg.Kind != notification.KindPasswordReset {
		t.Fatalf("expected password_reset message, got %s", msg.Kind)
	}
	return msg.Token
}

func TestRequestReset(t *testing.T) {
	f := newFixture()
	cred := seedAccount(t, f, "alice@example.com", "Sup3rSecret!")

	token := requestToken(t, f, "alice@example.com")

	stored, err := f.tokens.GetByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if stored.UserID != cred.ID {
		t.Errorf("token bound to wrong user")
	}
	if want := f.clock.Time.Add(testResetConfig.TokenTTL); !stored.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, stored.ExpiresAt)
	}
}

func TestRequestReset_UnknownEmail(t *testing.T) {
	f := newFixture()

	err := f.svc.RequestReset(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrEmailNotFound) {
		t.Errorf("expected ErrEmailNotFound, got %v", err)
	}
}

func TestConfirmReset_Success(t *testing.T) {
	f := newFixture()
	cred := seedAccount(t, f, "alice@example.com", "Sup3rSecret!")
	token := requestToken(t, f, "alice@example.com")

	fieldErrors, err := f.svc.ConfirmReset(context.Background(), token, "N3wSecret!ok", "N3wSecret!ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fieldErrors) != 0 {
		t.Fatalf("unexpected field errors: %v", fieldErrors)
	}

	stored, _ := f.creds.GetByID(context.Background(), cred.ID)
	if err := f.validator.VerifyPassword("N3wSecret!ok", stored.PasswordHash); err != nil {
		t.Errorf("stored hash does not verify against the new password: %v", err)
	}
}

func TestConfirmReset_SingleUse(t *testing.T) {
	f := newFixture()
	seedAccount(t, f, "alice@example.com", "Sup3rSecret!")
	token := requestToken(t, f, "alice@example.com")

	if _, err := f.svc.ConfirmReset(context.Background(), token, "N3wSecret!ok", "N3wSecret!ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.svc.ConfirmReset(context.Background(), token, "An0ther0ne!", "An0ther0ne!")
	if !errors.Is(err, ErrTokenAlreadyConfirmed) {
		t.Errorf("expected ErrTokenAlreadyConfirmed, got %v", err)
	}
}

func TestConfirmReset_UnknownToken(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ConfirmReset(context.Background(), "no-such-token", "N3wSecret!ok", "N3wSecret!ok")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestConfirmReset_Expired(t *testing.T) {
	f := newFixture()
	seedAccount(t, f, "alice@example.com", "Sup3rSecret!")
	token := requestToken(t, f, "alice@example.com")

	f.clock.Advance(testResetConfig.TokenTTL + time.Minute)

	_, err := f.svc.ConfirmReset(context.Background(), token, "N3wSecret!ok", "N3wSecret!ok")
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	// The failed confirm must not mark the token used.
	stored, _ := f.tokens.GetByToken(context.Background(), token)
	if stored.ConfirmedAt != nil {
		t.Error("expired confirm must not set confirmedAt")
	}
}

func TestConfirmReset_ConfirmationMismatch(t *testing.T) {
	f := newFixture()
	seedAccount(t, f, "alice@example.com", "Sup3rSecret!")
	token := requestToken(t, f, "alice@example.com")

	_, err := f.svc.ConfirmReset(context.Background(), token, "N3wSecret!ok", "Different1!")
	if !errors.Is(err, auth.ErrPasswordsDoNotMatch) {
		t.Errorf("expected ErrPasswordsDoNotMatch, got %v", err)
	}

	stored, _ := f.tokens.GetByToken(context.Background(), token)
	if stored.ConfirmedAt != nil {
		t.Error("failed confirm must not set confirmedAt")
	}
}

func TestConfirmReset_StorageFailureLeavesTokenUnused(t *testing.T) {
	f := newFixture()
	cred := seedAccount(t, f, "alice@example.com", "Sup3rSecret!")
	token := requestToken(t, f, "alice@example.com")

	f.tokens.updateErr = errors.New("connection reset")

	_, err := f.svc.ConfirmReset(context.Background(), token, "N3wSecret!ok", "N3wSecret!ok")
	if err == nil {
		t.Fatal("expected the storage error to surface")
	}

	stored, _ := f.tokens.GetByToken(context.Background(), token)
	if stored.ConfirmedAt != nil {
		t.Error("a failed confirm must not consume the token")
	}
	current, _ := f.creds.GetByID(context.Background(), cred.ID)
	if err := f.validator.VerifyPassword("Sup3rSecret!", current.PasswordHash); err != nil {
		t.Errorf("a failed confirm must not change the password: %v", err)
	}

	// The token is still usable once storage recovers.
	f.tokens.updateErr = nil
	if _, err := f.svc.ConfirmReset(context.Background(), token, "N3wSecret!ok", "N3wSecret!ok"); err != nil {
		t.Errorf("expected the retry to succeed, got %v", err)
	}
}

func TestConfirmReset_SameAsCurrent(t *testing.T) {
	f := newFixture()
	seedAccount(t, f, "alice@example.com", "Sup3rSecret!")
	token := requestToken(t, f, "alice@example.com")

	_, err := f.svc.ConfirmReset(context.Background(), token, "Sup3rSecret!", "Sup3rSecret!")
	if !errors.Is(err, auth.ErrPasswordSameAsCurrent) {
		t.Errorf("expected ErrPasswordSameAsCurrent, got %v", err)
	}
}

func TestConfirmReset_WeakPassword(t *testing.T) {
	f := newFixture()
	seedAccount(t, f, "alice@example.com", "Sup3rSecret!")
	token := requestToken(t, f, "alice@example.com")

	fieldErrors, err := f.svc.ConfirmReset(context.Background(), token, "weak", "weak")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fieldErrors) == 0 {
		t.Fatal("expected field errors for a weak password")
	}

	stored, _ := f.tokens.GetByToken(context.Background(), token)
	if stored.ConfirmedAt != nil {
		t.Error("failed confirm must not set confirmedAt")
	}
}
