package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/audit"
	"github.com/taskora/taskora/backend/internal/clock"
	"github.com/taskora/taskora/backend/internal/config"
	"github.com/taskora/taskora/backend/internal/repository"
)

// MockCredentialRepository implements repository.CredentialRepository for testing
type MockCredentialRepository struct {
	creds       map[uuid.UUID]*repository.Credential
	byUsername  map[string]*repository.Credential
	byEmail     map[string]*repository.Credential
	failureErr  error
	clearCalled int
}

func NewMockCredentialRepository() *MockCredentialRepository {
	return &MockCredentialRepository{
		creds:      make(map[uuid.UUID]*repository.Credential),
		byUsername: make(map[string]*repository.Credential),
		byEmail:    make(map[string]*repository.Credential),
	}
}

func (m *MockCredentialRepository) Create(ctx context.Context, cred *repository.Credential) error {
	if _, exists := m.byUsername[cred.Username]; exists {
		return repository.ErrUsernameAlreadyExists
	}
	if _, exists := m.byEmail[strings.ToLower(cred.Email)]; exists {
		return repository.ErrEmailAlreadyExists
	}
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now
	m.creds[cred.ID] = cred
	m.byUsername[cred.Username] = cred
	m.byEmail[strings.ToLower(cred.Email)] = cred
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
	cred, exists := m.byUsername[username]
	if !exists {
		return nil, repository.ErrCredentialNotFound
	}
	copy := *cred
	return &copy, nil
}

func (m *MockCredentialRepository) GetByEmail(ctx context.Context, email string) (*repository.Credential, error) {
	cred, exists := m.byEmail[strings.ToLower(email)]
	if !exists {
		return nil, repository.ErrCredentialNotFound
	}
	copy := *cred
	return &copy, nil
}

func (m *MockCredentialRepository) RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockedUntil time.Time) (int, bool, error) {
	if m.failureErr != nil {
		return 0, false, m.failureErr
	}
	cred, exists := m.creds[id]
	if !exists {
		return 0, false, repository.ErrCredentialNotFound
	}
	cred.FailedAttempts++
	locked := false
	if cred.FailedAttempts >= threshold {
		until := lockedUntil
		cred.LockedUntil = &until
		locked = true
	}
	return cred.FailedAttempts, locked, nil
}

func (m *MockCredentialRepository) ClearFailures(ctx context.Context, id uuid.UUID) error {
	cred, exists := m.creds[id]
	if !exists {
		return repository.ErrCredentialNotFound
	}
	m.clearCalled++
	cred.FailedAttempts = 0
	cred.LockedUntil = nil
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

var testLockout = config.LockoutConfig{
	MaxFailedAttempts: 5,
	LockoutDuration:   30 * time.Minute,
}

func newTestCredentialService(repo *MockCredentialRepository, clk clock.Clock) *CredentialService {
	return NewCredentialService(repo, NewPasswordValidator(), audit.Nop{}, clk, testLockout, nil)
}

func seedCredential(t *testing.T, repo *MockCredentialRepository, username, password string, enabled bool) *repository.Credential {
	t.Helper()
	validator := NewPasswordValidator()
	hash, err := validator.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	cred := &repository.Credential{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         RoleMember,
		Enabled:      enabled,
	}
	if err := repo.Create(context.Background(), cred); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
	return cred
}

func TestAuthenticate_Success(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc := newTestCredentialService(repo, clk)

	seedCredential(t, repo, "alice", "Sup3rSecret!", true)

	cred, err := svc.Authenticate(context.Background(), "alice", "Sup3rSecret!", "10.0.0.1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if cred.Username != "alice" {
		t.Errorf("expected username alice, got %s", cred.Username)
	}
}

func TestAuthenticate_UserNotFound(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Now().UTC()}
	svc := newTestCredentialService(repo, clk)

	_, err := svc.Authenticate(context.Background(), "ghost", "whatever", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthenticate_DisabledAccount(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Now().UTC()}
	svc := newTestCredentialService(repo, clk)

	seedCredential(t, repo, "bob", "Sup3rSecret!", false)

	_, err := svc.Authenticate(context.Background(), "bob", "Sup3rSecret!", "")
	if !errors.Is(err, ErrUserDisabled) {
		t.Errorf("expected ErrUserDisabled, got %v", err)
	}
}

func TestAuthenticate_BadPasswordIncrementsCounter(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Now().UTC()}
	svc := newTestCredentialService(repo, clk)

	cred := seedCredential(t, repo, "carol", "Sup3rSecret!", true)

	_, err := svc.Authenticate(context.Background(), "carol", "wrong-password", "")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), cred.ID)
	if stored.FailedAttempts != 1 {
		t.Errorf("expected 1 failed attempt, got %d", stored.FailedAttempts)
	}
	if stored.LockedUntil != nil {
		t.Errorf("expected no lockout after a single failure")
	}
}

func TestAuthenticate_OneBelowThresholdStaysOpen(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc := newTestCredentialService(repo, clk)

	cred := seedCredential(t, repo, "erin", "Sup3rSecret!", true)

	for i := 0; i < testLockout.MaxFailedAttempts-1; i++ {
		_, err := svc.Authenticate(context.Background(), "erin", "wrong-password", "")
		if !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d: expected ErrBadCredentials, got %v", i+1, err)
		}
	}

	stored, _ := repo.GetByID(context.Background(), cred.ID)
	if stored.LockedUntil != nil {
		t.Fatalf("expected no lockout at %d failures", testLockout.MaxFailedAttempts-1)
	}

	// The correct password still works one failure short of the threshold.
	if _, err := svc.Authenticate(context.Background(), "erin", "Sup3rSecret!", ""); err != nil {
		t.Errorf("expected success below the lockout threshold, got %v", err)
	}
}

func TestAuthenticate_LocksAtThreshold(t *testing.T) {
	repo := NewMockCredentialRepository()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Time: now}
	svc := newTestCredentialService(repo, clk)

	cred := seedCredential(t, repo, "dave", "Sup3rSecret!", true)

	for i := 0; i < testLockout.MaxFailedAttempts; i++ {
		_, err := svc.Authenticate(context.Background(), "dave", "wrong-password", "")
		if !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d: expected ErrBadCredentials, got %v", i+1, err)
		}
	}

	stored, _ := repo.GetByID(context.Background(), cred.ID)
	if stored.LockedUntil == nil {
		t.Fatal("expected lockout after reaching the threshold")
	}
	if want := now.Add(testLockout.LockoutDuration); !stored.LockedUntil.Equal(want) {
		t.Errorf("expected lockout until %v, got %v", want, stored.LockedUntil)
	}

	// Even the correct password fails while the lockout holds.
	_, err := svc.Authenticate(context.Background(), "dave", "Sup3rSecret!", "")
	if !errors.Is(err, ErrAccountLocked) {
		t.Errorf("expected ErrAccountLocked with correct password, got %v", err)
	}
}

func TestAuthenticate_LockoutExpires(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc := newTestCredentialService(repo, clk)

	seedCredential(t, repo, "erin", "Sup3rSecret!", true)

	for i := 0; i < testLockout.MaxFailedAttempts; i++ {
		svc.Authenticate(context.Background(), "erin", "wrong-password", "")
	}

	_, err := svc.Authenticate(context.Background(), "erin", "Sup3rSecret!", "")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked before expiry, got %v", err)
	}

	clk.Advance(testLockout.LockoutDuration + time.Minute)

	cred, err := svc.Authenticate(context.Background(), "erin", "Sup3rSecret!", "")
	if err != nil {
		t.Fatalf("expected success after lockout expiry, got %v", err)
	}
	if cred.FailedAttempts != 0 || cred.LockedUntil != nil {
		t.Errorf("expected counter and lockout cleared, got attempts=%d locked=%v", cred.FailedAttempts, cred.LockedUntil)
	}
}

func TestAuthenticate_SuccessResetsCounter(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Now().UTC()}
	svc := newTestCredentialService(repo, clk)

	cred := seedCredential(t, repo, "frank", "Sup3rSecret!", true)

	svc.Authenticate(context.Background(), "frank", "wrong-password", "")
	svc.Authenticate(context.Background(), "frank", "wrong-password", "")

	if _, err := svc.Authenticate(context.Background(), "frank", "Sup3rSecret!", ""); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), cred.ID)
	if stored.FailedAttempts != 0 {
		t.Errorf("expected counter reset to 0, got %d", stored.FailedAttempts)
	}
}

func TestChangePassword(t *testing.T) {
	tests := []struct {
		name         string
		current      string
		newPassword  string
		confirmation string
		wantErr      error
		wantFields   bool
	}{
		{
			name:         "success",
			current:      "Sup3rSecret!",
			newPassword:  "N3wSecret!ok",
			confirmation: "N3wSecret!ok",
		},
		{
			name:         "wrong current password",
			current:      "not-the-password",
			newPassword:  "N3wSecret!ok",
			confirmation: "N3wSecret!ok",
			wantErr:      ErrInvalidCurrentPassword,
		},
		{
			name:         "confirmation mismatch",
			current:      "Sup3rSecret!",
			newPassword:  "N3wSecret!ok",
			confirmation: "N3wSecret!different",
			wantErr:      ErrPasswordsDoNotMatch,
		},
		{
			name:         "same as current",
			current:      "Sup3rSecret!",
			newPassword:  "Sup3rSecret!",
			confirmation: "Sup3rSecret!",
			wantErr:      ErrPasswordSameAsCurrent,
		},
		{
			name:         "pattern violation",
			current:      "Sup3rSecret!",
			newPassword:  "weak",
			confirmation: "weak",
			wantFields:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockCredentialRepository()
			clk := &clock.Fixed{Time: time.Now().UTC()}
			svc := newTestCredentialService(repo, clk)
			cred := seedCredential(t, repo, "grace", "Sup3rSecret!", true)

			fieldErrors, err := svc.ChangePassword(context.Background(), cred.ID, tt.current, tt.newPassword, tt.confirmation)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantFields {
				if len(fieldErrors) == 0 {
					t.Fatal("expected field errors for weak password")
				}
				return
			}

			validator := NewPasswordValidator()
			stored, _ := repo.GetByID(context.Background(), cred.ID)
			if err := validator.VerifyPassword(tt.newPassword, stored.PasswordHash); err != nil {
				t.Errorf("stored hash does not verify against the new password: %v", err)
			}
		})
	}
}

func TestChangePassword_UnknownUser(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Now().UTC()}
	svc := newTestCredentialService(repo, clk)

	_, err := svc.ChangePassword(context.Background(), uuid.New(), "a", "b", "b")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestActivateAccount(t *testing.T) {
	repo := NewMockCredentialRepository()
	clk := &clock.Fixed{Time: time.Now().UTC()}
	svc := newTestCredentialService(repo, clk)

	cred := seedCredential(t, repo, "henry", "Sup3rSecret!", false)

	if err := svc.ActivateAccount(context.Background(), cred.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), cred.ID)
	if !stored.Enabled {
		t.Error("expected account enabled after activation")
	}
}
