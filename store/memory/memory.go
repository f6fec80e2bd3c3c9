// Package memory is a mutex-guarded, single-process implementation of
// store.Store for tests and local development.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authflow/store"
	"github.com/google/uuid"
)

type backupCode struct {
	hash   [32]byte
	usedAt *time.Time
}

type Store struct {
	mu sync.Mutex

	accounts    map[string]*store.Account
	byEmail     map[string]string
	credentials map[string]string
	enrollments map[string]*store.TOTPEnrollment
	backupCodes map[string][]*backupCode
	sessions    map[string]*store.Session
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:    make(map[string]*store.Account),
		byEmail:     make(map[string]string),
		credentials: make(map[string]string),
		enrollments: make(map[string]*store.TOTPEnrollment),
		backupCodes: make(map[string][]*backupCode),
		sessions:    make(map[string]*store.Session),
	}
}

func (s *Store) CreateAccount(_ context.Context, in store.NewAccount, now time.Time) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, ok := s.byEmail[email]; ok {
		return nil, store.ErrConflict
	}

	role := in.Role
	if role == "" {
		role = store.RoleUser
	}
	acc := &store.Account{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: in.DisplayName,
		Role:        role,
		CreatedAt:   now,
	}
	s.accounts[acc.ID] = acc
	s.byEmail[email] = acc.ID
	if in.PasswordHash != "" {
		s.credentials[acc.ID] = in.PasswordHash
	}

	out := *acc
	return &out, nil
}

func (s *Store) AccountByEmail(_ context.Context, email string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *Store) AccountByID(_ context.Context, id string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *acc
	return &out, nil
}

func (s *Store) MarkEmailVerified(_ context.Context, accountID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return false, store.ErrNotFound
	}
	if acc.EmailVerifiedAt != nil {
		return false, nil
	}
	acc.EmailVerifiedAt = &at
	return true, nil
}

func (s *Store) PasswordHash(_ context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := s.credentials[accountID]
	if !ok {
		return "", store.ErrNotFound
	}
	return hash, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, accountID, hash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return store.ErrNotFound
	}
	s.credentials[accountID] = hash
	return nil
}

func (s *Store) ResetPassword(_ context.Context, accountID, hash string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return 0, store.ErrNotFound
	}
	s.credentials[accountID] = hash

	var revoked int64
	for _, sess := range s.sessions {
		if sess.AccountID == accountID && sess.RevokedAt == nil {
			revokedAt := at
			sess.RevokedAt = &revokedAt
			revoked++
		}
	}
	return revoked, nil
}

// DeleteCredential drops the credential row, leaving an account that cannot
// complete password login.
func (s *Store) DeleteCredential(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, accountID)
}

func (s *Store) SaveEnrollment(_ context.Context, accountID, secret string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return store.ErrNotFound
	}
	if existing, ok := s.enrollments[accountID]; ok && existing.Verified {
		return store.ErrConflict
	}
	s.enrollments[accountID] = &store.TOTPEnrollment{
		AccountID: accountID,
		Secret:    secret,
		CreatedAt: at,
	}
	return nil
}

func (s *Store) Enrollment(_ context.Context, accountID string) (*store.TOTPEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enr, ok := s.enrollments[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *enr
	return &out, nil
}

func (s *Store) ActivateEnrollment(_ context.Context, accountID string, step int64, at time.Time, codes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enr, ok := s.enrollments[accountID]
	if !ok {
		return store.ErrNotFound
	}
	if enr.Verified {
		return store.ErrConflict
	}
	enr.Verified = true
	enr.LastUsedStep = step
	enr.LastUsedAt = &at
	s.backupCodes[accountID] = newBatch(codes)
	return nil
}

func (s *Store) RecordStep(_ context.Context, accountID string, step int64, at time.Time, strict bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enr, ok := s.enrollments[accountID]
	if !ok {
		return false, store.ErrNotFound
	}
	if strict && step <= enr.LastUsedStep {
		return false, nil
	}
	if step > enr.LastUsedStep {
		enr.LastUsedStep = step
	}
	enr.LastUsedAt = &at
	return true, nil
}

func (s *Store) DeleteEnrollment(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.enrollments, accountID)
	delete(s.backupCodes, accountID)
	return nil
}

func (s *Store) ReplaceBackupCodes(_ context.Context, accountID string, codes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return store.ErrNotFound
	}
	s.backupCodes[accountID] = newBatch(codes)
	return nil
}

func (s *Store) RedeemBackupCode(_ context.Context, accountID string, hash [32]byte, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, code := range s.backupCodes[accountID] {
		if code.usedAt == nil && code.hash == hash {
			usedAt := at
			code.usedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UnusedBackupCodes(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, code := range s.backupCodes[accountID] {
		if code.usedAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateSession(_ context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return store.ErrConflict
	}
	s.sessions[sess.ID] = &sess
	return nil
}

func (s *Store) Session(_ context.Context, id string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (s *Store) RevokeSession(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sess.RevokedAt != nil {
		return false, nil
	}
	sess.RevokedAt = &at
	return true, nil
}

func newBatch(codes [][32]byte) []*backupCode {
	batch := make([]*backupCode, 0, len(codes))
	for _, h := range codes {
		batch = append(batch, &backupCode{hash: h})
	}
	return batch
}
