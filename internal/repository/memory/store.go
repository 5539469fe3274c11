// Package memory contains in-process implementations of the repository
// interfaces. They back the server when no DSN is configured and serve as
// fakes in service tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"github.com/gofrs/uuid/v5"
)

var (
	_ repository.CredentialRepository = (*Credentials)(nil)
	_ repository.TokenRepository      = (*Tokens)(nil)
)

// Credentials is a mutex-guarded credential store keyed by user ID.
type Credentials struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.Credential
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

// NewCredentials returns an empty credential store.
func NewCredentials() *Credentials {
	return &Credentials{
		byID:    make(map[uuid.UUID]model.Credential),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (s *Credentials) Create(_ context.Context, c *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(c.Email)
	if _, ok := s.byEmail[email]; ok {
		return errs.ErrConflict
	}
	if _, ok := s.byID[c.UserID]; ok {
		return errs.ErrConflict
	}
	c.Email = email
	c.CreatedAt = s.now().UTC()
	s.byID[c.UserID] = *c
	s.byEmail[email] = c.UserID
	return nil
}

func (s *Credentials) GetByID(_ context.Context, id uuid.UUID) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &c, nil
}

func (s *Credentials) GetByEmail(_ context.Context, email string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := s.byID[id]
	return &c, nil
}

func (s *Credentials) UpdateHash(_ context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.PwdHash = hash
	s.byID[id] = c
	return nil
}

// Tokens stores refresh and reset tokens keyed by value.
type Tokens struct {
	mu      sync.Mutex
	byValue map[string]*model.Token
}

// NewTokens returns an empty token store.
func NewTokens() *Tokens {
	return &Tokens{byValue: make(map[string]*model.Token)}
}

func (s *Tokens) Create(_ context.Context, t *model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byValue[t.Value]; ok {
		return errs.ErrConflict
	}
	cp := *t
	s.byValue[t.Value] = &cp
	return nil
}

func (s *Tokens) GetByValue(_ context.Context, value string) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byValue[value]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// MarkUsed is the compare-and-set counterpart of the SQL conditional update.
func (s *Tokens) MarkUsed(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.byValue {
		if t.ID != id {
			continue
		}
		if t.Used {
			return false, nil
		}
		t.Used = true
		return true, nil
	}
	return false, nil
}

func (s *Tokens) DeleteBySubject(
	_ context.Context, subjectID uuid.UUID, kind model.TokenKind, unusedOnly bool,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for v, t := range s.byValue {
		if t.SubjectID != subjectID || t.Kind != kind {
			continue
		}
		if unusedOnly && t.Used {
			continue
		}
		delete(s.byValue, v)
		n++
	}
	return n, nil
}

// DeleteOlder orders by (CreatedAt, ID) the same way the SQL row comparison does.
func (s *Tokens) DeleteOlder(_ context.Context, ref *model.Token) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for v, t := range s.byValue {
		if t.SubjectID != ref.SubjectID || t.Kind != ref.Kind || !tokenBefore(t, ref) {
			continue
		}
		delete(s.byValue, v)
		n++
	}
	return n, nil
}

func tokenBefore(a, b *model.Token) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func (s *Tokens) DeleteByValue(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byValue[value]; !ok {
		return errs.ErrNotFound
	}
	delete(s.byValue, value)
	return nil
}

func (s *Tokens) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for v, t := range s.byValue {
		if t.Expired(cutoff) {
			delete(s.byValue, v)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored tokens.
func (s *Tokens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byValue)
}

func sortByName[T any](items []T, name func(T) string) {
	sort.Slice(items, func(i, j int) bool { return name(items[i]) < name(items[j]) })
}
