// Package mocks contains simple hand-written test doubles for the auth ports.
// These are lightweight and suitable for unit tests without codegen.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/ports"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialStore  = (*MemoryCredentialStore)(nil)
	_ ports.RevocationLedger = (*revocation.Ledger)(nil)
	_ revocation.Store       = (*MemoryRevocationStore)(nil)
	_ event.Publisher        = (*RecordingPublisher)(nil)
)

// MemoryCredentialStore keeps users in a map. Soft-deleted users are invisible
// to every lookup, like the SQL repo. Err, when set, is returned by every call.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	users map[int64]*entity.User
	Err   error
}

func NewMemoryCredentialStore(users ...*entity.User) *MemoryCredentialStore {
	s := &MemoryCredentialStore{users: make(map[int64]*entity.User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put stores a copy of u.
func (s *MemoryCredentialStore) Put(u *entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// SoftDelete stamps deleted_at on the user.
func (s *MemoryCredentialStore) SoftDelete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		now := time.Now()
		u.DeletedAt = &now
	}
}

// PasswordHash returns the stored hash regardless of deletion state.
func (s *MemoryCredentialStore) PasswordHash(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u.PasswordHash
	}
	return ""
}

func (s *MemoryCredentialStore) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Email == email && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (s *MemoryCredentialStore) FindByID(_ context.Context, id int64) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, userrepo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryCredentialStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return userrepo.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// MemoryRevocationStore is a map-backed revocation.Store with unique-jti semantics.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]int64
	inserts int
	Err     error
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]int64)}
}

func (s *MemoryRevocationStore) InsertIfAbsent(_ context.Context, jti string, subjectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.entries[jti]; ok {
		return nil
	}
	s.entries[jti] = subjectID
	s.inserts++
	return nil
}

func (s *MemoryRevocationStore) Exists(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.entries[jti]
	return ok, nil
}

// Len returns the number of distinct revoked jtis.
func (s *MemoryRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

// SetErr changes the error returned by every call.
func (s *MemoryRevocationStore) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// RecordingPublisher captures published events in order.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, ev event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

// Kinds returns the kinds of published events in order.
func (p *RecordingPublisher) Kinds() []event.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]event.Kind, len(p.events))
	for i, ev := range p.events {
		kinds[i] = ev.Kind
	}
	return kinds
}
