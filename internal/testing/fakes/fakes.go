// package fakes provides in-memory implementations of the identity, storage and social index interfaces.
package fakes

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/services"
	"github.com/desertthunder/pubkytree/internal/shared"
)

// Storage is an in-memory [services.SessionStorage] with failure injection.
type Storage struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]int

	ExistsErr error
	GetErr    error
	PutErr    error
	// PutGate, when set, blocks every PutJSON until it receives or is closed.
	PutGate chan struct{}
}

func NewStorage() *Storage {
	return &Storage{objects: map[string][]byte{}, puts: map[string]int{}}
}

// Seed stores v at path without counting a put.
func (s *Storage) Seed(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
}

func (s *Storage) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	_, ok := s.objects[path]
	return ok, nil
}

func (s *Storage) GetJSON(ctx context.Context, path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return s.GetErr
	}
	data, ok := s.objects[path]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrObjectNotFound, path)
	}
	return json.Unmarshal(data, v)
}

func (s *Storage) PutJSON(ctx context.Context, path string, v any) error {
	s.mu.Lock()
	gate := s.PutGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[path]++
	if s.PutErr != nil {
		return fmt.Errorf("%w: %v", shared.ErrRemoteWrite, s.PutErr)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.objects[path] = data
	return nil
}

// Puts returns how many PutJSON calls targeted path.
func (s *Storage) Puts(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[path]
}

// Decode reads the stored document at path into v.
func (s *Storage) Decode(path string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetPutErr changes the injected write failure while pushes may be running.
func (s *Storage) SetPutErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutErr = err
}

// Session is a [services.Session] backed by a shared [Storage].
type Session struct {
	identity *Identity
	key      string
}

func (s *Session) PublicKey() string { return s.key }

func (s *Session) Storage() services.SessionStorage { return s.identity.Storage }

func (s *Session) Export() (string, error) { return s.identity.snapshot(), s.identity.ExportErr }

func (s *Session) Signout(ctx context.Context) error { return s.identity.signout() }

// Flow is a pending approval produced by [Identity.StartAuthFlow].
type Flow struct {
	identity  *Identity
	url       string
	closeOnce sync.Once
	closed    chan struct{}
}

func (f *Flow) AuthorizationURL() string { return f.url }

func (f *Flow) AwaitApproval(ctx context.Context) (services.Session, error) {
	f.identity.mu.Lock()
	gate, err, hook := f.identity.Approval, f.identity.ApproveErr, f.identity.OnApprove
	f.identity.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-f.closed:
			return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrNoAuthFlow)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook()
	}
	return &Session{identity: f.identity, key: f.identity.Key}, nil
}

func (f *Flow) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.identity.mu.Lock()
		f.identity.closes++
		f.identity.mu.Unlock()
	})
	return nil
}

// Identity is an in-memory [services.IdentityClient] for a single key.
type Identity struct {
	mu sync.Mutex

	Key     string
	Storage *Storage

	StartErr   error
	ApproveErr error
	RestoreErr error
	SignoutErr error
	ExportErr  error
	// Approval, when set, blocks AwaitApproval until it receives or is closed.
	Approval chan struct{}
	// OnApprove, when set, runs after approval and before the session is returned.
	OnApprove func()

	starts   int
	restores int
	signouts int
	closes   int
	lastCaps string
	lastKind services.AuthFlowKind
}

func NewIdentity(key string) *Identity {
	return &Identity{Key: key, Storage: NewStorage()}
}

func (i *Identity) snapshot() string {
	return "session:" + i.Key
}

func (i *Identity) signout() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.signouts++
	return i.SignoutErr
}

func (i *Identity) StartAuthFlow(ctx context.Context, capabilities string, kind services.AuthFlowKind) (services.AuthFlow, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.starts++
	i.lastCaps, i.lastKind = capabilities, kind
	if i.StartErr != nil {
		return nil, i.StartErr
	}
	url := fmt.Sprintf("pubkyauth:///?caps=%s&secret=%d", capabilities, i.starts)
	return &Flow{identity: i, url: url, closed: make(chan struct{})}, nil
}

func (i *Identity) RestoreSession(ctx context.Context, snapshot string) (services.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.restores++
	if i.RestoreErr != nil {
		return nil, i.RestoreErr
	}
	if snapshot != i.snapshot() {
		return nil, shared.ErrInvalidSnapshot
	}
	return &Session{identity: i, key: i.Key}, nil
}

// Snapshot is the value the sessions of this identity export.
func (i *Identity) Snapshot() string {
	return i.snapshot()
}

// Calls returns the number of started flows, restores and sign-outs.
func (i *Identity) Calls() (starts, restores, signouts int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.starts, i.restores, i.signouts
}

// Closes returns how many flows were closed.
func (i *Identity) Closes() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closes
}

// LastCapabilities returns the capabilities and kind of the last started flow.
func (i *Identity) LastCapabilities() (string, services.AuthFlowKind) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastCaps, i.lastKind
}

// Social is an in-memory [services.SocialIndex].
type Social struct {
	mu       sync.Mutex
	profiles map[string]*models.SocialProfile
	calls    int

	Err error
}

func NewSocial() *Social {
	return &Social{profiles: map[string]*models.SocialProfile{}}
}

// Add indexes p under its details ID.
func (s *Social) Add(p *models.SocialProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Details.ID] = p
}

func (s *Social) User(ctx context.Context, id string) (*models.SocialProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[shared.CleanPublicKey(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrProfileNotIndexed, id)
	}
	clone := *p
	clone.Details.Links = slices.Clone(p.Details.Links)
	return &clone, nil
}

func (s *Social) SearchUsers(ctx context.Context, query string, limit int) ([]models.SocialDetails, error) {
	return s.filter(limit, func(d models.SocialDetails) bool {
		return strings.Contains(strings.ToLower(d.Name), strings.ToLower(query))
	})
}

func (s *Social) PopularUsers(ctx context.Context, limit int) ([]models.SocialDetails, error) {
	return s.filter(limit, func(models.SocialDetails) bool { return true })
}

func (s *Social) filter(limit int, keep func(models.SocialDetails) bool) ([]models.SocialDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}

	out := []models.SocialDetails{}
	for _, p := range s.profiles {
		if keep(p.Details) {
			out = append(out, p.Details)
		}
	}
	slices.SortFunc(out, func(a, b models.SocialDetails) int { return strings.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Calls returns the number of requests served.
func (s *Social) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PublicStorage is an in-memory [services.PublicStorage] keyed by pubky:// address.
type PublicStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	Err error
}

func NewPublicStorage() *PublicStorage {
	return &PublicStorage{objects: map[string][]byte{}}
}

// Seed stores v at address.
func (p *PublicStorage) Seed(address string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[address] = data
}

func (p *PublicStorage) GetJSON(ctx context.Context, address string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	data, ok := p.objects[address]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrObjectNotFound, address)
	}
	return json.Unmarshal(data, v)
}

// JournalEntry is one call recorded by [Journal].
type JournalEntry struct {
	Operation string
	Object    string
	Err       error
}

// Journal records sync outcomes in memory.
type Journal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (j *Journal) Record(ctx context.Context, operation, object string, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, JournalEntry{Operation: operation, Object: object, Err: err})
	return nil
}

func (j *Journal) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}
