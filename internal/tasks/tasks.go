package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/services"
	"github.com/desertthunder/pubkytree/internal/shared"
)

// Object names used in logs, metrics and the sync journal.
const (
	ProfileObject = "profile"
	LinksObject   = "links"
)

// SessionState is the connection state machine of an [Engine].
type SessionState int

const (
	Anonymous SessionState = iota
	Authenticating
	Connected
)

func (s SessionState) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	default:
		return ""
	}
}

// ImportState guards the one-time social import of a session.
type ImportState int

const (
	NotImported ImportState = iota
	Imported
)

func (s ImportState) String() string {
	if s == Imported {
		return "imported"
	}
	return "not_imported"
}

// Cache persists canonical state on this device.
//
// Implemented by [repositories.LocalCache]. Missing entries return [shared.ErrCacheMiss].
type Cache interface {
	Profile(ctx context.Context) (models.Profile, error)
	SaveProfile(ctx context.Context, p models.Profile) error
	Links(ctx context.Context) (models.LinkList, error)
	SaveLinks(ctx context.Context, l models.LinkList) error
	SessionSnapshot(ctx context.Context) (string, error)
	SaveSessionSnapshot(ctx context.Context, snapshot string) error
	ClearSessionSnapshot(ctx context.Context) error
	SessionImported(ctx context.Context) (bool, error)
	MarkSessionImported(ctx context.Context) error
}

// Journal records the outcome of remote operations.
type Journal interface {
	Record(ctx context.Context, operation, object string, err error) error
}

// Paths locates the application's objects in the remote namespace.
type Paths struct {
	Profile      string
	Links        string
	Capabilities string
}

// DefaultPaths returns the pubkytree.app namespace.
func DefaultPaths() Paths {
	return Paths{
		Profile:      "/pub/pubkytree.app/profile.json",
		Links:        "/pub/pubkytree.app/links.json",
		Capabilities: "/pub/pubkytree.app/:rw",
	}
}

// EngineOpts wires the dependencies of an [Engine]. Cache is required.
type EngineOpts struct {
	Cache    Cache
	Identity services.IdentityClient // nil records [shared.ErrIdentityUnavailable]
	Social   services.SocialIndex    // optional
	Journal  Journal                 // optional
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Paths    Paths
	Updates  chan<- SyncEvent // optional, never blocks the engine
	Now      func() time.Time
	NewID    func() string

	// AutoImport runs [Engine.ImportSocial] after a new approval. Restored sessions keep their import state.
	AutoImport bool
	// SeedDefaults starts from the demo profile and links instead of empty state.
	SeedDefaults bool
}

// View is a consistent copy of the engine state.
type View struct {
	Profile   models.Profile
	Links     models.LinkList // sorted by order
	Social    *models.SocialProfile
	Sync      models.SyncState
	Session   SessionState
	Import    ImportState
	AuthURL   string // pending approval URL while authenticating
	Error     string // last transient error
	InitError error  // persistent initialization error
}

// Engine reconciles the canonical profile and link list across the local cache and the remote store.
//
// Methods are safe for concurrent use. Mutations update memory and the cache synchronously and push to the
// remote store in the background; [Engine.Wait] blocks until those pushes have finished.
type Engine struct {
	cache    Cache
	identity services.IdentityClient
	social   services.SocialIndex
	journal  Journal
	logger   *log.Logger
	metrics  *metrics.Metrics
	paths    Paths
	updates  chan<- SyncEvent
	now      func() time.Time
	newID    func() string
	autoImp  bool

	mu        sync.Mutex
	profile   models.Profile
	links     models.LinkList
	state     SessionState
	session   services.Session
	flow      services.AuthFlow
	imported  ImportState
	socialSnp *models.SocialProfile
	lastSync  *time.Time
	inFlight  int
	lastErr   string
	initErr   error

	wg sync.WaitGroup
}

// NewEngine creates an engine in the Anonymous state.
func NewEngine(opts EngineOpts) *Engine {
	e := &Engine{
		cache:    opts.Cache,
		identity: opts.Identity,
		social:   opts.Social,
		journal:  opts.Journal,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		paths:    opts.Paths,
		updates:  opts.Updates,
		now:      opts.Now,
		newID:    opts.NewID,
		autoImp:  opts.AutoImport,
		links:    models.LinkList{},
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	if e.paths == (Paths{}) {
		e.paths = DefaultPaths()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = shared.GenerateID
	}
	if opts.SeedDefaults {
		e.profile = models.DefaultProfile()
		e.links = models.DefaultLinks()
	}
	if e.identity == nil {
		e.initErr = shared.ErrIdentityUnavailable
	}
	return e
}

// sendEvent sends without blocking; slow consumers miss events.
func (e *Engine) sendEvent(ev SyncEvent) {
	if e.updates == nil {
		return
	}
	select {
	case e.updates <- ev:
	default:
	}
}

func (e *Engine) record(ctx context.Context, operation, object string, err error) {
	if e.journal == nil {
		return
	}
	if jerr := e.journal.Record(ctx, operation, object, err); jerr != nil {
		e.logger.Warn("failed to record sync journal", "operation", operation, "object", object, "error", jerr)
	}
}

// Init loads the local cache and restores a previously exported session.
//
// A snapshot that cannot be restored is discarded and the engine stays Anonymous. The only error returned is
// the persistent initialization error.
func (e *Engine) Init(ctx context.Context) error {
	e.LoadLocal(ctx)

	if e.initErr != nil {
		e.logger.Error("identity client unavailable", "error", e.initErr)
		return e.initErr
	}

	snapshot, err := e.cache.SessionSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrCacheMiss) {
			e.logger.Warn("failed to read session snapshot", "error", err)
		}
		return nil
	}

	sess, err := e.identity.RestoreSession(ctx, snapshot)
	if err != nil {
		e.logger.Warn("failed to restore session, discarding snapshot", "error", err)
		if cerr := e.cache.ClearSessionSnapshot(ctx); cerr != nil {
			e.logger.Warn("failed to clear session snapshot", "error", cerr)
		}
		return nil
	}

	imported := NotImported
	if done, err := e.cache.SessionImported(ctx); err != nil {
		e.logger.Warn("failed to read import marker", "error", err)
	} else if done {
		imported = Imported
	}

	e.mu.Lock()
	e.session = sess
	e.state = Connected
	e.imported = imported
	e.mu.Unlock()
	e.logger.Info("session restored", "public_key", sess.PublicKey(), "import", imported)
	e.sendEvent(authEvent(sess.PublicKey(), nil))

	e.FetchSocial(ctx)
	e.pull(ctx, sess)
	return nil
}

// LoadLocal replaces canonical fields with the cached entries that exist and parse.
func (e *Engine) LoadLocal(ctx context.Context) {
	var (
		profile                models.Profile
		links                  models.LinkList
		haveProfile, haveLinks bool
	)

	if p, err := e.cache.Profile(ctx); err == nil {
		profile, haveProfile = p, true
	} else if !errors.Is(err, shared.ErrCacheMiss) {
		e.logger.Warn("ignoring cached profile", "error", err)
	}

	if l, err := e.cache.Links(ctx); err == nil {
		links, haveLinks = l, true
	} else if !errors.Is(err, shared.ErrCacheMiss) {
		e.logger.Warn("ignoring cached links", "error", err)
	}

	e.mu.Lock()
	if haveProfile {
		e.profile = profile
	}
	if haveLinks {
		e.links = links.Clone()
	}
	e.mu.Unlock()

	e.sendEvent(loadCacheEvent(haveProfile, haveLinks))
}

// Load reads the local cache and, when connected, pulls both objects from the remote store.
func (e *Engine) Load(ctx context.Context) {
	e.LoadLocal(ctx)

	e.mu.Lock()
	sess, state := e.session, e.state
	e.mu.Unlock()

	if state == Connected && sess != nil {
		e.pull(ctx, sess)
	}
}

// pull fetches profile and links concurrently. Objects that exist overwrite canonical state and the cache.
func (e *Engine) pull(ctx context.Context, sess services.Session) {
	var (
		g                      errgroup.Group
		profile                models.Profile
		links                  models.LinkList
		haveProfile, haveLinks bool
	)
	storage := sess.Storage()

	g.Go(func() (err error) {
		haveProfile, err = e.fetchObject(ctx, storage, e.paths.Profile, &profile)
		if err != nil {
			e.logger.Warn("failed to load remote profile", "error", err)
		}
		return err
	})
	g.Go(func() (err error) {
		haveLinks, err = e.fetchObject(ctx, storage, e.paths.Links, &links)
		if err != nil {
			e.logger.Warn("failed to load remote links", "error", err)
		}
		return err
	})
	err := g.Wait()

	e.mu.Lock()
	if e.session != sess {
		e.mu.Unlock()
		e.logger.Debug("discarding remote load for ended session")
		return
	}
	if haveProfile {
		e.profile = profile
	}
	if haveLinks {
		if links == nil {
			links = models.LinkList{}
		}
		e.links = links.Clone()
	}
	if err == nil {
		now := e.now()
		e.lastSync = &now
	}
	e.mu.Unlock()

	if haveProfile {
		if cerr := e.cache.SaveProfile(ctx, profile); cerr != nil {
			e.logger.Warn("failed to cache remote profile", "error", cerr)
		}
	}
	if haveLinks {
		if cerr := e.cache.SaveLinks(ctx, links); cerr != nil {
			e.logger.Warn("failed to cache remote links", "error", cerr)
		}
	}
	e.record(ctx, "pull", "all", err)
	e.sendEvent(pullEvent(err))
}

// fetchObject reports whether the object exists and decodes it into v.
func (e *Engine) fetchObject(ctx context.Context, storage services.SessionStorage, path string, v any) (bool, error) {
	exists, err := storage.Exists(ctx, path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := storage.GetJSON(ctx, path, v); err != nil {
		if errors.Is(err, shared.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FetchSocial loads the social index snapshot of the connected identity. Failures leave no snapshot.
func (e *Engine) FetchSocial(ctx context.Context) *models.SocialProfile {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil || e.social == nil {
		return nil
	}

	snapshot, err := e.social.User(ctx, sess.PublicKey())
	if err != nil {
		if errors.Is(err, shared.ErrProfileNotIndexed) {
			e.logger.Info("profile not yet indexed", "public_key", sess.PublicKey())
		} else {
			e.logger.Warn("failed to fetch social profile", "error", err)
		}
		snapshot = nil
	}

	e.mu.Lock()
	if e.session == sess {
		e.socialSnp = snapshot
	}
	e.mu.Unlock()
	return snapshot
}

// Social returns the social snapshot of the current session, if any.
func (e *Engine) Social() *models.SocialProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.socialSnp
}

// ImportSocial seeds canonical state from a social snapshot once per session.
//
// Returns false when not connected, when snapshot is nil or when this session already imported.
func (e *Engine) ImportSocial(ctx context.Context, snapshot *models.SocialProfile) bool {
	if snapshot == nil {
		return false
	}

	e.mu.Lock()
	if e.state != Connected || e.imported == Imported {
		e.mu.Unlock()
		return false
	}
	e.imported = Imported

	details := snapshot.Details
	profile := e.profile
	if details.Name != "" {
		profile.Name = details.Name
	}
	if details.Bio != "" {
		profile.Bio = details.Bio
	}
	if details.Image != "" {
		profile.PubkyAvatarURL = details.Image
	}
	e.profile = profile

	merged := models.MergeByURL(snapshot.Links(), e.links).Renumber()
	if len(merged) > 0 {
		e.links = merged
	}
	links := e.links.Clone()
	e.mu.Unlock()

	if err := e.cache.MarkSessionImported(ctx); err != nil {
		e.logger.Warn("failed to cache import marker", "error", err)
	}
	if err := e.cache.SaveProfile(ctx, profile); err != nil {
		e.logger.Warn("failed to cache imported profile", "error", err)
	}
	if len(merged) > 0 {
		if err := e.cache.SaveLinks(ctx, links); err != nil {
			e.logger.Warn("failed to cache imported links", "error", err)
		}
	}

	e.metrics.ObserveImport()
	e.logger.Info("imported social profile", "links", len(merged))
	e.sendEvent(importEvent(len(merged)))
	return true
}

// AddLink appends a link with a trimmed title and a URL normalized to https when it lacks a web scheme.
//
// Empty input is rejected without any state change or persistence.
func (e *Engine) AddLink(ctx context.Context, title, url string) (models.Link, bool) {
	title, url = strings.TrimSpace(title), strings.TrimSpace(url)
	if title == "" || url == "" {
		return models.Link{}, false
	}

	e.mu.Lock()
	link := models.Link{
		ID:    e.newID(),
		Title: title,
		URL:   shared.NormalizeLinkURL(url),
		Order: e.links.NextOrder(),
	}
	e.links = append(e.links.Clone(), link)
	links := e.links.Clone()
	e.mu.Unlock()

	e.persistLinks(ctx, links)
	return link, true
}

// DeleteLink removes the link with id. It reports false, and persists nothing, when no such link exists.
func (e *Engine) DeleteLink(ctx context.Context, id string) bool {
	e.mu.Lock()
	links, ok := e.links.Without(id)
	if !ok {
		e.mu.Unlock()
		return false
	}
	e.links = links
	links = links.Clone()
	e.mu.Unlock()

	e.persistLinks(ctx, links)
	return true
}

// EditProfile replaces the profile. Name, bio and avatar URL are trimmed; a blank avatar clears it.
func (e *Engine) EditProfile(ctx context.Context, p models.Profile) models.Profile {
	p.Name = strings.TrimSpace(p.Name)
	p.Bio = strings.TrimSpace(p.Bio)
	p.AvatarURL = strings.TrimSpace(p.AvatarURL)

	e.mu.Lock()
	e.profile = p
	e.mu.Unlock()

	if err := e.cache.SaveProfile(ctx, p); err != nil {
		e.logger.Warn("failed to cache profile", "error", err)
	}
	e.pushAsync(ProfileObject, e.paths.Profile, p)
	return p
}

func (e *Engine) persistLinks(ctx context.Context, links models.LinkList) {
	if err := e.cache.SaveLinks(ctx, links); err != nil {
		e.logger.Warn("failed to cache links", "error", err)
	}
	e.pushAsync(LinksObject, e.paths.Links, links)
}

// pushAsync writes value to the remote store on a background goroutine when connected.
//
// The push keeps the session it started with; its result is dropped if that session has ended.
func (e *Engine) pushAsync(object, path string, value any) {
	e.mu.Lock()
	sess := e.session
	if e.state != Connected || sess == nil {
		e.mu.Unlock()
		return
	}
	e.inFlight++
	e.mu.Unlock()

	e.metrics.PushStarted()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.metrics.PushFinished()

		ctx := context.Background()
		err := sess.Storage().PutJSON(ctx, path, value)
		e.record(ctx, "push", object, err)

		e.mu.Lock()
		e.inFlight--
		if err == nil && e.session == sess {
			now := e.now()
			e.lastSync = &now
		}
		e.mu.Unlock()

		if err != nil {
			e.logger.Error("failed to push to homeserver", "object", object, "error", err)
		} else {
			e.logger.Debug("pushed to homeserver", "object", object)
		}
		e.sendEvent(pushEvent(object, err))
	}()
}

// Wait blocks until every background push has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Sync pushes the whole profile, then the whole link list. The first failure aborts and is returned.
func (e *Engine) Sync(ctx context.Context) (err error) {
	e.mu.Lock()
	sess := e.session
	if e.state != Connected || sess == nil {
		e.mu.Unlock()
		return shared.ErrNotConnected
	}
	profile, links := e.profile, e.links.Clone()
	e.inFlight++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		if err == nil && e.session == sess {
			now := e.now()
			e.lastSync = &now
		}
		e.mu.Unlock()
		e.metrics.ObserveSync(err)
		e.sendEvent(syncEvent(err))
	}()

	storage := sess.Storage()
	if err = storage.PutJSON(ctx, e.paths.Profile, profile); err != nil {
		e.record(ctx, "sync", ProfileObject, err)
		e.logger.Error("failed to sync profile", "error", err)
		return fmt.Errorf("sync %s: %w", ProfileObject, err)
	}
	e.record(ctx, "sync", ProfileObject, nil)

	if err = storage.PutJSON(ctx, e.paths.Links, links); err != nil {
		e.record(ctx, "sync", LinksObject, err)
		e.logger.Error("failed to sync links", "error", err)
		return fmt.Errorf("sync %s: %w", LinksObject, err)
	}
	e.record(ctx, "sync", LinksObject, nil)

	e.logger.Info("synced to homeserver", "links", len(links))
	return nil
}

// StartConnect begins an approval flow and returns the URL the user must approve.
//
// While a flow is pending its URL is returned again.
func (e *Engine) StartConnect(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initErr != nil {
		return "", e.initErr
	}
	switch e.state {
	case Connected:
		return "", shared.ErrAlreadyConnected
	case Authenticating:
		if e.flow != nil {
			return e.flow.AuthorizationURL(), nil
		}
	}

	flow, err := e.identity.StartAuthFlow(ctx, e.paths.Capabilities, services.SignIn)
	if err != nil {
		e.lastErr = err.Error()
		e.logger.Error("failed to start auth flow", "error", err)
		if errors.Is(err, shared.ErrAuthFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	e.flow = flow
	e.state = Authenticating
	e.lastErr = ""
	return flow.AuthorizationURL(), nil
}

// AwaitConnect waits for the pending flow to be approved, then establishes the session.
//
// On failure the engine returns to Anonymous so a new flow can be started.
func (e *Engine) AwaitConnect(ctx context.Context) error {
	e.mu.Lock()
	flow := e.flow
	e.mu.Unlock()
	if flow == nil {
		return shared.ErrNoAuthFlow
	}

	sess, err := flow.AwaitApproval(ctx)
	if err != nil {
		e.closeFlow(flow)

		e.mu.Lock()
		if e.flow == flow {
			e.flow = nil
			e.state = Anonymous
		}
		e.lastErr = err.Error()
		e.mu.Unlock()

		e.logger.Error("authentication failed", "error", err)
		e.sendEvent(authEvent("", err))
		if errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	return e.establish(ctx, flow, sess)
}

func (e *Engine) closeFlow(flow services.AuthFlow) {
	if err := flow.Close(); err != nil {
		e.logger.Warn("failed to close auth flow", "error", err)
	}
}

// establish switches to Connected, exports the session and runs the initial load and sync.
//
// A session approved for a flow that is no longer pending is signed out and discarded.
func (e *Engine) establish(ctx context.Context, flow services.AuthFlow, sess services.Session) error {
	e.mu.Lock()
	if e.flow != flow || e.state != Authenticating {
		e.mu.Unlock()
		e.logger.Warn("discarding approval for abandoned flow", "public_key", sess.PublicKey())
		if err := sess.Signout(ctx); err != nil {
			e.logger.Warn("sign-out of discarded session failed", "error", err)
		}
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrNoAuthFlow)
	}
	e.session = sess
	e.flow = nil
	e.state = Connected
	e.imported = NotImported
	e.socialSnp = nil
	e.lastErr = ""
	e.mu.Unlock()

	e.logger.Info("connected", "public_key", sess.PublicKey())
	e.sendEvent(authEvent(sess.PublicKey(), nil))

	if snapshot, err := sess.Export(); err != nil {
		e.logger.Warn("failed to export session", "error", err)
	} else if err := e.cache.SaveSessionSnapshot(ctx, snapshot); err != nil {
		e.logger.Warn("failed to cache session snapshot", "error", err)
	}

	e.FetchSocial(ctx)
	e.Load(ctx)
	if e.autoImp {
		e.ImportSocial(ctx, e.Social())
	}
	if err := e.Sync(ctx); err != nil {
		e.logger.Warn("initial sync failed", "error", err)
	}
	return nil
}

// Disconnect signs out, abandons any pending flow and forgets the session. Cached profile and links are left
// alone.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	sess, flow := e.session, e.flow
	e.session = nil
	e.flow = nil
	e.state = Anonymous
	e.imported = NotImported
	e.socialSnp = nil
	e.lastSync = nil
	e.mu.Unlock()

	if flow != nil {
		e.closeFlow(flow)
	}
	if sess != nil {
		if err := sess.Signout(ctx); err != nil {
			e.logger.Warn("sign-out failed", "error", err)
		}
	}
	if err := e.cache.ClearSessionSnapshot(ctx); err != nil {
		e.logger.Warn("failed to clear session snapshot", "error", err)
	}

	e.sendEvent(disconnectEvent())
	return nil
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{
		Profile:   e.profile,
		Links:     e.links.Sorted(),
		Social:    e.socialSnp,
		Session:   e.state,
		Import:    e.imported,
		Error:     e.lastErr,
		InitError: e.initErr,
		Sync: models.SyncState{
			Connected: e.state == Connected,
			InFlight:  e.inFlight,
		},
	}
	if e.session != nil {
		v.Sync.PublicKey = e.session.PublicKey()
	}
	if e.lastSync != nil {
		t := *e.lastSync
		v.Sync.LastSync = &t
	}
	if e.flow != nil {
		v.AuthURL = e.flow.AuthorizationURL()
	}
	return v
}
