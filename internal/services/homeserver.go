// Homeserver implementation of [IdentityClient], [Session] and [SessionStorage]
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/server"
	"github.com/desertthunder/pubkytree/internal/shared"
)

const defaultApprovalTimeout = 2 * time.Minute

// Credential identifies an authenticated session on a homeserver.
type Credential struct {
	PublicKey  string `json:"public_key"`
	Homeserver string `json:"homeserver"`
	Token      string `json:"token"`
}

func (c Credential) validate() error {
	if c.PublicKey == "" || c.Homeserver == "" || c.Token == "" {
		return fmt.Errorf("%w: credential is incomplete", shared.ErrInvalidSnapshot)
	}
	if !shared.HasWebScheme(c.Homeserver) {
		return fmt.Errorf("%w: homeserver %q is not an http(s) URL", shared.ErrInvalidSnapshot, c.Homeserver)
	}
	return nil
}

// HomeserverOpts configures a [HomeserverClient].
type HomeserverOpts struct {
	// CallbackAddr is the host:port the approval relay listens on. Port 0 picks a free port.
	CallbackAddr    string
	ApprovalTimeout time.Duration
	HTTPClient      *http.Client
	Logger          *log.Logger
	Metrics         *metrics.Metrics
}

// HomeserverClient talks to homeservers over HTTP.
type HomeserverClient struct {
	callbackAddr string
	timeout      time.Duration
	httpClient   *http.Client
	logger       *log.Logger
	metrics      *metrics.Metrics
}

// NewHomeserverClient creates a client from opts.
func NewHomeserverClient(opts HomeserverOpts) *HomeserverClient {
	timeout := opts.ApprovalTimeout
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	addr := opts.CallbackAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &HomeserverClient{
		callbackAddr: addr,
		timeout:      timeout,
		httpClient:   client,
		logger:       logger,
		metrics:      opts.Metrics,
	}
}

// StartAuthFlow opens the approval relay and returns the pubkyauth URL to hand to a signer.
func (c *HomeserverClient) StartAuthFlow(ctx context.Context, capabilities string, kind AuthFlowKind) (AuthFlow, error) {
	if capabilities == "" {
		return nil, fmt.Errorf("%w: capabilities", shared.ErrMissingArgument)
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", c.callbackAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start approval relay: %w", err)
	}

	secret := shared.GenerateSecret()
	handler := server.NewApprovalHandler(secret)
	router := server.NewBasicRouter()
	router.Use(server.Logging(c.logger))
	router.Handler(handler)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	relay := "http://" + ln.Addr().String() + "/approve"
	q := url.Values{}
	q.Set("caps", capabilities)
	q.Set("secret", secret)
	q.Set("relay", relay)
	if kind == SignUp {
		q.Set("kind", kind.String())
	}

	c.logger.Debug("approval relay listening", "relay", relay, "kind", kind)

	return &homeserverFlow{
		client:    c,
		authURL:   "pubkyauth:///?" + q.Encode(),
		handler:   handler,
		srv:       srv,
		serverErr: serverErr,
		closed:    make(chan struct{}),
	}, nil
}

// RestoreSession decodes a snapshot and checks with the homeserver that the session is still valid.
func (c *HomeserverClient) RestoreSession(ctx context.Context, snapshot string) (Session, error) {
	cred, err := decodeSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	sess := c.newSession(cred)
	resp, err := sess.api.Get(ctx, "/session")
	if err != nil {
		return nil, err
	}

	switch {
	case resp.OK():
		return sess, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: session rejected with status %d", shared.ErrAuthFailed, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: session check status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
}

// newSession binds cred's bearer token to every request sent to its homeserver.
func (c *HomeserverClient) newSession(cred Credential) *homeserverSession {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	token := &oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer"}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	return &homeserverSession{
		cred:    cred,
		api:     NewAPIService(cred.Homeserver, httpClient),
		metrics: c.metrics,
	}
}

func decodeSnapshot(snapshot string) (Credential, error) {
	var cred Credential
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(snapshot))
	if err != nil {
		return cred, fmt.Errorf("%w: %v", shared.ErrInvalidSnapshot, err)
	}
	if err := json.Unmarshal(raw, &cred); err != nil {
		return cred, fmt.Errorf("%w: %v", shared.ErrInvalidSnapshot, err)
	}
	return cred, cred.validate()
}

type homeserverFlow struct {
	client    *HomeserverClient
	authURL   string
	handler   *server.ApprovalHandler
	srv       *http.Server
	serverErr chan error

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func (f *homeserverFlow) AuthorizationURL() string {
	return f.authURL
}

// Close shuts the relay down. It is safe to call more than once.
func (f *homeserverFlow) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.closeErr = f.srv.Shutdown(shutdownCtx)
	})
	return f.closeErr
}

// AwaitApproval waits for the relay callback. The relay is shut down on return.
func (f *homeserverFlow) AwaitApproval(ctx context.Context) (Session, error) {
	defer f.Close()

	timer := time.NewTimer(f.client.timeout)
	defer timer.Stop()

	select {
	case result := <-f.handler.Result():
		if err := result.Error(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		cred := Credential{
			PublicKey:  result.Credential.PublicKey,
			Homeserver: result.Credential.Homeserver,
			Token:      result.Credential.Token,
		}
		if err := cred.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		return f.client.newSession(cred), nil
	case err := <-f.serverErr:
		return nil, fmt.Errorf("%w: approval relay: %v", shared.ErrAuthFailed, err)
	case <-f.closed:
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrNoAuthFlow)
	case <-timer.C:
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, ctx.Err())
	}
}

type homeserverSession struct {
	cred    Credential
	api     *APIService
	metrics *metrics.Metrics
}

func (s *homeserverSession) PublicKey() string {
	return s.cred.PublicKey
}

func (s *homeserverSession) Storage() SessionStorage {
	return &homeserverStorage{api: s.api, metrics: s.metrics}
}

// Export encodes the credential as unpadded base64url JSON.
func (s *homeserverSession) Export() (string, error) {
	raw, err := json.Marshal(s.cred)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func (s *homeserverSession) Signout(ctx context.Context) error {
	resp, err := s.api.Delete(ctx, "/session")
	if err != nil {
		return err
	}
	if !resp.OK() && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("%w: signout status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return nil
}

type homeserverStorage struct {
	api     *APIService
	metrics *metrics.Metrics
}

func objectName(path string) string {
	name := path[strings.LastIndex(path, "/")+1:]
	return strings.TrimSuffix(name, ".json")
}

func storagePath(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}

func (s *homeserverStorage) Exists(ctx context.Context, path string) (exists bool, err error) {
	defer func() { s.metrics.ObserveRemote("exists", objectName(path), err) }()

	resp, err := s.api.Head(ctx, storagePath(path))
	if err != nil {
		return false, err
	}
	switch {
	case resp.OK():
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: exists %s status %d", shared.ErrAPIRequest, path, resp.StatusCode)
	}
}

func (s *homeserverStorage) GetJSON(ctx context.Context, path string, v any) (err error) {
	defer func() { s.metrics.ObserveRemote("get", objectName(path), err) }()

	resp, err := s.api.Get(ctx, storagePath(path))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", shared.ErrObjectNotFound, path)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: get %s status %d", shared.ErrAPIRequest, path, resp.StatusCode)
	}
	return resp.Decode(v)
}

func (s *homeserverStorage) PutJSON(ctx context.Context, path string, v any) (err error) {
	defer func() { s.metrics.ObserveRemote("put", objectName(path), err) }()

	resp, err := s.api.PutJSON(ctx, storagePath(path), v)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRemoteWrite, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: put %s status %d", shared.ErrRemoteWrite, path, resp.StatusCode)
	}
	return nil
}
