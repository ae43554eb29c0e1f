package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/pubkytree/internal/shared"
)

// fakeHomeserver stores objects in memory and requires "Bearer <token>" on every request.
type fakeHomeserver struct {
	token string

	mu       sync.Mutex
	objects  map[string][]byte
	signouts int
	failPut  bool
}

func (f *fakeHomeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/session" {
		if r.Method == http.MethodDelete {
			f.signouts++
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodHead, http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodGet {
			w.Write(data)
		}
	case http.MethodPut:
		if f.failPut {
			w.WriteHeader(http.StatusInsufficientStorage)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeHomeserver(t *testing.T) (*fakeHomeserver, *httptest.Server) {
	t.Helper()
	hs := &fakeHomeserver{token: "tok-123", objects: map[string][]byte{}}
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)
	return hs, srv
}

func approve(t *testing.T, authURL string, payload map[string]string) *http.Response {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("bad auth url: %v", err)
	}
	q := u.Query()
	if payload["secret"] == "" {
		payload["secret"] = q.Get("secret")
	}
	body, _ := json.Marshal(payload)
	resp, err := http.Post(q.Get("relay"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("approval post failed: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestHomeserverClient(t *testing.T) {
	t.Run("Approval Flow", func(t *testing.T) {
		_, hs := newFakeHomeserver(t)
		client := NewHomeserverClient(HomeserverOpts{ApprovalTimeout: 5 * time.Second})

		flow, err := client.StartAuthFlow(context.Background(), "/pub/pubkytree.app/:rw", SignIn)
		if err != nil {
			t.Fatalf("failed to start flow: %v", err)
		}

		authURL := flow.AuthorizationURL()
		if !strings.HasPrefix(authURL, "pubkyauth:///?") {
			t.Fatalf("unexpected auth url %s", authURL)
		}
		u, _ := url.Parse(authURL)
		if got := u.Query().Get("caps"); got != "/pub/pubkytree.app/:rw" {
			t.Errorf("unexpected caps %q", got)
		}

		resp := approve(t, authURL, map[string]string{
			"public_key": "abc123",
			"homeserver": hs.URL,
			"token":      "tok-123",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected approval accepted, got %d", resp.StatusCode)
		}

		sess, err := flow.AwaitApproval(context.Background())
		if err != nil {
			t.Fatalf("expected session, got %v", err)
		}
		if sess.PublicKey() != "abc123" {
			t.Errorf("unexpected public key %s", sess.PublicKey())
		}
	})

	t.Run("Approval Wrong Secret", func(t *testing.T) {
		client := NewHomeserverClient(HomeserverOpts{ApprovalTimeout: 5 * time.Second})
		flow, err := client.StartAuthFlow(context.Background(), "/pub/a/:rw", SignIn)
		if err != nil {
			t.Fatalf("failed to start flow: %v", err)
		}

		resp := approve(t, flow.AuthorizationURL(), map[string]string{"secret": "guess", "public_key": "a", "homeserver": "http://h", "token": "t"})
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}

		_, hs := newFakeHomeserver(t)
		resp = approve(t, flow.AuthorizationURL(), map[string]string{"public_key": "a", "homeserver": hs.URL, "token": "tok-123"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected the signer to still be accepted, got %d", resp.StatusCode)
		}
		sess, err := flow.AwaitApproval(context.Background())
		if err != nil || sess.PublicKey() != "a" {
			t.Errorf("expected session for a, got %v (%v)", sess, err)
		}
	})

	t.Run("Close Releases Relay", func(t *testing.T) {
		client := NewHomeserverClient(HomeserverOpts{ApprovalTimeout: 5 * time.Second})
		flow, err := client.StartAuthFlow(context.Background(), "/pub/a/:rw", SignIn)
		if err != nil {
			t.Fatalf("failed to start flow: %v", err)
		}
		u, _ := url.Parse(flow.AuthorizationURL())
		relay := u.Query().Get("relay")

		done := make(chan error, 1)
		go func() {
			_, err := flow.AwaitApproval(context.Background())
			done <- err
		}()

		if err := flow.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := flow.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}

		select {
		case err := <-done:
			if !errors.Is(err, shared.ErrAuthFailed) || !errors.Is(err, shared.ErrNoAuthFlow) {
				t.Errorf("expected closed flow error, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("AwaitApproval did not return after Close")
		}

		if resp, err := http.Post(relay, "application/json", strings.NewReader("{}")); err == nil {
			resp.Body.Close()
			t.Error("expected relay to stop listening")
		}
	})

	t.Run("Approval Timeout", func(t *testing.T) {
		client := NewHomeserverClient(HomeserverOpts{ApprovalTimeout: 20 * time.Millisecond})
		flow, err := client.StartAuthFlow(context.Background(), "/pub/a/:rw", SignUp)
		if err != nil {
			t.Fatalf("failed to start flow: %v", err)
		}
		if !strings.Contains(flow.AuthorizationURL(), "kind=signup") {
			t.Errorf("expected signup kind in %s", flow.AuthorizationURL())
		}

		_, err = flow.AwaitApproval(context.Background())
		if !errors.Is(err, shared.ErrAuthFailed) || !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected auth failure by timeout, got %v", err)
		}
	})

	t.Run("Approval Canceled", func(t *testing.T) {
		client := NewHomeserverClient(HomeserverOpts{})
		flow, err := client.StartAuthFlow(context.Background(), "/pub/a/:rw", SignIn)
		if err != nil {
			t.Fatalf("failed to start flow: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := flow.AwaitApproval(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("Missing Capabilities", func(t *testing.T) {
		client := NewHomeserverClient(HomeserverOpts{})
		if _, err := client.StartAuthFlow(context.Background(), "", SignIn); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Storage", func(t *testing.T) {
		fake, hs := newFakeHomeserver(t)
		client := NewHomeserverClient(HomeserverOpts{})
		sess := client.newSession(Credential{PublicKey: "abc", Homeserver: hs.URL, Token: "tok-123"})
		storage := sess.Storage()
		ctx := context.Background()
		path := "/pub/pubkytree.app/profile.json"

		exists, err := storage.Exists(ctx, path)
		if err != nil || exists {
			t.Fatalf("expected missing object, got %v %v", exists, err)
		}

		var missing map[string]string
		if err := storage.GetJSON(ctx, path, &missing); !errors.Is(err, shared.ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound, got %v", err)
		}

		if err := storage.PutJSON(ctx, path, map[string]string{"name": "B"}); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		exists, err = storage.Exists(ctx, path)
		if err != nil || !exists {
			t.Fatalf("expected object to exist, got %v %v", exists, err)
		}

		var got map[string]string
		if err := storage.GetJSON(ctx, path, &got); err != nil || got["name"] != "B" {
			t.Errorf("unexpected object %v (%v)", got, err)
		}

		fake.mu.Lock()
		fake.failPut = true
		fake.mu.Unlock()
		if err := storage.PutJSON(ctx, path, map[string]string{}); !errors.Is(err, shared.ErrRemoteWrite) {
			t.Errorf("expected ErrRemoteWrite, got %v", err)
		}
	})

	t.Run("Export And Restore", func(t *testing.T) {
		fake, hs := newFakeHomeserver(t)
		client := NewHomeserverClient(HomeserverOpts{})
		sess := client.newSession(Credential{PublicKey: "abc", Homeserver: hs.URL, Token: "tok-123"})

		snapshot, err := sess.Export()
		if err != nil {
			t.Fatalf("export failed: %v", err)
		}

		restored, err := client.RestoreSession(context.Background(), snapshot)
		if err != nil {
			t.Fatalf("restore failed: %v", err)
		}
		if restored.PublicKey() != "abc" {
			t.Errorf("unexpected public key %s", restored.PublicKey())
		}

		if err := restored.Signout(context.Background()); err != nil {
			t.Fatalf("signout failed: %v", err)
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		if fake.signouts != 1 {
			t.Errorf("expected one signout, got %d", fake.signouts)
		}
	})

	t.Run("Restore Rejected", func(t *testing.T) {
		_, hs := newFakeHomeserver(t)
		client := NewHomeserverClient(HomeserverOpts{})
		sess := client.newSession(Credential{PublicKey: "abc", Homeserver: hs.URL, Token: "stale"})
		snapshot, _ := sess.Export()

		if _, err := client.RestoreSession(context.Background(), snapshot); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("Restore Invalid Snapshot", func(t *testing.T) {
		client := NewHomeserverClient(HomeserverOpts{})
		for _, snapshot := range []string{"%%%", "bm90IGpzb24", "e30"} {
			if _, err := client.RestoreSession(context.Background(), snapshot); !errors.Is(err, shared.ErrInvalidSnapshot) {
				t.Errorf("snapshot %q: expected ErrInvalidSnapshot, got %v", snapshot, err)
			}
		}
	})
}

func TestHTTPPublicStorage(t *testing.T) {
	t.Run("Gateway", func(t *testing.T) {
		gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/abc/pub/pubkytree.app/links.json" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`[{"id": "1", "title": "A", "url": "https://a.com", "order": 0}]`))
		}))
		defer gw.Close()

		storage := NewHTTPPublicStorage(gw.URL, nil, nil)

		var links []map[string]any
		if err := storage.GetJSON(context.Background(), "pubky://abc/pub/pubkytree.app/links.json", &links); err != nil {
			t.Fatalf("expected links, got %v", err)
		}
		if len(links) != 1 {
			t.Errorf("expected one link, got %d", len(links))
		}

		err := storage.GetJSON(context.Background(), "pubky://other/pub/pubkytree.app/links.json", &links)
		if !errors.Is(err, shared.ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound, got %v", err)
		}
	})

	t.Run("Invalid Address", func(t *testing.T) {
		storage := NewHTTPPublicStorage("", nil, nil)
		var v any
		if err := storage.GetJSON(context.Background(), "ftp://nowhere", &v); !errors.Is(err, shared.ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL, got %v", err)
		}
	})
}
