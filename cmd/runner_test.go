package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/repositories"
	"github.com/desertthunder/pubkytree/internal/shared"
	tu "github.com/desertthunder/pubkytree/internal/testing"
	"github.com/desertthunder/pubkytree/internal/testing/fakes"
)

const testKey = "8um71us3fyw6h8wbcxb5ar3rwusy1a6u49956ikzojg3gcwd1dty"

type testEnv struct {
	runner   *Runner
	output   *bytes.Buffer
	identity *fakes.Identity
	social   *fakes.Social
	public   *fakes.PublicStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	config := shared.DefaultConfig()
	config.Cache.Backend = "memory"
	config.Sync.SeedDefaults = false

	env := &testEnv{
		output:   &bytes.Buffer{},
		identity: fakes.NewIdentity(testKey),
		social:   fakes.NewSocial(),
		public:   fakes.NewPublicStorage(),
	}
	env.runner = NewRunner(RunnerOpts{
		Config:   config,
		Logger:   shared.NewLogger(io.Discard),
		Output:   env.output,
		Identity: env.identity,
		Social:   env.social,
		Public:   env.public,
		Store:    repositories.NewMemoryStore(),
	})
	t.Cleanup(func() { env.runner.Close() })
	return env
}

// run executes args against a fresh command tree sharing the env's runner.
func (e *testEnv) run(args ...string) error {
	e.output.Reset()
	app := &cli.Command{
		Name:     "pubkytree",
		Commands: e.runner.register(),
		Writer:   io.Discard,
	}
	return app.Run(context.Background(), append([]string{"pubkytree"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			identity := fakes.NewIdentity(testKey)
			social := fakes.NewSocial()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Identity:   identity,
				Social:     social,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.identity != identity {
				t.Error("expected identity to be set")
			}
			if runner.social != social {
				t.Error("expected social to be set")
			}
			if runner.public == nil {
				t.Error("expected public storage to be built")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses configured timeout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.httpClient == nil || runner.httpClient.Timeout != runner.config.Nexus.Timeout.Duration {
				t.Error("expected http client with the nexus timeout")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("engine is lazy", func(t *testing.T) {
			env := newTestEnv(t)
			if env.runner.engine != nil {
				t.Fatal("expected no engine before first use")
			}

			first, err := env.runner.Engine(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			second, _ := env.runner.Engine(context.Background())
			if first != second {
				t.Error("expected the engine to be reused")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "connect", "disconnect", "status", "profile", "links", "sync", "import", "public", "search", "popular", "serve", "tui"} {
			if !names[want] {
				t.Errorf("expected %q to be registered", want)
			}
		}
	})
}

func TestLinkCommands(t *testing.T) {
	t.Run("add list and delete", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("links", "add", "Blog", "blog.example.com"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "https://blog.example.com") {
			t.Errorf("expected normalized URL in output, got %q", env.output.String())
		}

		if err := env.run("links", "list", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), `"title": "Blog"`) {
			t.Errorf("expected link in JSON export, got %q", env.output.String())
		}

		engine, _ := env.runner.Engine(context.Background())
		id := engine.Snapshot().Links[0].ID

		if err := env.run("links", "delete", id); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n := len(engine.Snapshot().Links); n != 0 {
			t.Errorf("expected no links, got %d", n)
		}
	})

	t.Run("add requires title and url", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.run("links", "add", "Blog")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument, got %v", err)
		}
	})

	t.Run("delete unknown id", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.run("links", "delete", "nope")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})

	t.Run("list rejects unknown format", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.run("links", "list", "--format", "xml")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})

	t.Run("export writes file", func(t *testing.T) {
		env := newTestEnv(t)
		path := filepath.Join(t.TempDir(), "links.csv")

		if err := env.run("links", "add", "Blog", "blog.example.com"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := env.run("links", "export", "--format", "csv", "--output", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, path)
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "https://blog.example.com") {
			t.Errorf("expected link in export, got %q", content)
		}
	})
}

func TestProfileCommands(t *testing.T) {
	t.Run("edit keeps omitted fields", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("profile", "edit", "--name", "Ada", "--bio", "Engineer"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := env.run("profile", "edit", "--bio", "Mathematician"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := env.run("profile", "show", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		if !strings.Contains(out, `"name": "Ada"`) || !strings.Contains(out, `"bio": "Mathematician"`) {
			t.Errorf("unexpected profile %q", out)
		}
	})

	t.Run("edit requires a flag", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("profile", "edit"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument, got %v", err)
		}
	})

	t.Run("edit rejects empty name", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("profile", "edit", "--name", "  "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected invalid input, got %v", err)
		}
	})
}

func TestSessionCommands(t *testing.T) {
	t.Run("sync requires connection", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("sync"); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected not connected, got %v", err)
		}
	})

	t.Run("import requires connection", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("import"); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected not connected, got %v", err)
		}
	})

	t.Run("connect status and disconnect", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("links", "add", "Blog", "blog.example.com"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if err := env.run("connect"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := env.output.String()
		if !strings.Contains(out, "pubkyauth:///") {
			t.Errorf("expected authorization URL, got %q", out)
		}
		if !strings.Contains(out, "Connected as pubky"+testKey) {
			t.Errorf("expected connected message, got %q", out)
		}
		if env.identity.Storage.Puts("/pub/pubkytree.app/links.json") == 0 {
			t.Error("expected links to be pushed after connect")
		}

		if err := env.run("connect"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Already connected") {
			t.Errorf("unexpected output %q", env.output.String())
		}

		if err := env.run("status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out = env.output.String()
		if !strings.Contains(out, `"session": "connected"`) || !strings.Contains(out, `"links": 1`) {
			t.Errorf("unexpected status %q", out)
		}
		if !strings.Contains(out, "/pub/"+testKey) {
			t.Errorf("expected share URL in status, got %q", out)
		}

		if err := env.run("sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if err := env.run("disconnect"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, _, signouts := env.identity.Calls(); signouts != 1 {
			t.Errorf("expected one sign-out, got %d", signouts)
		}

		engine, _ := env.runner.Engine(context.Background())
		if n := len(engine.Snapshot().Links); n != 1 {
			t.Errorf("expected local links to survive disconnect, got %d", n)
		}
	})

	t.Run("identity unavailable keeps local commands", func(t *testing.T) {
		env := newTestEnv(t)
		env.runner.identity = nil

		if err := env.run("links", "add", "Blog", "blog.example.com"); err != nil {
			t.Fatalf("expected local command to work, got %v", err)
		}
		if err := env.run("status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), shared.ErrIdentityUnavailable.Error()) {
			t.Errorf("expected status to report the init error, got %q", env.output.String())
		}
		if err := env.run("connect"); !errors.Is(err, shared.ErrIdentityUnavailable) {
			t.Errorf("expected ErrIdentityUnavailable, got %v", err)
		}
	})

	t.Run("import after connect", func(t *testing.T) {
		env := newTestEnv(t)
		env.runner.config.Sync.AutoImport = false
		env.social.Add(&models.SocialProfile{
			Details: models.SocialDetails{
				ID:    testKey,
				Name:  "Nexus Name",
				Links: []models.SocialLink{{Title: "GitHub", URL: "https://github.com/nexus"}},
			},
		})

		if err := env.run("connect"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := env.run("import"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Imported Nexus Name with 1 links") {
			t.Errorf("unexpected output %q", env.output.String())
		}

		if err := env.run("import"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Already imported") {
			t.Errorf("unexpected output %q", env.output.String())
		}
	})
}

func TestSocialCommands(t *testing.T) {
	seed := func(env *testEnv) {
		env.social.Add(&models.SocialProfile{
			Details: models.SocialDetails{ID: testKey, Name: "Nexus Name", Bio: "Hello"},
			Counts:  models.SocialCounts{Followers: 3},
		})
		env.public.Seed(shared.PubkyAddress(testKey, "/pub/pubkytree.app/links.json"), models.LinkList{
			{ID: "1", Title: "Blog", URL: "https://blog.example.com", Order: 0},
		})
	}

	t.Run("public renders markdown", func(t *testing.T) {
		env := newTestEnv(t)
		seed(env)

		if err := env.run("public", "--raw", "pubky"+testKey); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		for _, want := range []string{"# Nexus Name", "[Blog](https://blog.example.com)", "**3** followers"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in %q", want, out)
			}
		}
	})

	t.Run("public json", func(t *testing.T) {
		env := newTestEnv(t)
		seed(env)

		if err := env.run("public", "--json", testKey); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), `"found": true`) {
			t.Errorf("unexpected output %q", env.output.String())
		}
	})

	t.Run("public not found", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.run("public", "--raw", testKey)
		if !errors.Is(err, shared.ErrProfileNotFound) {
			t.Errorf("expected profile not found, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Profile not found") {
			t.Errorf("unexpected output %q", env.output.String())
		}
	})

	t.Run("public requires key", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("public"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument, got %v", err)
		}
	})

	t.Run("search and popular", func(t *testing.T) {
		env := newTestEnv(t)
		seed(env)

		if err := env.run("search", "nexus"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "pubky"+testKey) {
			t.Errorf("unexpected output %q", env.output.String())
		}

		if err := env.run("search", "nobody"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "No users found") {
			t.Errorf("unexpected output %q", env.output.String())
		}

		if err := env.run("popular", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), `"name": "Nexus Name"`) {
			t.Errorf("unexpected output %q", env.output.String())
		}
	})

	t.Run("index failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.social.Err = shared.ErrServiceUnavailable

		if err := env.run("popular"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected API request error, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("creates sqlite cache from existing config", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		dbPath := filepath.Join(dir, "cache.db")

		config := shared.DefaultConfig()
		config.Database.Path = dbPath
		if err := shared.SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		t.Cleanup(func() { runner.Close() })

		app := &cli.Command{Name: "pubkytree", Commands: runner.register(), Writer: io.Discard}
		if err := app.Run(context.Background(), []string{"pubkytree", "setup", "--config", configPath}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, dbPath)
		if runner.journal == nil {
			t.Error("expected sqlite backend to provide a sync log")
		}
	})
}

func TestServe(t *testing.T) {
	env := newTestEnv(t)
	env.runner.metrics = metrics.New()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Handler: newPublicRouter(env.runner)}
	done := make(chan error, 1)
	go func() { done <- env.runner.serve(ctx, srv, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
