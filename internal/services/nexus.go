// Social index (Pubky Nexus) implementation of [SocialIndex]
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/shared"
)

const defaultSearchLimit = 10

// NexusOpts configures a [NexusService].
type NexusOpts struct {
	BaseURL       string
	StaticBaseURL string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	HTTPClient *http.Client
	Logger     *log.Logger
	Metrics    *metrics.Metrics
}

// NexusService queries the social indexer.
type NexusService struct {
	api        *APIService
	staticBase string
	limiter    *rate.Limiter
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// NewNexusService creates a client from opts.
func NewNexusService(opts NexusOpts) *NexusService {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &NexusService{
		api:        NewAPIService(opts.BaseURL, opts.HTTPClient),
		staticBase: opts.StaticBaseURL,
		limiter:    limiter,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

type nexusError struct {
	Error *string `json:"error"`
}

func (n *NexusService) get(ctx context.Context, endpoint, path string) (*APIResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := n.api.Get(ctx, path)
	if err == nil && resp.StatusCode != http.StatusNotFound && !resp.OK() {
		err = fmt.Errorf("%w: nexus status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	n.metrics.ObserveNexus(endpoint, start, err)
	return resp, err
}

// User returns the indexed details and counts for id. A leading "pubky" on id is ignored.
//
// A 404 or an {"error": ...} body yields [shared.ErrProfileNotIndexed].
func (n *NexusService) User(ctx context.Context, id string) (*models.SocialProfile, error) {
	clean := shared.CleanPublicKey(id)
	if clean == "" {
		return nil, fmt.Errorf("%w: public key", shared.ErrMissingArgument)
	}

	resp, err := n.get(ctx, "user", "/user/"+url.PathEscape(clean))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		n.logger.Debug("user not indexed yet", "id", clean)
		return nil, shared.ErrProfileNotIndexed
	}

	var apiErr nexusError
	if resp.Decode(&apiErr) == nil && apiErr.Error != nil {
		n.logger.Debug("nexus returned an error body", "id", clean, "error", *apiErr.Error)
		return nil, shared.ErrProfileNotIndexed
	}

	var profile models.SocialProfile
	if err := resp.Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SearchUsers returns at most limit profiles matching query.
func (n *NexusService) SearchUsers(ctx context.Context, query string, limit int) ([]models.SocialDetails, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	path := fmt.Sprintf("/search/users?query=%s&limit=%d", url.QueryEscape(query), limit)
	return n.list(ctx, "search", path)
}

// PopularUsers returns at most limit profiles from the pioneers stream.
func (n *NexusService) PopularUsers(ctx context.Context, limit int) ([]models.SocialDetails, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	path := fmt.Sprintf("/stream/users?source=pioneers&limit=%d", limit)
	return n.list(ctx, "stream", path)
}

// list decodes an array body; any other JSON shape is an empty result.
func (n *NexusService) list(ctx context.Context, endpoint, path string) ([]models.SocialDetails, error) {
	resp, err := n.get(ctx, endpoint, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return []models.SocialDetails{}, nil
	}

	if _, ok := resp.JSONData.([]any); !ok {
		return []models.SocialDetails{}, nil
	}

	var out []models.SocialDetails
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// AvatarURL resolves the image to show for a profile. See [ResolveAvatar].
func (n *NexusService) AvatarURL(pubkyAvatar, fallback string) string {
	return ResolveAvatar(n.staticBase, pubkyAvatar, fallback)
}

// ResolveAvatar prefers a pubky.app file served by the indexer's static host, then an http(s) fallback.
// Returns "" when neither is usable.
func ResolveAvatar(staticBase, pubkyAvatar, fallback string) string {
	if pubkyAvatar != "" {
		if u, ok := shared.NexusStaticFileURL(staticBase, pubkyAvatar); ok {
			return u
		}
	}
	if shared.HasWebScheme(fallback) {
		return fallback
	}
	return ""
}

// IsNotIndexed reports whether err means the identity is unknown to the indexer.
func IsNotIndexed(err error) bool {
	return errors.Is(err, shared.ErrProfileNotIndexed)
}
