package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/shared"
)

// HTTPPublicStorage reads public objects by rewriting pubky:// addresses to web URLs.
//
// With a gateway set, addresses resolve to <gateway>/<key>/<path>; otherwise to https://_pubky.<key>/<path>.
type HTTPPublicStorage struct {
	api     *APIService
	gateway string
	metrics *metrics.Metrics
}

func NewHTTPPublicStorage(gateway string, client *http.Client, m *metrics.Metrics) *HTTPPublicStorage {
	return &HTTPPublicStorage{
		api:     NewAPIService("", client),
		gateway: gateway,
		metrics: m,
	}
}

func (p *HTTPPublicStorage) resolve(address string) (string, bool) {
	if p.gateway != "" {
		return shared.ResolveViaGateway(p.gateway, address)
	}
	return shared.ResolvePubkyURL(address)
}

// GetJSON fetches address and decodes it into v. A missing object yields [shared.ErrObjectNotFound].
func (p *HTTPPublicStorage) GetJSON(ctx context.Context, address string, v any) (err error) {
	defer func() { p.metrics.ObserveRemote("public_get", objectName(address), err) }()

	target, ok := p.resolve(address)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrInvalidURL, address)
	}

	resp, err := p.api.Get(ctx, target)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", shared.ErrObjectNotFound, address)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: public get status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return resp.Decode(v)
}
