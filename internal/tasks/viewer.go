package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/services"
	"github.com/desertthunder/pubkytree/internal/shared"
)

// PublicViewer builds the read-only page of any identity from the social index and its public link list.
type PublicViewer struct {
	social     services.SocialIndex
	storage    services.PublicStorage
	linksPath  string
	staticBase string
	logger     *log.Logger
}

// PublicViewerOpts configures a [PublicViewer]. LinksPath defaults to [DefaultPaths].
type PublicViewerOpts struct {
	Social        services.SocialIndex
	Storage       services.PublicStorage
	LinksPath     string
	StaticBaseURL string
	Logger        *log.Logger
}

func NewPublicViewer(opts PublicViewerOpts) *PublicViewer {
	v := &PublicViewer{
		social:     opts.Social,
		storage:    opts.Storage,
		linksPath:  opts.LinksPath,
		staticBase: opts.StaticBaseURL,
		logger:     opts.Logger,
	}
	if v.linksPath == "" {
		v.linksPath = DefaultPaths().Links
	}
	if v.logger == nil {
		v.logger = log.New(io.Discard)
	}
	return v
}

// View fetches the social snapshot and the app link list of pubkey concurrently.
//
// App links come first, then social links with unseen URLs. Without a social snapshot the returned profile has
// Found=false and the error is [shared.ErrProfileNotFound]; a missing app link list is not an error.
func (v *PublicViewer) View(ctx context.Context, pubkey string) (*models.PublicProfile, error) {
	key := shared.CleanPublicKey(pubkey)
	if key == "" {
		return nil, fmt.Errorf("%w: public key", shared.ErrMissingArgument)
	}

	var (
		g        errgroup.Group
		snapshot *models.SocialProfile
		appLinks models.LinkList
	)

	g.Go(func() error {
		if v.social == nil {
			return nil
		}
		s, err := v.social.User(ctx, key)
		if err != nil {
			if !errors.Is(err, shared.ErrProfileNotIndexed) {
				v.logger.Warn("failed to fetch social profile", "public_key", key, "error", err)
			}
			return nil
		}
		snapshot = s
		return nil
	})
	g.Go(func() error {
		if v.storage == nil {
			return nil
		}
		var links models.LinkList
		if err := v.storage.GetJSON(ctx, shared.PubkyAddress(key, v.linksPath), &links); err != nil {
			v.logger.Debug("no app links", "public_key", key, "error", err)
			return nil
		}
		appLinks = links
		return nil
	})
	_ = g.Wait()

	out := &models.PublicProfile{PublicKey: key, Links: models.LinkList{}}
	if snapshot == nil {
		if len(appLinks) > 0 {
			out.Links = models.MergeByURL(nil, appLinks.Sorted())
		}
		return out, fmt.Errorf("%w: %s", shared.ErrProfileNotFound, key)
	}

	details, counts := snapshot.Details, snapshot.Counts
	out.Found = true
	out.Details = &details
	out.Counts = &counts
	out.AvatarURL = services.ResolveAvatar(v.staticBase, details.Image, "")

	if len(appLinks) == 0 {
		out.Links = snapshot.Links()
		return out, nil
	}
	out.Links = models.MergeByURL(models.MergeByURL(nil, appLinks.Sorted()), snapshot.Links())
	return out, nil
}
