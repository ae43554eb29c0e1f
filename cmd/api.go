package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/formatter"
	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/shared"
)

// Public renders the public page of any identity: social profile plus app links.
func (r *Runner) Public(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("pubkey")
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: pubkey", shared.ErrMissingArgument)
	}

	view, err := r.Viewer().View(ctx, key)
	if view == nil {
		return err
	}

	if cmd.Bool("json") {
		if werr := r.writeJSON(view, cmd.Bool("pretty")); werr != nil {
			return werr
		}
		return err
	}

	md := formatter.PublicProfileMarkdown(view)
	if cmd.Bool("raw") {
		if _, werr := r.output.Write(md); werr != nil {
			return fmt.Errorf("failed to write output: %w", werr)
		}
		return err
	}

	rendered, rerr := formatter.RenderMarkdown(md, int(cmd.Int("width")))
	if rerr != nil {
		r.logger.Warn("failed to render markdown, printing raw", "error", rerr)
		rendered = string(md)
	}
	r.writePlain("%s", rendered)

	if errors.Is(err, shared.ErrProfileNotFound) {
		r.logger.Debug("public profile not indexed", "pubkey", view.PublicKey)
	}
	return err
}

// Search queries the social index for users by name.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}

	r.logger.Infof("searching users for %q", query)

	users, err := r.social.SearchUsers(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeUsers(fmt.Sprintf("Search: %s", query), users, cmd.Bool("json"))
}

// Popular lists the social index's pioneer users.
func (r *Runner) Popular(ctx context.Context, cmd *cli.Command) error {
	users, err := r.social.PopularUsers(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeUsers("Pioneers", users, cmd.Bool("json"))
}

func (r *Runner) writeUsers(title string, users []models.SocialDetails, asJSON bool) error {
	if asJSON {
		return r.writeJSON(users, true)
	}

	r.writePlainHeader(title)
	if len(users) == 0 {
		return r.writePlain("No users found\n")
	}
	for i, u := range users {
		name := u.Name
		if name == "" {
			name = "Anonymous"
		}
		r.writePlain("%d. %s\n", i+1, name)
		r.writePlain("   pubky%s\n", u.ID)
		if u.Bio != "" {
			r.writePlain("   %s\n", u.Bio)
		}
	}
	return nil
}
