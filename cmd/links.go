package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/formatter"
	"github.com/desertthunder/pubkytree/internal/shared"
	"github.com/desertthunder/pubkytree/internal/tasks"
)

// ProfileShow prints the current profile.
func (r *Runner) ProfileShow(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	p := engine.Snapshot().Profile
	if cmd.Bool("json") {
		return r.writeJSON(p, cmd.Bool("pretty"))
	}

	r.writePlain("Name:   %s\n", p.Name)
	r.writePlain("Bio:    %s\n", p.Bio)
	if p.AvatarURL != "" {
		r.writePlain("Avatar: %s\n", p.AvatarURL)
	}
	if p.PubkyAvatarURL != "" {
		r.writePlain("Pubky avatar: %s\n", p.PubkyAvatarURL)
	}
	return nil
}

// ProfileEdit replaces the fields given as flags and keeps the rest.
func (r *Runner) ProfileEdit(ctx context.Context, cmd *cli.Command) error {
	if !cmd.IsSet("name") && !cmd.IsSet("bio") && !cmd.IsSet("avatar") {
		return fmt.Errorf("%w: one of --name, --bio or --avatar", shared.ErrMissingArgument)
	}

	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	p := engine.Snapshot().Profile
	if cmd.IsSet("name") {
		p.Name = cmd.String("name")
	}
	if cmd.IsSet("bio") {
		p.Bio = cmd.String("bio")
	}
	if cmd.IsSet("avatar") {
		p.AvatarURL = cmd.String("avatar")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", shared.ErrInvalidInput)
	}

	saved := engine.EditProfile(ctx, p)
	r.logger.Debug("profile saved", "name", saved.Name)
	return r.writePlain("✓ Profile saved: %s\n", saved.Name)
}

// LinksList prints the links in display order in the requested format.
func (r *Runner) LinksList(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	view := engine.Snapshot()
	out, err := formatter.ExportLinks(cmd.String("format"), view.Profile, view.Links)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// LinksAdd appends a link. URLs without an http(s) scheme get https://.
func (r *Runner) LinksAdd(ctx context.Context, cmd *cli.Command) error {
	title := cmd.StringArg("title")
	url := cmd.StringArg("url")
	if strings.TrimSpace(title) == "" || strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: title and url", shared.ErrMissingArgument)
	}

	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	link, ok := engine.AddLink(ctx, title, url)
	if !ok {
		return fmt.Errorf("%w: title and url are required", shared.ErrInvalidInput)
	}
	return r.writePlain("✓ Added %s - %s [%s]\n", link.Title, link.URL, link.ID)
}

// LinksDelete removes the link with the given ID.
func (r *Runner) LinksDelete(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: link id", shared.ErrMissingArgument)
	}

	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	if !engine.DeleteLink(ctx, id) {
		return fmt.Errorf("%w: no link with id %q", shared.ErrInvalidArgument, id)
	}
	return r.writePlain("✓ Deleted %s\n", id)
}

// LinksExport writes the profile and links to a file.
func (r *Runner) LinksExport(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	path := cmd.String("output")
	view := engine.Snapshot()
	if err := formatter.WriteExport(format, path, view.Profile, view.Links); err != nil {
		return err
	}

	r.logger.Info("exported links", "format", format, "path", path, "count", len(view.Links))
	return r.writePlain("✓ Exported %d links to %s\n", len(view.Links), path)
}

// Sync pushes the profile and then the links, failing on the first write error.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	if err := engine.Sync(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Synced profile and %d links\n", len(engine.Snapshot().Links))
}

// Import copies the social profile into the local profile once per session, then syncs.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	view := engine.Snapshot()
	if view.Session != tasks.Connected {
		return fmt.Errorf("%w: run 'pubkytree connect' first", shared.ErrNotConnected)
	}
	if view.Import == tasks.Imported {
		return r.writePlain("Already imported for this session\n")
	}

	social := engine.Social()
	if social == nil {
		social = engine.FetchSocial(ctx)
	}
	if social == nil {
		return r.writePlain("Profile not yet indexed, nothing to import\n")
	}

	if !engine.ImportSocial(ctx, social) {
		return r.writePlain("Nothing to import\n")
	}
	if err := engine.Sync(ctx); err != nil {
		return err
	}

	p := engine.Snapshot().Profile
	return r.writePlain("✓ Imported %s with %d links\n", p.Name, len(engine.Snapshot().Links))
}
