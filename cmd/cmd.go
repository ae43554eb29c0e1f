// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/formatter"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

func prettyFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "pretty",
		Usage: "Pretty-print output",
		Value: true,
	}
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of users to return",
		Value: 10,
	}
}

// setupCommand handles first-run configuration and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and initialize the local cache database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   defaultConfigPath,
			},
		},
		Action: r.Setup,
	}
}

// connectCommand starts the signer approval flow.
func connectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "connect",
		Aliases: []string{"login"},
		Usage:   "Connect to your homeserver by approving the request in Pubky Ring",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the QR code in the default browser",
			},
		},
		Action: r.Connect,
	}
}

func disconnectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "disconnect",
		Aliases: []string{"logout"},
		Usage:   "Sign out and forget the stored session (local data is kept)",
		Action:  r.Disconnect,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show connection state, last sync and recent sync history",
		Flags: []cli.Flag{
			jsonFlag(),
			&cli.IntFlag{
				Name:  "history",
				Usage: "Number of sync log entries to show",
				Value: 5,
			},
		},
		Action: r.Status,
	}
}

// profileCommand handles profile operations
func profileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Show or edit your profile",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the current profile",
				Flags:  []cli.Flag{jsonFlag(), prettyFlag()},
				Action: r.ProfileShow,
			},
			{
				Name:  "edit",
				Usage: "Update profile fields; omitted flags keep their value",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					&cli.StringFlag{Name: "bio", Usage: "Short bio"},
					&cli.StringFlag{Name: "avatar", Usage: "Avatar image URL"},
				},
				Action: r.ProfileEdit,
			},
		},
	}
}

// linksCommand handles link list operations
func linksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "links",
		Usage: "Manage your links",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List links in display order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (" + strings.Join(formatter.Formats, ", ") + ")",
						Value:   formatter.FormatText,
					},
				},
				Action: r.LinksList,
			},
			{
				Name:  "add",
				Usage: "Add a link",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "title"},
					&cli.StringArg{Name: "url"},
				},
				Action: r.LinksAdd,
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Usage:   "Delete a link by ID",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.LinksDelete,
			},
			{
				Name:  "export",
				Usage: "Export the profile and links to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (" + strings.Join(formatter.Formats, ", ") + ")",
						Value:   formatter.FormatJSON,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Output file path",
						Required: true,
					},
				},
				Action: r.LinksExport,
			},
		},
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Push the profile and links to the homeserver",
		Action: r.Sync,
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "import",
		Usage:  "Import name, bio, avatar and links from your Pubky social profile",
		Action: r.Import,
	}
}

// publicCommand renders any identity's public page
func publicCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "public",
		Usage: "Show the public page of a pubky",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "pubkey"},
		},
		Flags: []cli.Flag{
			jsonFlag(),
			prettyFlag(),
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print markdown without terminal styling",
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Word wrap width",
				Value: 80,
			},
		},
		Action: r.Public,
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search the social index for users",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags:  []cli.Flag{jsonFlag(), limitFlag()},
		Action: r.Search,
	}
}

func popularCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "popular",
		Usage:  "List pioneer users from the social index",
		Flags:  []cli.Flag{jsonFlag(), limitFlag()},
		Action: r.Popular,
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve public pages, health and metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for the interactive dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive dashboard",
		Action:  r.TUI,
	}
}
