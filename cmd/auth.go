package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/shared"
	"github.com/desertthunder/pubkytree/internal/tasks"
)

// Connect prints the authorization URL and blocks until the signer approves it.
func (r *Runner) Connect(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	url, err := engine.StartConnect(ctx)
	if errors.Is(err, shared.ErrAlreadyConnected) {
		return r.writePlain("Already connected as pubky%s\n", engine.Snapshot().Sync.PublicKey)
	} else if err != nil {
		return err
	}

	r.writePlainHeader("Approve with Pubky Ring")
	r.writePlain("%s\n\n", url)
	qr := shared.QRCodeURL(url)
	r.writePlain("QR code: %s\n", qr)

	if cmd.Bool("open") {
		if err := shared.OpenBrowser(qr); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.logger.Info("waiting for approval")
	if err := engine.AwaitConnect(ctx); err != nil {
		return err
	}

	view := engine.Snapshot()
	r.writePlainln("✓ Connected as pubky%s", view.Sync.PublicKey)
	if base := r.config.Server.PublicBaseURL; base != "" {
		r.writePlain("Share: %s\n", shared.ShareURL(base, view.Sync.PublicKey))
	}
	if view.Import == tasks.Imported {
		r.writePlain("Imported profile from your Pubky social profile\n")
	}
	return nil
}

// Disconnect signs out. The local profile and links stay in the cache.
func (r *Runner) Disconnect(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	if engine.Snapshot().Session != tasks.Connected {
		return r.writePlain("Not connected\n")
	}
	if err := engine.Disconnect(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Disconnected (local data kept)\n")
}

type statusReport struct {
	Session     string              `json:"session"`
	PublicKey   string              `json:"publicKey,omitempty"`
	ShareURL    string              `json:"shareUrl,omitempty"`
	LastSync    *time.Time          `json:"lastSync,omitempty"`
	LastSuccess *time.Time          `json:"lastSuccess,omitempty"`
	InFlight    int                 `json:"inFlight"`
	Import      string              `json:"import"`
	Links       int                 `json:"links"`
	Error       string              `json:"error,omitempty"`
	History     []models.SyncRecord `json:"history,omitempty"`
}

func (r *Runner) statusReport(ctx context.Context, engine *tasks.Engine, history int) statusReport {
	view := engine.Snapshot()
	report := statusReport{
		Session:   view.Session.String(),
		PublicKey: view.Sync.PublicKey,
		LastSync:  view.Sync.LastSync,
		InFlight:  view.Sync.InFlight,
		Import:    view.Import.String(),
		Links:     len(view.Links),
		Error:     view.Error,
	}
	if view.InitError != nil {
		report.Error = view.InitError.Error()
	}
	if view.Sync.PublicKey != "" && r.config.Server.PublicBaseURL != "" {
		report.ShareURL = shared.ShareURL(r.config.Server.PublicBaseURL, view.Sync.PublicKey)
	}

	if r.journal != nil {
		if last, err := r.journal.LastSuccess(ctx); err != nil {
			r.logger.Warn("failed to read sync log", "error", err)
		} else {
			report.LastSuccess = last
		}
		if history > 0 {
			if records, err := r.journal.Recent(ctx, history); err != nil {
				r.logger.Warn("failed to read sync log", "error", err)
			} else {
				report.History = records
			}
		}
	}
	return report
}

// Status prints the session state and the most recent sync log entries.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	report := r.statusReport(ctx, engine, int(cmd.Int("history")))
	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader("PubkyTree Status")
	r.writePlain("Session:   %s\n", report.Session)
	if report.PublicKey != "" {
		r.writePlain("Pubky:     pubky%s\n", report.PublicKey)
	}
	if report.ShareURL != "" {
		r.writePlain("Share:     %s\n", report.ShareURL)
	}
	r.writePlain("Links:     %d\n", report.Links)
	r.writePlain("Import:    %s\n", report.Import)
	r.writePlain("Last sync: %s\n", formatTime(report.LastSync))
	if report.LastSuccess != nil {
		r.writePlain("Last successful write: %s\n", formatTime(report.LastSuccess))
	}
	if report.Error != "" {
		r.writePlain("Error:     %s\n", report.Error)
	}

	if len(report.History) > 0 {
		r.writePlainln("Recent activity:")
		for _, rec := range report.History {
			mark := "✓"
			if !rec.Success {
				mark = "✗"
			}
			line := fmt.Sprintf("%s %s %s/%s", mark, rec.CreatedAt.Local().Format(time.DateTime), rec.Operation, rec.Object)
			if rec.Message != "" {
				line += " - " + rec.Message
			}
			r.writePlain("%s\n", line)
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
