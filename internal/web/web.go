// Package web renders the public link page of an identity as server-side HTML.
//
// It mirrors the JSON surface in [server.PublicHandler]: the same merged view (app links first, then social
// links with unseen URLs) is rendered through an [html/template] so a share URL opens as a page in a browser.
//
// Routes
//
//	GET /{pubkey} → profile card and links, 404 page for identities the index can't return
package web

import (
	"bytes"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/server"
	"github.com/desertthunder/pubkytree/internal/shared"
)

var _ server.Handler = (*ProfilePage)(nil)

const pageTemplate = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · PubkyTree</title>
</head>
<body>
<main class="card">
{{- if .Found}}
{{- if .AvatarURL}}
<img class="avatar" src="{{.AvatarURL}}" alt="{{.Title}}">
{{- end}}
<h1>{{.Title}}</h1>
{{- with .Bio}}
<p class="bio">{{.}}</p>
{{- end}}
{{- with .Counts}}
<p class="counts"><strong>{{.Followers}}</strong> followers · <strong>{{.Following}}</strong> following · <strong>{{.Posts}}</strong> posts</p>
{{- end}}
{{- else}}
<h1>Profile not found</h1>
<p><code>{{.PublicKey}}</code> is not indexed yet.</p>
{{- end}}
{{- if .Links}}
<ul class="links">
{{- range .Links}}
<li><a href="{{.URL}}" rel="noopener">{{if .Icon}}{{.Icon}} {{end}}{{.Title}}</a></li>
{{- end}}
</ul>
{{- else if .Found}}
<p class="empty">No links yet.</p>
{{- end}}
<footer><code>pubky{{.PublicKey}}</code></footer>
</main>
</body>
</html>
`

var page = template.Must(template.New("profile").Parse(pageTemplate))

type pageData struct {
	Found     bool
	Title     string
	Bio       string
	AvatarURL string
	PublicKey string
	Counts    *models.SocialCounts
	Links     models.LinkList
}

func newPageData(key string, view *models.PublicProfile) pageData {
	data := pageData{PublicKey: key, Title: "Profile not found"}
	if view == nil {
		return data
	}

	data.Links = view.Links
	data.Counts = view.Counts
	data.AvatarURL = view.AvatarURL
	if view.Found && view.Details != nil {
		data.Found = true
		data.Title = view.Details.Name
		data.Bio = view.Details.Bio
		if data.Title == "" {
			data.Title = "Anonymous"
		}
	}
	return data
}

// ProfilePage serves the HTML public page.
type ProfilePage struct {
	viewer server.ProfileViewer
	logger *log.Logger
}

func NewProfilePage(viewer server.ProfileViewer, logger *log.Logger) *ProfilePage {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ProfilePage{viewer: viewer, logger: logger}
}

func (p *ProfilePage) Routes() []string {
	return []string{"GET /{pubkey}"}
}

func (p *ProfilePage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := shared.CleanPublicKey(r.PathValue("pubkey"))
	if key == "" || strings.ContainsAny(key, "/ .") {
		http.NotFound(w, r)
		return
	}

	view, err := p.viewer.View(r.Context(), key)
	status := http.StatusOK
	if err != nil {
		p.logger.Debug("public profile not found", "pubkey", key, "error", err)
		status = http.StatusNotFound
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, newPageData(key, view)); err != nil {
		p.logger.Error("failed to render page", "pubkey", key, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
