// package formatter exports profiles and link lists to various formats (JSON, YAML, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"

	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/shared"
)

// Format names accepted by [ExportLinks].
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Formats lists the supported export formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML, FormatCSV, FormatMarkdown}

type linkDoc struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	URL    string `yaml:"url"`
	Icon   string `yaml:"icon,omitempty"`
	Order  int    `yaml:"order"`
	Clicks int    `yaml:"clicks"`
}

type profileDoc struct {
	Name           string    `yaml:"name"`
	Bio            string    `yaml:"bio"`
	AvatarURL      string    `yaml:"avatar_url,omitempty"`
	PubkyAvatarURL string    `yaml:"pubky_avatar_url,omitempty"`
	Links          []linkDoc `yaml:"links"`
}

// ExportLinks renders the profile and its links in format.
func ExportLinks(format string, p models.Profile, links models.LinkList) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return ExportToJSON(p, links)
	case FormatYAML, "yml":
		return ExportToYAML(p, links)
	case FormatCSV:
		return ExportToCSV(links)
	case FormatMarkdown, "md":
		return ExportToMarkdown(p, links)
	case FormatText, "":
		return ExportToText(p, links)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// ExportToJSON writes the profile with its sorted links as indented JSON
func ExportToJSON(p models.Profile, links models.LinkList) ([]byte, error) {
	doc := struct {
		models.Profile
		Links models.LinkList `json:"links"`
	}{Profile: p, Links: links.Sorted()}
	return shared.MarshalJSON(doc, true)
}

// ExportToYAML writes the profile with its sorted links as YAML
func ExportToYAML(p models.Profile, links models.LinkList) ([]byte, error) {
	doc := profileDoc{
		Name:           p.Name,
		Bio:            p.Bio,
		AvatarURL:      p.AvatarURL,
		PubkyAvatarURL: p.PubkyAvatarURL,
		Links:          make([]linkDoc, 0, len(links)),
	}
	for _, l := range links.Sorted() {
		doc.Links = append(doc.Links, linkDoc(l))
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return data, nil
}

// ExportToCSV converts links to CSV format with columns: ID, Title, URL, Order, Clicks
func ExportToCSV(links models.LinkList) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "URL", "Order", "Clicks"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, link := range links.Sorted() {
		record := []string{
			link.ID,
			link.Title,
			link.URL,
			strconv.Itoa(link.Order),
			strconv.Itoa(link.Clicks),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts the profile to a Markdown page with a numbered link list
func ExportToMarkdown(p models.Profile, links models.LinkList) ([]byte, error) {
	var buf bytes.Buffer

	name := p.Name
	if name == "" {
		name = "Untitled"
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", name))

	if p.AvatarURL != "" {
		buf.WriteString(fmt.Sprintf("![Avatar](%s)\n\n", p.AvatarURL))
	}
	if p.Bio != "" {
		buf.WriteString(p.Bio + "\n\n")
	}

	buf.WriteString("## Links\n\n")
	writeMarkdownLinks(&buf, links.Sorted())

	return buf.Bytes(), nil
}

// ExportToText converts the profile to plain text format
func ExportToText(p models.Profile, links models.LinkList) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Profile: %s\n", p.Name))
	if p.Bio != "" {
		buf.WriteString(fmt.Sprintf("Bio: %s\n", p.Bio))
	}
	buf.WriteString(fmt.Sprintf("Links: %d\n\n", len(links)))

	for i, link := range links.Sorted() {
		icon := ""
		if link.Icon != "" {
			icon = link.Icon + " "
		}
		buf.WriteString(fmt.Sprintf("%d. %s%s - %s [%s]\n", i+1, icon, link.Title, link.URL, link.ID))
	}

	return buf.Bytes(), nil
}

// PublicProfileMarkdown renders the merged public view of an identity.
func PublicProfileMarkdown(view *models.PublicProfile) []byte {
	var buf bytes.Buffer

	if view == nil || !view.Found || view.Details == nil {
		buf.WriteString("# Profile not found\n\n")
		if view != nil {
			buf.WriteString(fmt.Sprintf("`%s` is not indexed yet.\n\n", view.PublicKey))
			if len(view.Links) > 0 {
				buf.WriteString("## Links\n\n")
				writeMarkdownLinks(&buf, view.Links)
			}
		}
		return buf.Bytes()
	}

	d := view.Details
	name := d.Name
	if name == "" {
		name = "Anonymous"
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", name))
	if view.AvatarURL != "" {
		buf.WriteString(fmt.Sprintf("![Avatar](%s)\n\n", view.AvatarURL))
	}
	if d.Bio != "" {
		buf.WriteString(d.Bio + "\n\n")
	}
	if view.Counts != nil {
		c := view.Counts
		buf.WriteString(fmt.Sprintf("**%d** followers · **%d** following · **%d** posts\n\n", c.Followers, c.Following, c.Posts))
	}

	buf.WriteString("## Links\n\n")
	if len(view.Links) == 0 {
		buf.WriteString("_No links yet._\n\n")
	} else {
		writeMarkdownLinks(&buf, view.Links)
	}
	buf.WriteString(fmt.Sprintf("`pubky%s`\n", view.PublicKey))

	return buf.Bytes()
}

func writeMarkdownLinks(buf *bytes.Buffer, links models.LinkList) {
	for i, link := range links {
		title := link.Title
		if title == "" {
			title = link.URL
		}
		buf.WriteString(fmt.Sprintf("%d. [%s](%s)\n", i+1, title, link.URL))
	}
	buf.WriteString("\n")
}

// RenderMarkdown styles Markdown for the terminal using the dark glamour theme.
func RenderMarkdown(md []byte, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := renderer.RenderBytes(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return string(out), nil
}

// WriteExport writes the profile in format to path.
func WriteExport(format, path string, p models.Profile, links models.LinkList) error {
	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}

	data, err := ExportLinks(format, p, links)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
