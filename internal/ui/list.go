package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/pubkytree/internal/models"
)

var _ list.Item = linkItem{}

// linkItem wraps [models.Link] to implement [list.Item].
type linkItem struct {
	link models.Link
}

func (i linkItem) FilterValue() string { return i.link.Title + " " + i.link.URL }

func (i linkItem) Title() string {
	if i.link.Icon != "" {
		return i.link.Icon + " " + i.link.Title
	}
	return i.link.Title
}

func (i linkItem) Description() string {
	if i.link.Clicks > 0 {
		return fmt.Sprintf("%s • %d clicks", i.link.URL, i.link.Clicks)
	}
	return i.link.URL
}

func linkItems(links models.LinkList) []list.Item {
	items := make([]list.Item, len(links))
	for i, link := range links {
		items[i] = linkItem{link: link}
	}
	return items
}
