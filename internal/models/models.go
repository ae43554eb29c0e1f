// package models defines the data model for the link-in-bio engine
package models

import (
	"sort"
	"strconv"
	"time"
)

// Profile is the single public profile document of one identity.
type Profile struct {
	Name           string `json:"name"`
	Bio            string `json:"bio"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	PubkyAvatarURL string `json:"pubkyAvatarUrl,omitempty"`
}

// Link is one entry of the link list.
//
// ID is unique within a list, URL is the key used when merging lists.
type Link struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Icon   string `json:"icon,omitempty"`
	Order  int    `json:"order"`
	Clicks int    `json:"clicks,omitempty"`
}

// LinkList is an ordered collection of links. Display order comes from [Link.Order], not slice position.
type LinkList []Link

// Sorted returns a copy ordered by ascending Order. Equal orders keep their relative position.
func (l LinkList) Sorted() LinkList {
	out := l.Clone()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// NextOrder returns one past the maximum Order, or 0 for an empty list.
func (l LinkList) NextOrder() int {
	if len(l) == 0 {
		return 0
	}
	max := l[0].Order
	for _, link := range l[1:] {
		if link.Order > max {
			max = link.Order
		}
	}
	return max + 1
}

// Renumber returns a copy whose Order equals each link's position.
func (l LinkList) Renumber() LinkList {
	out := l.Clone()
	for i := range out {
		out[i].Order = i
	}
	return out
}

// Without returns a copy with every link whose ID equals id removed, and whether anything was removed.
func (l LinkList) Without(id string) (LinkList, bool) {
	out := make(LinkList, 0, len(l))
	removed := false
	for _, link := range l {
		if link.ID == id {
			removed = true
			continue
		}
		out = append(out, link)
	}
	return out, removed
}

// Find returns the link with the given ID.
func (l LinkList) Find(id string) (Link, bool) {
	for _, link := range l {
		if link.ID == id {
			return link, true
		}
	}
	return Link{}, false
}

// URLs returns the set of URLs present in the list.
func (l LinkList) URLs() map[string]struct{} {
	set := make(map[string]struct{}, len(l))
	for _, link := range l {
		set[link.URL] = struct{}{}
	}
	return set
}

// Clone returns a copy that shares no backing array with l. A nil list clones to an empty, non-nil list.
func (l LinkList) Clone() LinkList {
	out := make(LinkList, len(l))
	copy(out, l)
	return out
}

// MergeByURL returns every element of a in order, followed by each element of b whose URL has not been seen yet.
//
// Duplicates inside a are kept. Merging the result with b again yields the same list.
func MergeByURL(a, b LinkList) LinkList {
	out := make(LinkList, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, link := range a {
		seen[link.URL] = struct{}{}
		out = append(out, link)
	}
	for _, link := range b {
		if _, ok := seen[link.URL]; ok {
			continue
		}
		seen[link.URL] = struct{}{}
		out = append(out, link)
	}
	return out
}

// SocialLink is a link advertised on the social index.
type SocialLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SocialDetails is the indexed description of an identity.
type SocialDetails struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Bio       string       `json:"bio"`
	Image     string       `json:"image"`
	Links     []SocialLink `json:"links"`
	Status    string       `json:"status"`
	IndexedAt int64        `json:"indexed_at"`
}

// SocialCounts are the indexer's counters for an identity.
type SocialCounts struct {
	Tags      int `json:"tags"`
	Posts     int `json:"posts"`
	Followers int `json:"followers"`
	Following int `json:"following"`
	Friends   int `json:"friends"`
}

// SocialProfile is the read-only snapshot returned by the social index for one identity.
type SocialProfile struct {
	Details SocialDetails `json:"details"`
	Counts  SocialCounts  `json:"counts"`
}

// Links converts the advertised social links into a LinkList.
//
// Each link gets the ID "nexus-<index>", Order equal to its index and no clicks.
func (s *SocialProfile) Links() LinkList {
	if s == nil {
		return LinkList{}
	}
	out := make(LinkList, 0, len(s.Details.Links))
	for i, sl := range s.Details.Links {
		out = append(out, Link{
			ID:    "nexus-" + strconv.Itoa(i),
			Title: sl.Title,
			URL:   sl.URL,
			Order: i,
		})
	}
	return out
}

// SyncState is transient connection state. It is never persisted.
type SyncState struct {
	Connected bool       `json:"connected"`
	PublicKey string     `json:"publicKey,omitempty"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
	InFlight  int        `json:"inFlight"`
}

// Syncing reports whether any remote push is outstanding.
func (s SyncState) Syncing() bool {
	return s.InFlight > 0
}

// PublicProfile is the merged read-only view of any identity.
type PublicProfile struct {
	PublicKey string         `json:"publicKey"`
	Found     bool           `json:"found"`
	Details   *SocialDetails `json:"details,omitempty"`
	Counts    *SocialCounts  `json:"counts,omitempty"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	Links     LinkList       `json:"links"`
}

// DefaultProfile is the placeholder profile used before anything has been saved.
func DefaultProfile() Profile {
	return Profile{
		Name: "PubkyTree Demo",
		Bio:  "Your decentralized link-in-bio. Own your data, own your identity. 🔐",
	}
}

// DefaultLinks is the placeholder link list used before anything has been saved.
func DefaultLinks() LinkList {
	return LinkList{
		{ID: "1", Title: "My Website", URL: "https://example.com", Icon: "🌐", Order: 0, Clicks: 142},
		{ID: "2", Title: "Twitter / X", URL: "https://x.com", Icon: "🐦", Order: 1, Clicks: 89},
		{ID: "3", Title: "GitHub", URL: "https://github.com", Icon: "💻", Order: 2, Clicks: 67},
		{ID: "4", Title: "Instagram", URL: "https://instagram.com", Icon: "📸", Order: 3, Clicks: 54},
		{ID: "5", Title: "LinkedIn", URL: "https://linkedin.com", Icon: "💼", Order: 4, Clicks: 38},
		{ID: "6", Title: "Buy me a coffee", URL: "https://buymeacoffee.com", Icon: "☕", Order: 5, Clicks: 21},
	}
}

// SyncRecord is one entry of the local sync history.
type SyncRecord struct {
	ID        int64     `json:"id"`
	Operation string    `json:"operation"`
	Object    string    `json:"object"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
