// Helpers for rewriting pubky:// content addresses and user-entered links.
package shared

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	pubkyScheme = "pubky://"
	pubkyHost   = "_pubky."
)

var nexusFilePattern = regexp.MustCompile(`^([a-z0-9]+)/pub/pubky\.app/files/([A-Z0-9]+)$`)

// NormalizeLinkURL trims raw and prefixes "https://" when it lacks an explicit http(s) scheme.
//
// Returns "" when nothing is left after trimming.
func NormalizeLinkURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !HasWebScheme(u) {
		u = "https://" + u
	}
	return u
}

// HasWebScheme reports whether u starts with http:// or https://.
func HasWebScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// CleanPublicKey strips a leading "pubky" marker and surrounding whitespace from a z32 public key.
func CleanPublicKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, pubkyScheme)
	return strings.TrimPrefix(key, "pubky")
}

// ResolvePubkyURL rewrites a content address into a URL a plain HTTP client can fetch.
//
//   - http(s) URLs are returned unchanged
//   - pubky://<id>/<path> becomes https://_pubky.<id>/<path>
//   - bare <id>/pub/<path> is treated like the pubky:// form
//
// The boolean is false for empty input, a pubky:// address without a path, or anything unrecognised.
func ResolvePubkyURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if HasWebScheme(raw) {
		return raw, true
	}

	var rest string
	switch {
	case strings.HasPrefix(raw, pubkyScheme):
		rest = strings.TrimPrefix(raw, pubkyScheme)
	case strings.Contains(raw, "/pub/"):
		rest = raw
	default:
		return "", false
	}

	id, filePath, ok := splitAddress(rest)
	if !ok {
		return "", false
	}
	return "https://" + pubkyHost + id + filePath, true
}

// ResolveViaGateway rewrites a content address against a fixed gateway base, producing <gateway>/<id>/<path>.
//
// Used when public reads go through a relay instead of per-key hosts.
func ResolveViaGateway(gateway, raw string) (string, bool) {
	rest := strings.TrimPrefix(raw, pubkyScheme)
	id, filePath, ok := splitAddress(rest)
	if !ok || gateway == "" {
		return "", false
	}
	return strings.TrimRight(gateway, "/") + "/" + id + filePath, true
}

// NexusStaticFileURL converts pubky://<id>/pub/pubky.app/files/<FILE> into <base>/<id>/<FILE>/main.
func NexusStaticFileURL(base, raw string) (string, bool) {
	p := strings.TrimPrefix(raw, pubkyScheme)
	m := nexusFilePattern.FindStringSubmatch(p)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s/main", strings.TrimRight(base, "/"), m[1], m[2]), true
}

// PubkyAddress builds the pubky:// address of path in the public storage of key.
func PubkyAddress(key, path string) string {
	return pubkyScheme + CleanPublicKey(key) + "/" + strings.TrimLeft(path, "/")
}

// QRCodeURL returns a URL rendering data as a scannable QR image.
func QRCodeURL(data string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data=" + url.QueryEscape(data)
}

// ShareURL returns the public page address of key under base.
func ShareURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/pub/" + CleanPublicKey(key)
}

func splitAddress(rest string) (id, filePath string, ok bool) {
	idx := strings.Index(rest, "/")
	if idx <= 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx:], true
}
