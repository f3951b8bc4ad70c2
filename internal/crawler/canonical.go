package crawler

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/purell"

	"sjsage522/menucrawler/helpers"
)

// Canonicalizer maps a merchant link to its dedup URL and a file-safe key.
// Applying it to its own output returns the same result.
type Canonicalizer func(base *url.URL, raw string) (canonical, key string, err error)

var canonicalizers = map[string]Canonicalizer{
	"ubereats": canonicalUberEats,
	"skip":     canonicalSkip,
	"doordash": canonicalDoorDash,
	"path":     canonicalPath,
}

// CanonicalizerFor returns the canonicalizer registered under name
func CanonicalizerFor(name string) (Canonicalizer, error) {
	c, ok := canonicalizers[name]
	if !ok {
		return nil, fmt.Errorf("unknown canonicalizer %q", name)
	}
	return c, nil
}

const normalizeFlags = purell.FlagsSafe |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveFragment

// NormalizeLink absolutizes raw against base and normalizes it. Query
// strings are kept; they carry paging on some listings.
func NormalizeLink(base *url.URL, raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty link")
	}
	u, err := base.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme in %q", raw)
	}
	return url.Parse(purell.NormalizeURL(u, normalizeFlags))
}

func segments(u *url.URL) []string {
	var out []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// canonicalUberEats keeps /store/<slug>/<id>, dropping locale prefixes and
// the tracking query.
func canonicalUberEats(base *url.URL, raw string) (string, string, error) {
	u, err := NormalizeLink(base, raw)
	if err != nil {
		return "", "", err
	}
	parts := segments(u)
	i := slices.Index(parts, "store")
	if i < 0 || i+2 >= len(parts) {
		return "", "", fmt.Errorf("not a store link: %s", raw)
	}
	slug, id := parts[i+1], parts[i+2]
	return origin(u) + "/store/" + slug + "/" + id, helpers.SanitizeFilename(slug + "_" + id), nil
}

// canonicalSkip keys merchants by the last path segment
func canonicalSkip(base *url.URL, raw string) (string, string, error) {
	u, err := NormalizeLink(base, raw)
	if err != nil {
		return "", "", err
	}
	last := helpers.LastPathSegment(u.Path)
	if last == "" {
		return "", "", fmt.Errorf("no merchant segment in %s", raw)
	}
	return origin(u) + "/" + last, helpers.SanitizeFilename(last), nil
}

// canonicalDoorDash keeps /store/<slug>/ and drops the cursor query
func canonicalDoorDash(base *url.URL, raw string) (string, string, error) {
	u, err := NormalizeLink(base, raw)
	if err != nil {
		return "", "", err
	}
	parts := segments(u)
	i := slices.Index(parts, "store")
	if i < 0 || i+1 >= len(parts) {
		return "", "", fmt.Errorf("not a store link: %s", raw)
	}
	slug := parts[i+1]
	return origin(u) + "/store/" + slug + "/", helpers.SanitizeFilename(slug), nil
}

// canonicalPath drops the query and trailing slash and keys by the path
func canonicalPath(base *url.URL, raw string) (string, string, error) {
	u, err := NormalizeLink(base, raw)
	if err != nil {
		return "", "", err
	}
	parts := segments(u)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("no path in %s", raw)
	}
	path := strings.Join(parts, "/")
	return origin(u) + "/" + path, helpers.SanitizeFilename(strings.Join(parts, "_")), nil
}
