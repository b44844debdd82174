package util

import (
	"regexp"
	"strings"
)

var slugStripRegex = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify turns a display name into a URL-safe slug: lowercase,
// spaces to hyphens, everything else stripped.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = slugStripRegex.ReplaceAllString(slug, "")
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return slug
}
