package classify

import (
	"net/url"
	"regexp"
	"strings"
)

// urlRegex matches http(s) and www links embedded in free text
var urlRegex = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'()]+`)

// IsURL reports whether text, trimmed, is a single absolute URL. It is derived
// from content on demand and never stored.
func IsURL(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return false
	}
	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// ExtractURLs finds the distinct links in text, in order of appearance.
func ExtractURLs(text string) []string {
	matches := urlRegex.FindAllString(text, -1)
	seen := make(map[string]bool)
	var links []string

	for _, link := range matches {
		link = strings.TrimRight(link, ".,;:!?")
		if link != "" && !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}

	return links
}
