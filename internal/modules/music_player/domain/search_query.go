package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Policy errors raised before a query reaches a node.
var (
	ErrLinkBlacklisted    = errors.New("query contains a blacklisted link or word")
	ErrLinkNotWhitelisted = errors.New("query contains a link which isn't whitelisted")
	ErrLinksNotAllowed    = errors.New("using links to make a request is not allowed")
	ErrSourceNotEnabled   = errors.New("source is not enabled on the node")
	ErrNoSourceManagers   = errors.New("node has no source managers enabled")
)

// SearchQuery represents a query for searching tracks.
type SearchQuery struct {
	Query    string         // The search term or URL
	Platform SearchPlatform // The search platform, empty for URLs
	IsURL    bool           // Whether the query is a direct URL
}

// NewSearchQuery creates a SearchQuery from user input.
// URLs are loaded directly. An explicit "prefix:term" input such as
// "scsearch:foo" selects that platform; anything else searches on platform.
func NewSearchQuery(input string, platform SearchPlatform) *SearchQuery {
	input = strings.TrimSpace(input)

	if isURL(input) {
		return &SearchQuery{
			Query: input,
			IsURL: true,
		}
	}

	if prefix, term, ok := strings.Cut(input, ":"); ok {
		if explicit, known := DefaultSources[strings.ToLower(prefix)]; known &&
			strings.HasSuffix(strings.ToLower(prefix), "search") {
			return &SearchQuery{
				Query:    strings.TrimSpace(term),
				Platform: explicit,
			}
		}
	}

	return &SearchQuery{
		Query:    input,
		Platform: platform,
	}
}

// LavalinkQuery returns the query string formatted for Lavalink.
func (q *SearchQuery) LavalinkQuery() string {
	if q.IsURL || q.Platform == "" {
		return q.Query
	}
	return string(q.Platform) + ":" + q.Query
}

// IsValid returns true if the query is not empty.
func (q *SearchQuery) IsValid() bool {
	return q.Query != ""
}

// isURL checks if the input looks like a URL.
func isURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// LinkPolicy restricts which queries may be sent to a node.
// Entries are matched case-insensitively as substrings.
type LinkPolicy struct {
	LinksAllowed bool
	Whitelist    []string
	Blacklist    []string
}

// Validate checks q against the policy.
func (p LinkPolicy) Validate(q *SearchQuery) error {
	lower := strings.ToLower(q.Query)

	for _, word := range p.Blacklist {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return fmt.Errorf("%w: %q", ErrLinkBlacklisted, word)
		}
	}

	if !q.IsURL {
		return nil
	}
	if !p.LinksAllowed {
		return ErrLinksNotAllowed
	}

	if len(p.Whitelist) == 0 {
		return nil
	}
	for _, word := range p.Whitelist {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return nil
		}
	}
	return ErrLinkNotWhitelisted
}

// CheckSourceEnabled verifies that a node advertising sourceManagers can serve q.
func CheckSourceEnabled(q *SearchQuery, sourceManagers []string) error {
	if len(sourceManagers) == 0 {
		return ErrNoSourceManagers
	}

	var required string
	if q.IsURL {
		required = string(LinkSource(q.Query))
	} else {
		required = q.Platform.SourceManager()
	}
	if required == "" {
		return nil
	}

	if !slices.Contains(sourceManagers, required) {
		return fmt.Errorf("%w: %s", ErrSourceNotEnabled, required)
	}
	return nil
}
