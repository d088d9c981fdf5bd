package moderation

import (
	"net/url"
	"regexp"
	"strings"
)

// urlPattern matches an http/https scheme followed by a run of non-space
// characters. Unicode separators end the run as well as ASCII whitespace.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s\p{Z}\x{feff}]+`)

// ExtractDomains returns the hostname of every http/https URL in text, in
// order of appearance, lowercased and with a leading "www." label removed.
// Only the scheme and authority are parsed, so a malformed path, query or
// fragment does not hide the host. Matches whose authority does not parse,
// or that have no host, are skipped.
func ExtractDomains(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	domains := make([]string, 0, len(matches))
	for _, raw := range matches {
		u, err := url.Parse(authority(raw))
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host == "" {
			continue
		}
		domains = append(domains, strings.TrimPrefix(host, "www."))
	}
	return domains
}

// authority drops everything after the host part of raw, starting at the
// first slash, backslash, '?' or '#' after "://".
func authority(raw string) string {
	i := strings.Index(raw, "://")
	if i < 0 {
		return raw
	}
	rest := raw[i+3:]
	if end := strings.IndexAny(rest, "/?#\\"); end >= 0 {
		rest = rest[:end]
	}
	return raw[:i+3] + rest
}

// IsWhitelisted reports whether domain equals entry or is a subdomain of it.
// "sub.github.com" matches "github.com"; "evilgithub.com" does not.
func IsWhitelisted(domain, entry string) bool {
	return domain == entry || strings.HasSuffix(domain, "."+entry)
}

// HasDisallowedLink reports whether text links to at least one domain that
// matches no whitelist entry. Text without links never violates.
func HasDisallowedLink(text string, whitelist []string) bool {
	for _, d := range ExtractDomains(text) {
		if !inWhitelist(d, whitelist) {
			return true
		}
	}
	return false
}

func inWhitelist(domain string, whitelist []string) bool {
	for _, w := range whitelist {
		if IsWhitelisted(domain, w) {
			return true
		}
	}
	return false
}
