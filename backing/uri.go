package backing

import (
	"net/url"
	"regexp"
)

// uriScheme matches a leading scheme. Single letters are drive names, not schemes.
var uriScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]+:`)

// ParseURI parses an address. A string without a scheme is a filesystem path
// and is kept verbatim: '%', '#' and '?' are part of the file name.
func ParseURI(raw string) (*url.URL, error) {
	if !uriScheme.MatchString(raw) {
		return &url.URL{Path: raw}, nil
	}
	return url.Parse(raw)
}
