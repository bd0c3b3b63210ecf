// Package cookies converts browser-extension cookie exports into cookies the
// automation API accepts.
package cookies

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// ErrNotFound is returned when the cookie export file does not exist.
var ErrNotFound = errors.New("cookie export not found")

// NormalizeSameSite maps any sameSite value from an export to one of
// Strict, Lax or None. Unknown values fall back to Lax.
func NormalizeSameSite(v string) models.SameSite {
	switch v {
	case "Strict":
		return models.SameSiteStrict
	case "Lax":
		return models.SameSiteLax
	case "None", "no_restriction":
		return models.SameSiteNone
	}

	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return models.SameSiteStrict
	case "lax":
		return models.SameSiteLax
	default:
		return models.SameSiteLax
	}
}

// Convert renames and defaults exported fields. Entries without a name are
// dropped.
func Convert(raw []models.RawCookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(raw))
	for _, c := range raw {
		if c.Name == "" {
			continue
		}

		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     "/",
			Expires:  -1,
			SameSite: models.SameSiteLax,
		}
		if c.Path != nil && *c.Path != "" {
			cookie.Path = *c.Path
		}
		if c.ExpirationDate != nil && *c.ExpirationDate > 0 {
			cookie.Expires = *c.ExpirationDate
		}
		if c.HTTPOnly != nil {
			cookie.HTTPOnly = *c.HTTPOnly
		}
		if c.Secure != nil {
			cookie.Secure = *c.Secure
		}
		if c.SameSite != nil {
			cookie.SameSite = NormalizeSameSite(*c.SameSite)
		}
		out = append(out, cookie)
	}
	return out
}

// Load reads a cookie export and converts it. A missing file yields
// ErrNotFound.
func Load(path string) ([]models.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read cookie export: %w", err)
	}

	raw, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return Convert(raw), nil
}

// decode accepts both a bare array and a {"cookies": [...]} wrapper.
func decode(data []byte) ([]models.RawCookie, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty cookie export")
	}

	if data[0] == '{' {
		var wrapped struct {
			Cookies []models.RawCookie `json:"cookies"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Cookies, nil
	}

	var raw []models.RawCookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Filter keeps cookies that would be sent to host.
func Filter(cookies []models.Cookie, host string) []models.Cookie {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	var out []models.Cookie
	for _, c := range cookies {
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		domain = strings.TrimPrefix(domain, "www.")
		if domain == host || strings.HasSuffix(host, "."+domain) {
			out = append(out, c)
		}
	}
	return out
}

// ExportInstructions explains how to produce the cookie export.
func ExportInstructions(path string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s not found!\n", path)
	b.WriteString("\nHow to export cookies:\n")
	b.WriteString("1. Install 'Cookie-Editor' extension in your browser\n")
	b.WriteString("2. Go to twitter.com and make sure you're logged in\n")
	b.WriteString("3. Click the Cookie-Editor extension icon\n")
	b.WriteString("4. Click 'Export' -> 'Export as JSON'\n")
	fmt.Fprintf(&b, "5. Save the file as '%s'\n", path)
	b.WriteString("\nAlternatively, you can use 'EditThisCookie' or similar extensions.\n")
	return b.String()
}
