package provider

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/use-agent/metascraper/models"
)

// maxDescriptionRunes bounds the description carried in a record.
const maxDescriptionRunes = 1500

// Finalize enforces the metadata invariants in place: absolute URLs,
// deduplicated string lists, thumbnails free of primary/backdrop, rating
// clamped to [0,5], year derived from the release date, description
// length-limited.
func Finalize(m *models.Metadata, base *url.URL) {
	m.Primary = AbsoluteURL(base, m.Primary)
	m.Backdrop = AbsoluteURL(base, m.Backdrop)

	m.Thumbnails = normalizeThumbnails(base, m.Thumbnails, m.Primary, m.Backdrop)
	m.SourceURLs = normalizeURLList(base, m.SourceURLs)

	m.Studios = CleanStrings(m.Studios)
	m.Series = CleanStrings(m.Series)
	m.Genres = CleanStrings(m.Genres)
	m.Tags = CleanStrings(m.Tags)
	m.People = cleanPeople(m.People)

	if m.Rating != nil {
		r := *m.Rating
		switch {
		case r < 0:
			m.Rating = nil
		case r > 5:
			clamped := 5.0
			m.Rating = &clamped
		}
	}

	if m.ReleaseDate != nil {
		y := m.ReleaseDate.Year()
		m.Year = &y
	} else {
		m.Year = nil
	}

	m.Title = strings.TrimSpace(m.Title)
	m.OriginalTitle = strings.TrimSpace(m.OriginalTitle)
	m.Description = truncateRunes(strings.TrimSpace(m.Description), maxDescriptionRunes)
}

// AbsoluteURL resolves raw against base and returns an absolute URL, or
// "" when raw is empty or unparseable.
func AbsoluteURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// normalizeThumbnails absolutizes, deduplicates case-insensitively and
// removes the primary and backdrop URLs.
func normalizeThumbnails(base *url.URL, thumbs []string, primary, backdrop string) []string {
	seen := make(map[string]struct{}, len(thumbs)+2)
	if primary != "" {
		seen[strings.ToLower(primary)] = struct{}{}
	}
	if backdrop != "" {
		seen[strings.ToLower(backdrop)] = struct{}{}
	}
	out := make([]string, 0, len(thumbs))
	for _, t := range thumbs {
		abs := AbsoluteURL(base, t)
		if abs == "" {
			continue
		}
		key := strings.ToLower(abs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, abs)
	}
	return out
}

func normalizeURLList(base *url.URL, urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		abs := AbsoluteURL(base, raw)
		if abs == "" {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}

// CleanStrings trims entries, drops empties and deduplicates while
// preserving order.
func CleanStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cleanPeople(in []models.Person) []models.Person {
	type key struct {
		name string
		typ  models.PersonType
	}
	seen := make(map[key]struct{}, len(in))
	out := make([]models.Person, 0, len(in))
	for _, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		k := key{name: p.Name, typ: p.Type}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

// jpDateReplacer rewrites Japanese date markers so dateparse can read
// strings like "2024年03月15日".
var jpDateReplacer = strings.NewReplacer("年", "-", "月", "-", "日", "")

// ParseDate parses a site date string into a UTC instant. Returns nil
// when the string carries no recognizable date.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(jpDateReplacer.Replace(s))
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
