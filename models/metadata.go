package models

import "time"

// PersonType classifies a credited person on a metadata record.
type PersonType string

const (
	PersonActor    PersonType = "Actor"
	PersonDirector PersonType = "Director"
	PersonWriter   PersonType = "Writer"
)

// Person is one credited person on a metadata record.
type Person struct {
	Name string     `json:"name"`
	Type PersonType `json:"type"`
	Role string     `json:"role,omitempty"`
}

// Metadata is the canonical output record for one piece of content.
//
// Invariants (enforced by provider.Finalize):
//   - every URL field is absolute
//   - Year, if present, equals ReleaseDate.Year()
//   - Rating, if present, is within [0, 5]
//   - Thumbnails contains neither Primary nor Backdrop (case-insensitive)
//   - string slices contain no empty or duplicate entries
type Metadata struct {
	ID            string     `json:"id"`
	Title         string     `json:"title,omitempty"`
	OriginalTitle string     `json:"originalTitle,omitempty"`
	Description   string     `json:"description,omitempty"`
	Rating        *float64   `json:"rating,omitempty"`
	ReleaseDate   *time.Time `json:"releaseDate,omitempty"`
	Year          *int       `json:"year,omitempty"`
	Studios       []string   `json:"studios,omitempty"`
	Series        []string   `json:"series,omitempty"`
	Genres        []string   `json:"genres,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	People        []Person   `json:"people,omitempty"`
	Primary       string     `json:"primary,omitempty"`
	Backdrop      string     `json:"backdrop,omitempty"`
	Thumbnails    []string   `json:"thumbnails,omitempty"`
	SourceURLs    []string   `json:"sourceUrls,omitempty"`
}

// SearchHit is the intermediate result of a provider search, consumed by
// the orchestrator's detail enrichment fan-out. Never persisted.
type SearchHit struct {
	DetailURL string `json:"detailUrl"`
	Title     string `json:"title"`
	CoverURL  string `json:"coverUrl,omitempty"`
}
