package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/metascraper/fetch"
	"github.com/use-agent/metascraper/models"
)

// Hanime scrapes the streaming site. Detail pages sit behind the
// anti-bot wall and need a real browser; search goes to the public JSON
// search API first and only falls back to rendering the search page.
type Hanime struct {
	detail fetch.Client // browser-backed, detail role
	search fetch.Client // browser-backed, search role; also carries the HTTP path
	log    Logger
}

// NewHanime builds the provider on two role-separated clients so detail
// traffic and search traffic never share a browser context.
func NewHanime(detail, search fetch.Client, log Logger) *Hanime {
	return &Hanime{detail: detail, search: search, log: log}
}

const (
	hanimeHost      = "https://hanime.tv"
	hanimeSearchAPI = "https://search.htv-services.com/"
	hanimeMaxSearch = 30
)

var (
	reHanimeBareID = regexp.MustCompile(`^\d{4,}$`)
	reHanimeURLID  = regexp.MustCompile(`/videos/hentai/(\d{4,})(?:[/?#]|$)`)
)

func (h *Hanime) Name() string { return "hanime" }

// TryParseID accepts a bare numeric ID of at least four digits, or a
// video URL carrying one.
func (h *Hanime) TryParseID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if reHanimeBareID.MatchString(input) {
		return input, true
	}
	if m := reHanimeURLID.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

func (h *Hanime) BuildDetailURL(id string) string {
	return fmt.Sprintf("%s/videos/hentai/%s", hanimeHost, id)
}

// hanimeSearchRequest is the body the search API expects.
type hanimeSearchRequest struct {
	SearchText string   `json:"search_text"`
	Tags       []string `json:"tags"`
	TagsMode   string   `json:"tags_mode"`
	Brands     []string `json:"brands"`
	Blacklist  []string `json:"blacklist"`
	OrderBy    string   `json:"order_by"`
	Ordering   string   `json:"ordering"`
	Page       int      `json:"page"`
}

// hanimeSearchResponse carries the hits as a JSON-encoded string, so the
// payload needs a second decode pass.
type hanimeSearchResponse struct {
	Hits string `json:"hits"`
}

type hanimeSearchHit struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	CoverURL string `json:"cover_url"`
}

// Search queries the JSON search API; when that fails for any reason the
// rendered search page is parsed instead.
func (h *Hanime) Search(ctx context.Context, keyword string, maxResults int) ([]models.SearchHit, error) {
	if maxResults <= 0 || maxResults > hanimeMaxSearch {
		maxResults = hanimeMaxSearch
	}

	hits, err := h.searchAPI(ctx, keyword, maxResults)
	if err == nil {
		return hits, nil
	}
	if models.CodeOf(err) == models.ErrCodeCancelled {
		return nil, err
	}
	h.log.Warn("hanime search api failed, falling back to page scrape", "error", err)
	return h.searchPage(ctx, keyword, maxResults)
}

func (h *Hanime) searchAPI(ctx context.Context, keyword string, maxResults int) ([]models.SearchHit, error) {
	req := hanimeSearchRequest{
		SearchText: keyword,
		Tags:       []string{},
		TagsMode:   "AND",
		Brands:     []string{},
		Blacklist:  []string{},
		OrderBy:    "created_at_unix",
		Ordering:   "desc",
		Page:       0,
	}
	headers := map[string]string{
		"Origin":  hanimeHost,
		"Referer": hanimeHost + "/",
	}

	var resp hanimeSearchResponse
	if err := h.search.PostJSON(ctx, hanimeSearchAPI, headers, req, &resp); err != nil {
		return nil, err
	}

	var raw []hanimeSearchHit
	if err := json.Unmarshal([]byte(resp.Hits), &raw); err != nil {
		return nil, models.Upstream("decode search hits", err)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]models.SearchHit, 0, len(raw))
	for _, r := range raw {
		if r.ID <= 0 {
			continue
		}
		detail := h.BuildDetailURL(strconv.FormatInt(r.ID, 10))
		if _, dup := seen[detail]; dup {
			continue
		}
		seen[detail] = struct{}{}
		out = append(out, models.SearchHit{
			DetailURL: detail,
			Title:     strings.TrimSpace(r.Name),
			CoverURL:  r.CoverURL,
		})
		if len(out) >= maxResults {
			break
		}
	}
	h.log.Debug("hanime search api done", "keyword", keyword, "hits", len(out))
	return out, nil
}

// searchPage renders /search and pulls hits off the DOM. Slower and
// spends a browser context, so it only runs when the API path failed.
func (h *Hanime) searchPage(ctx context.Context, keyword string, maxResults int) ([]models.SearchHit, error) {
	searchURL := fmt.Sprintf("%s/search?query=%s", hanimeHost, url.QueryEscape(keyword))
	htmlText, err := h.search.GetHTML(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, models.Upstream("parse search page", err)
	}

	base, _ := url.Parse(hanimeHost)
	seen := make(map[string]struct{})
	var hits []models.SearchHit
	doc.Find(`a[href*="/videos/hentai/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		detail := AbsoluteURL(base, href)
		if detail == "" {
			return true
		}
		if _, dup := seen[detail]; dup {
			return true
		}
		seen[detail] = struct{}{}

		hit := models.SearchHit{DetailURL: detail}
		if img := a.Find("img").First(); img.Length() > 0 {
			src, _ := img.Attr("src")
			hit.CoverURL = AbsoluteURL(base, src)
			if alt, ok := img.Attr("alt"); ok {
				hit.Title = strings.TrimSpace(alt)
			}
		}
		if hit.Title == "" {
			hit.Title = strings.TrimSpace(a.Text())
		}
		hits = append(hits, hit)
		return len(hits) < maxResults
	})
	return hits, nil
}

// hanimeLD mirrors the VideoObject JSON-LD block on video pages.
type hanimeLD struct {
	Type            string `json:"@type"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ThumbnailURL    any    `json:"thumbnailUrl"`
	UploadDate      string `json:"uploadDate"`
	AggregateRating *struct {
		RatingValue json.Number `json:"ratingValue"`
		BestRating  json.Number `json:"bestRating"`
	} `json:"aggregateRating"`
}

// FetchDetail renders the video page in the browser and combines the
// JSON-LD block with DOM-scraped tags and brand.
func (h *Hanime) FetchDetail(ctx context.Context, detailURL string) (*models.Metadata, error) {
	id, ok := h.TryParseID(detailURL)
	if !ok {
		return nil, models.Invalid("url does not address a hanime video")
	}

	htmlText, err := h.detail.GetHTML(ctx, detailURL)
	if err != nil {
		if models.CodeOf(err) == models.ErrCodeNotFound {
			return nil, nil
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, models.Upstream("parse video page", err)
	}

	meta := &models.Metadata{ID: id}
	h.applyJSONLD(doc, meta)

	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("h1.tv-title, h1").First().Text())
	}
	if meta.Title == "" {
		return nil, models.Upstream("video page missing title", errors.New("no title found"))
	}
	meta.OriginalTitle = meta.Title

	doc.Find(`a[href^="/browse/tags/"], .hvpimbc-tags a`).Each(func(_ int, a *goquery.Selection) {
		if t := strings.TrimSpace(a.Text()); t != "" {
			meta.Tags = append(meta.Tags, t)
		}
	})
	doc.Find(`a[href^="/browse/brands/"]`).Each(func(_ int, a *goquery.Selection) {
		if b := strings.TrimSpace(a.Text()); b != "" {
			meta.Studios = append(meta.Studios, b)
		}
	})

	if meta.Primary == "" {
		if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
			meta.Primary = og
		}
	}

	meta.SourceURLs = append(meta.SourceURLs, detailURL)

	base, _ := url.Parse(hanimeHost)
	Finalize(meta, base)
	return meta, nil
}

// applyJSONLD fills the record from the VideoObject block. Ratings on a
// scale other than 0–5 are rescaled.
func (h *Hanime) applyJSONLD(doc *goquery.Document, meta *models.Metadata) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var ld hanimeLD
		if err := json.Unmarshal([]byte(s.Text()), &ld); err != nil {
			return true
		}
		if !strings.EqualFold(ld.Type, "VideoObject") {
			return true
		}

		meta.Title = strings.TrimSpace(ld.Name)
		meta.Description = ld.Description
		meta.ReleaseDate = ParseDate(ld.UploadDate)

		switch thumb := ld.ThumbnailURL.(type) {
		case string:
			meta.Primary = thumb
		case []any:
			for i, t := range thumb {
				str, ok := t.(string)
				if !ok {
					continue
				}
				if i == 0 {
					meta.Primary = str
				} else {
					meta.Thumbnails = append(meta.Thumbnails, str)
				}
			}
		}

		if ld.AggregateRating != nil {
			if v, err := strconv.ParseFloat(ld.AggregateRating.RatingValue.String(), 64); err == nil {
				best := 5.0
				if b, err := strconv.ParseFloat(ld.AggregateRating.BestRating.String(), 64); err == nil && b > 5 {
					best = b
				}
				scaled := v * 5 / best
				meta.Rating = &scaled
			}
		}
		return false
	})
}
