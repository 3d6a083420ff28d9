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

// DLsite scrapes doujin work pages. Work IDs look like RJ01234567 (or VJ
// for pro works) and the same ID may live under several store sections,
// so detail fetches walk the sections in order until one answers.
type DLsite struct {
	client fetch.Client
	log    Logger
}

// Logger is the minimal slog surface the providers use.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// NewDLsite builds the dlsite provider on the given client.
func NewDLsite(client fetch.Client, log Logger) *DLsite {
	return &DLsite{client: client, log: log}
}

const (
	dlsiteHost      = "https://www.dlsite.com"
	dlsiteMaxSearch = 30
)

// dlsiteSections in preference order; the first section that serves the
// work wins.
var dlsiteSections = []string{"maniax", "pro", "home"}

var reDLsiteID = regexp.MustCompile(`(?i)\b([RV]J\d{4,10})\b`)

func (d *DLsite) Name() string { return "dlsite" }

// TryParseID finds a work ID anywhere in the input (bare ID, product
// URL, or filename) and canonicalizes it to upper case.
func (d *DLsite) TryParseID(input string) (string, bool) {
	m := reDLsiteID.FindStringSubmatch(input)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// BuildDetailURL points at the maniax section; FetchDetail falls through
// to the other sections when maniax does not carry the work.
func (d *DLsite) BuildDetailURL(id string) string {
	return fmt.Sprintf("%s/maniax/work/=/product_id/%s.html", dlsiteHost, id)
}

func dlsiteSectionURL(section, id string) string {
	return fmt.Sprintf("%s/%s/work/=/product_id/%s.html", dlsiteHost, section, id)
}

// Search scrapes the keyword search page and returns work hits in page
// order, deduplicated by detail URL.
func (d *DLsite) Search(ctx context.Context, keyword string, maxResults int) ([]models.SearchHit, error) {
	if maxResults <= 0 || maxResults > dlsiteMaxSearch {
		maxResults = dlsiteMaxSearch
	}
	searchURL := fmt.Sprintf(
		"%s/maniax/fsr/=/language/jp/keyword/%s/order/trend",
		dlsiteHost, url.PathEscape(keyword),
	)

	htmlText, err := d.client.GetHTML(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, models.Upstream("parse search page", err)
	}

	base, _ := url.Parse(dlsiteHost)
	seen := make(map[string]struct{})
	var hits []models.SearchHit

	doc.Find("li.search_result_img_box_inner, .n_worklist .search_result_img_box_inner").
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			link := s.Find("dd.work_name a, .work_name a").First()
			href, ok := link.Attr("href")
			if !ok {
				return true
			}
			detail := AbsoluteURL(base, href)
			if detail == "" {
				return true
			}
			if _, dup := seen[detail]; dup {
				return true
			}
			seen[detail] = struct{}{}

			hit := models.SearchHit{
				DetailURL: detail,
				Title:     strings.TrimSpace(link.Text()),
			}
			if img := s.Find("img").First(); img.Length() > 0 {
				src, _ := img.Attr("src")
				if src == "" {
					src, _ = img.Attr("data-src")
				}
				hit.CoverURL = AbsoluteURL(base, src)
			}
			hits = append(hits, hit)
			return len(hits) < maxResults
		})

	d.log.Debug("dlsite search done", "keyword", keyword, "hits", len(hits))
	return hits, nil
}

// FetchDetail loads the work page. When the URL's section 404s, the
// remaining sections are tried in order; only when every section reports
// not-found does the work count as nonexistent.
func (d *DLsite) FetchDetail(ctx context.Context, detailURL string) (*models.Metadata, error) {
	id, ok := d.TryParseID(detailURL)
	if !ok {
		return nil, models.Invalid("url does not address a dlsite work")
	}

	sections := sectionsFor(detailURL)
	var lastNotFound error
	for _, section := range sections {
		pageURL := dlsiteSectionURL(section, id)
		htmlText, err := d.client.GetHTML(ctx, pageURL)
		if err != nil {
			if models.CodeOf(err) == models.ErrCodeNotFound {
				lastNotFound = err
				continue
			}
			return nil, err
		}
		meta, err := d.parseWorkPage(htmlText, pageURL, detailURL, id)
		if err != nil {
			return nil, err
		}
		return meta, nil
	}
	if lastNotFound != nil {
		return nil, nil
	}
	return nil, nil
}

// sectionsFor orders the sections so the one named in the URL goes first.
func sectionsFor(detailURL string) []string {
	out := make([]string, 0, len(dlsiteSections))
	for _, s := range dlsiteSections {
		if strings.Contains(detailURL, "/"+s+"/") {
			out = append(out, s)
			break
		}
	}
	for _, s := range dlsiteSections {
		already := false
		for _, o := range out {
			if o == s {
				already = true
				break
			}
		}
		if !already {
			out = append(out, s)
		}
	}
	return out
}

// dlsiteLD mirrors the Product JSON-LD block on work pages.
type dlsiteLD struct {
	Type            string `json:"@type"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Image           any    `json:"image"`
	AggregateRating *struct {
		RatingValue json.Number `json:"ratingValue"`
	} `json:"aggregateRating"`
}

func (d *DLsite) parseWorkPage(htmlText, pageURL, requestedURL, id string) (*models.Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, models.Upstream("parse work page", err)
	}

	title := strings.TrimSpace(doc.Find("#work_name").First().Text())
	if title == "" {
		return nil, models.Upstream("work page missing title", errors.New("empty #work_name"))
	}

	meta := &models.Metadata{
		ID:            id,
		Title:         title,
		OriginalTitle: title,
	}

	if maker := strings.TrimSpace(doc.Find("#work_maker .maker_name a").First().Text()); maker != "" {
		meta.Studios = append(meta.Studios, maker)
	}

	doc.Find("#work_outline tr").Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").First().Text())
		cell := row.Find("td").First()
		switch header {
		case "販売日":
			meta.ReleaseDate = ParseDate(strings.TrimSpace(cell.Text()))
		case "シリーズ名":
			if s := strings.TrimSpace(cell.Text()); s != "" {
				meta.Series = append(meta.Series, s)
			}
		case "声優":
			cell.Find("a").Each(func(_ int, a *goquery.Selection) {
				meta.People = append(meta.People, models.Person{
					Name: strings.TrimSpace(a.Text()),
					Type: models.PersonActor,
				})
			})
		case "シナリオ":
			cell.Find("a").Each(func(_ int, a *goquery.Selection) {
				meta.People = append(meta.People, models.Person{
					Name: strings.TrimSpace(a.Text()),
					Type: models.PersonWriter,
				})
			})
		case "ジャンル":
			cell.Find("a").Each(func(_ int, a *goquery.Selection) {
				if g := strings.TrimSpace(a.Text()); g != "" {
					meta.Genres = append(meta.Genres, g)
				}
			})
		}
	})

	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		meta.Primary = og
	}
	doc.Find(".product-slider-data div[data-src], .work_slider div[data-src]").
		Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("data-src"); ok {
				meta.Thumbnails = append(meta.Thumbnails, src)
			}
		})

	d.applyJSONLD(doc, meta)

	if meta.Description == "" {
		meta.Description = strings.TrimSpace(doc.Find(`div[itemprop="description"]`).First().Text())
	}

	// The served section URL and the URL the caller asked for both count
	// as sources; Finalize drops the duplicate when they coincide.
	meta.SourceURLs = append(meta.SourceURLs, pageURL, requestedURL)

	base, _ := url.Parse(pageURL)
	Finalize(meta, base)
	return meta, nil
}

// applyJSONLD fills rating and description from the structured-data block
// when present. Malformed blocks are skipped quietly.
func (d *DLsite) applyJSONLD(doc *goquery.Document, meta *models.Metadata) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var ld dlsiteLD
		if err := json.Unmarshal([]byte(s.Text()), &ld); err != nil {
			return true
		}
		if !strings.EqualFold(ld.Type, "Product") {
			return true
		}
		if ld.AggregateRating != nil {
			if v, err := strconv.ParseFloat(ld.AggregateRating.RatingValue.String(), 64); err == nil {
				meta.Rating = &v
			}
		}
		if ld.Description != "" && meta.Description == "" {
			meta.Description = ld.Description
		}
		if meta.Primary == "" {
			switch img := ld.Image.(type) {
			case string:
				meta.Primary = img
			case []any:
				if len(img) > 0 {
					if s, ok := img[0].(string); ok {
						meta.Primary = s
					}
				}
			}
		}
		return false
	})
}
