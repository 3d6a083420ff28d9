package browser

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ChallengeDetector decides whether a rendered page is an anti-bot
// interstitial rather than the target content. Three layers keep false
// positives down:
//
//	A (high):   any unmistakable signature — the challenge platform
//	            script path, the challenge form id, the interstitial title
//	B (medium): at least two of {challenge body text, a Ray ID, a
//	            challenge DOM element}
//	C (low):    a very short page (<5 KB) that simultaneously says
//	            "Just a moment", references Cloudflare, shows a Ray ID
//	            and has under 500 chars of body text
type ChallengeDetector struct {
	urlHints     []string
	domSelectors []cascadia.Sel
}

// Unmistakable layer-A signatures.
const (
	sigChallengeScript = "/cdn-cgi/challenge-platform/"
	sigChallengeForm   = "form#challenge-form"
)

var sigTitles = []string{
	"just a moment...",
	"attention required! | cloudflare",
	"access denied",
}

var defaultURLHints = []string{
	"/cdn-cgi/",
	"__cf_chl",
	"challenge-platform",
}

// Layer-B DOM elements typical of an in-progress challenge.
var challengeElementSelectors = []string{
	"#challenge-error-text",
	"#challenge-stage",
	"#cf-challenge-running",
	".cf-browser-verification",
	"#cf-please-wait",
}

var reRayID = regexp.MustCompile(`(?i)\b(cf-ray|ray id)\b`)

var challengePhrases = []string{
	"checking your browser",
	"verify you are human",
	"needs to review the security of your connection",
	"enable javascript and cookies to continue",
}

// NewChallengeDetector compiles the configured hint lists on top of the
// built-in signatures. Invalid DOM hints are skipped.
func NewChallengeDetector(urlHints, domHints []string) *ChallengeDetector {
	d := &ChallengeDetector{
		urlHints: append(append([]string{}, defaultURLHints...), urlHints...),
	}
	for _, sel := range append(append([]string{}, challengeElementSelectors...), domHints...) {
		if compiled, err := cascadia.Parse(sel); err == nil {
			d.domSelectors = append(d.domSelectors, compiled)
		}
	}
	return d
}

// IsChallenge applies the URL hints and the three content layers.
func (d *ChallengeDetector) IsChallenge(pageURL, pageHTML string) bool {
	lowerURL := strings.ToLower(pageURL)
	for _, hint := range d.urlHints {
		if hint != "" && strings.Contains(lowerURL, strings.ToLower(hint)) {
			return true
		}
	}

	lower := strings.ToLower(pageHTML)

	// Layer A: unmistakable signatures.
	if strings.Contains(lower, sigChallengeScript) {
		return true
	}

	doc, parseErr := html.Parse(strings.NewReader(pageHTML))
	var domHit bool
	if parseErr == nil {
		title := strings.ToLower(strings.TrimSpace(pageTitle(doc)))
		for _, sig := range sigTitles {
			if title == sig {
				return true
			}
		}
		if formSel, err := cascadia.Parse(sigChallengeForm); err == nil {
			if cascadia.Query(doc, formSel) != nil {
				return true
			}
		}
		for _, sel := range d.domSelectors {
			if cascadia.Query(doc, sel) != nil {
				domHit = true
				break
			}
		}
	}

	rayID := reRayID.MatchString(lower)
	var phraseHit bool
	for _, phrase := range challengePhrases {
		if strings.Contains(lower, phrase) {
			phraseHit = true
			break
		}
	}

	// Layer B: two medium-confidence signals.
	score := 0
	for _, hit := range []bool{phraseHit, rayID, domHit} {
		if hit {
			score++
		}
	}
	if score >= 2 {
		return true
	}

	// Layer C: strict small-page rule, all four required.
	if len(pageHTML) < 5*1024 &&
		strings.Contains(lower, "just a moment") &&
		strings.Contains(lower, "cloudflare") &&
		rayID &&
		len(visibleText(pageHTML)) < 500 {
		return true
	}

	return false
}

// pageTitle walks the parsed document for the first <title> text.
func pageTitle(doc *html.Node) string {
	var walk func(*html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				return n.FirstChild.Data
			}
			return ""
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := walk(c); t != "" {
				return t
			}
		}
		return ""
	}
	return walk(doc)
}

// visibleText extracts the visible text from within <body>, stripping all
// tags and <script>/<style> content. Used for heuristic analysis only.
func visibleText(pageHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(pageHTML))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "script" || tag == "style" || tag == "noscript" {
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
