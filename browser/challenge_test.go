package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func mustParse(t *testing.T, raw string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	return doc
}

const contentPage = `<!DOCTYPE html>
<html><head><title>Some Product Page</title></head>
<body>
<h1>Some Product</h1>
<p>A perfectly ordinary product description with plenty of real visible
text describing the item, its price, reviews from customers and all the
other things a real page carries.</p>
</body></html>`

func TestChallengeDetector_LayerA(t *testing.T) {
	d := NewChallengeDetector(nil, nil)

	tests := []struct {
		name string
		html string
	}{
		{
			"challenge platform script",
			`<html><head><script src="/cdn-cgi/challenge-platform/h/b/orchestrate.js"></script></head><body></body></html>`,
		},
		{
			"challenge form",
			`<html><body><form id="challenge-form" action="/verify"></form></body></html>`,
		},
		{
			"interstitial title",
			`<html><head><title>Just a moment...</title></head><body></body></html>`,
		},
		{
			"attention required title",
			`<html><head><title>Attention Required! | Cloudflare</title></head><body></body></html>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, d.IsChallenge("https://example.com/page", tt.html))
		})
	}
}

func TestChallengeDetector_LayerB_TwoSignalsRequired(t *testing.T) {
	d := NewChallengeDetector(nil, nil)

	// One medium signal alone is not enough.
	oneSignal := `<html><head><title>Product</title></head><body>
<p>checking your browser before accessing</p>
<p>` + strings.Repeat("ordinary product text ", 50) + `</p></body></html>`
	assert.False(t, d.IsChallenge("https://example.com", oneSignal))

	// Phrase + Ray ID trips layer B.
	twoSignals := `<html><head><title>Product</title></head><body>
<p>checking your browser before accessing</p>
<p>Ray ID: 7f2a9c0b</p>
<p>` + strings.Repeat("ordinary product text ", 50) + `</p></body></html>`
	assert.True(t, d.IsChallenge("https://example.com", twoSignals))

	// Phrase + challenge DOM element trips layer B too.
	phraseAndDOM := `<html><head><title>Product</title></head><body>
<div id="challenge-stage"></div>
<p>verify you are human</p></body></html>`
	assert.True(t, d.IsChallenge("https://example.com", phraseAndDOM))
}

func TestChallengeDetector_LayerC_SmallPageRule(t *testing.T) {
	d := NewChallengeDetector(nil, nil)

	// Small page with all four markers. No layer-A signature, only one
	// layer-B signal (ray id), so layer C is what catches it.
	small := `<html><head><title>Loading</title></head><body>
<p>just a moment while cloudflare reviews this request. cf-ray: 7f2a9c0b</p>
</body></html>`
	assert.True(t, d.IsChallenge("https://example.com", small))

	// Same markers but a large visible body: not a challenge.
	big := `<html><head><title>Blog post</title></head><body>
<p>just a moment, let me tell you about cloudflare and what a cf-ray header is.</p>
<p>` + strings.Repeat("long article text ", 100) + `</p>
</body></html>`
	assert.False(t, d.IsChallenge("https://example.com", big))
}

func TestChallengeDetector_URLHints(t *testing.T) {
	d := NewChallengeDetector([]string{"/custom-block/"}, nil)

	assert.True(t, d.IsChallenge("https://example.com/cdn-cgi/l/chk_jschl", contentPage))
	assert.True(t, d.IsChallenge("https://example.com/custom-block/step1", contentPage))
	assert.False(t, d.IsChallenge("https://example.com/products/1", contentPage))
}

func TestChallengeDetector_CustomDOMHints(t *testing.T) {
	d := NewChallengeDetector(nil, []string{"#site-shield"})

	page := `<html><head><title>Page</title></head><body>
<div id="site-shield"></div>
<p>verify you are human</p></body></html>`
	assert.True(t, d.IsChallenge("https://example.com", page))
}

func TestChallengeDetector_ContentPagePasses(t *testing.T) {
	d := NewChallengeDetector(nil, nil)
	assert.False(t, d.IsChallenge("https://example.com/products/1", contentPage))
}

func TestVisibleText_StripsScriptAndStyle(t *testing.T) {
	page := `<html><head><style>body{color:red}</style></head><body>
<script>var x = "hidden";</script>
<p>visible words</p>
<noscript>fallback</noscript>
</body></html>`
	text := visibleText(page)
	assert.Contains(t, text, "visible words")
	assert.NotContains(t, text, "hidden")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "fallback")
}

func TestPageTitle(t *testing.T) {
	got := pageTitle(mustParse(t, `<html><head><title>  Hello  </title></head><body></body></html>`))
	assert.Equal(t, "  Hello  ", got)
}
