package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/metascraper/models"
)

func TestDLsite_TryParseID(t *testing.T) {
	d := NewDLsite(&stubClient{}, testLogger())

	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare uppercase", "RJ123456", "RJ123456", true},
		{"bare lowercase", "rj123456", "RJ123456", true},
		{"pro work", "VJ004567", "VJ004567", true},
		{"detail url", "https://www.dlsite.com/maniax/work/=/product_id/RJ01234567.html", "RJ01234567", true},
		{"filename", "[RJ123456] some work.zip", "RJ123456", true},
		{"too few digits", "RJ123", "", false},
		{"wrong prefix", "XJ123456", "", false},
		{"embedded in word", "WORJ123456X", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.TryParseID(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDLsite_BuildDetailURL(t *testing.T) {
	d := NewDLsite(&stubClient{}, testLogger())
	assert.Equal(t,
		"https://www.dlsite.com/maniax/work/=/product_id/RJ123456.html",
		d.BuildDetailURL("RJ123456"))
}

const dlsiteWorkPage = `<!DOCTYPE html>
<html><head>
<meta property="og:image" content="https://img.dlsite.jp/RJ123456_main.jpg">
<script type="application/ld+json">
{"@type":"Product","name":"テスト作品","description":"ある作品の説明。",
 "aggregateRating":{"ratingValue":"4.6"}}
</script>
</head><body>
<div id="work_maker"><span class="maker_name"><a href="/maniax/circle">サンプルサークル</a></span></div>
<h1 id="work_name">テスト作品</h1>
<table id="work_outline">
<tr><th>販売日</th><td>2024年03月15日</td></tr>
<tr><th>シリーズ名</th><td>テストシリーズ</td></tr>
<tr><th>声優</th><td><a href="#">声優A</a><a href="#">声優B</a></td></tr>
<tr><th>シナリオ</th><td><a href="#">作家C</a></td></tr>
<tr><th>ジャンル</th><td><a href="#">ファンタジー</a><a href="#">RPG</a></td></tr>
</table>
<div class="product-slider-data">
<div data-src="//img.dlsite.jp/RJ123456_img1.jpg"></div>
<div data-src="//img.dlsite.jp/RJ123456_img2.jpg"></div>
</div>
</body></html>`

func TestDLsite_FetchDetail(t *testing.T) {
	client := &stubClient{html: map[string]string{
		"https://www.dlsite.com/maniax/work/=/product_id/RJ123456.html": dlsiteWorkPage,
	}}
	d := NewDLsite(client, testLogger())

	meta, err := d.FetchDetail(context.Background(), d.BuildDetailURL("RJ123456"))
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, "RJ123456", meta.ID)
	assert.Equal(t, "テスト作品", meta.Title)
	assert.Equal(t, "テスト作品", meta.OriginalTitle)
	assert.Equal(t, "ある作品の説明。", meta.Description)
	assert.Equal(t, []string{"サンプルサークル"}, meta.Studios)
	assert.Equal(t, []string{"テストシリーズ"}, meta.Series)
	assert.Equal(t, []string{"ファンタジー", "RPG"}, meta.Genres)

	require.NotNil(t, meta.Rating)
	assert.InDelta(t, 4.6, *meta.Rating, 0.001)

	require.NotNil(t, meta.ReleaseDate)
	assert.Equal(t, "2024-03-15", meta.ReleaseDate.Format("2006-01-02"))
	require.NotNil(t, meta.Year)
	assert.Equal(t, 2024, *meta.Year)

	require.Len(t, meta.People, 3)
	assert.Equal(t, models.Person{Name: "声優A", Type: models.PersonActor}, meta.People[0])
	assert.Equal(t, models.Person{Name: "声優B", Type: models.PersonActor}, meta.People[1])
	assert.Equal(t, models.Person{Name: "作家C", Type: models.PersonWriter}, meta.People[2])

	assert.Equal(t, "https://img.dlsite.jp/RJ123456_main.jpg", meta.Primary)
	assert.Equal(t, []string{
		"https://img.dlsite.jp/RJ123456_img1.jpg",
		"https://img.dlsite.jp/RJ123456_img2.jpg",
	}, meta.Thumbnails)
	assert.Contains(t, meta.SourceURLs, "https://www.dlsite.com/maniax/work/=/product_id/RJ123456.html")
}

func TestDLsite_FetchDetailFallsThroughSections(t *testing.T) {
	// maniax and home miss; pro serves the work.
	client := &stubClient{html: map[string]string{
		"https://www.dlsite.com/pro/work/=/product_id/VJ004567.html": `<html><body><h1 id="work_name">プロ作品</h1></body></html>`,
	}}
	d := NewDLsite(client, testLogger())

	meta, err := d.FetchDetail(context.Background(), d.BuildDetailURL("VJ004567"))
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "プロ作品", meta.Title)

	// maniax was tried first (it is the URL's section), then pro answered.
	require.GreaterOrEqual(t, len(client.calls), 2)
	assert.Contains(t, client.calls[0], "/maniax/")
	assert.Contains(t, client.calls[1], "/pro/")

	// Both the serving URL and the originally requested one are sources.
	assert.Contains(t, meta.SourceURLs, "https://www.dlsite.com/pro/work/=/product_id/VJ004567.html")
	assert.Contains(t, meta.SourceURLs, d.BuildDetailURL("VJ004567"))
}

func TestDLsite_FetchDetailAllSectionsMiss(t *testing.T) {
	d := NewDLsite(&stubClient{}, testLogger())

	meta, err := d.FetchDetail(context.Background(), d.BuildDetailURL("RJ999999"))
	assert.NoError(t, err, "a work absent from every section is not-found, not an error")
	assert.Nil(t, meta)
}

func TestDLsite_FetchDetailTransientErrorPropagates(t *testing.T) {
	client := &stubClient{err: models.Upstream("connection reset", nil)}
	d := NewDLsite(client, testLogger())

	meta, err := d.FetchDetail(context.Background(), d.BuildDetailURL("RJ123456"))
	assert.Nil(t, meta)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeUpstream, models.CodeOf(err))
	// A transient failure must stop the walk, not be mistaken for a miss.
	assert.Len(t, client.calls, 1)
}

const dlsiteSearchPage = `<html><body><ul class="n_worklist">
<li class="search_result_img_box_inner">
  <img src="//img.dlsite.jp/t1.jpg">
  <dd class="work_name"><a href="/maniax/work/=/product_id/RJ000001.html">作品一</a></dd>
</li>
<li class="search_result_img_box_inner">
  <img data-src="//img.dlsite.jp/t2.jpg">
  <dd class="work_name"><a href="/maniax/work/=/product_id/RJ000002.html">作品二</a></dd>
</li>
<li class="search_result_img_box_inner">
  <dd class="work_name"><a href="/maniax/work/=/product_id/RJ000001.html">作品一（再掲）</a></dd>
</li>
</ul></body></html>`

func TestDLsite_Search(t *testing.T) {
	client := &stubClient{html: map[string]string{
		"https://www.dlsite.com/maniax/fsr/=/language/jp/keyword/%E3%83%86%E3%82%B9%E3%83%88/order/trend": dlsiteSearchPage,
	}}
	d := NewDLsite(client, testLogger())

	hits, err := d.Search(context.Background(), "テスト", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "duplicate detail URLs must collapse")

	assert.Equal(t, "https://www.dlsite.com/maniax/work/=/product_id/RJ000001.html", hits[0].DetailURL)
	assert.Equal(t, "作品一", hits[0].Title)
	assert.Equal(t, "https://img.dlsite.jp/t1.jpg", hits[0].CoverURL)
	assert.Equal(t, "作品二", hits[1].Title)
	assert.Equal(t, "https://img.dlsite.jp/t2.jpg", hits[1].CoverURL)
}

func TestDLsite_SearchHonorsMaxResults(t *testing.T) {
	client := &stubClient{html: map[string]string{
		"https://www.dlsite.com/maniax/fsr/=/language/jp/keyword/x/order/trend": dlsiteSearchPage,
	}}
	d := NewDLsite(client, testLogger())

	hits, err := d.Search(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
