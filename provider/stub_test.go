package provider

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/use-agent/metascraper/models"
)

// stubClient serves canned bodies keyed by URL. Unknown URLs reply
// not-found, mirroring the HTTP client's 404 mapping.
type stubClient struct {
	html map[string]string
	json map[string]string

	calls []string
	err   error
}

func (s *stubClient) GetHTML(_ context.Context, url string) (string, error) {
	s.calls = append(s.calls, url)
	if s.err != nil {
		return "", s.err
	}
	body, ok := s.html[url]
	if !ok {
		return "", models.NotFound("no canned body for " + url)
	}
	return body, nil
}

func (s *stubClient) GetJSON(_ context.Context, url string, _ map[string]string, out any) error {
	s.calls = append(s.calls, url)
	if s.err != nil {
		return s.err
	}
	body, ok := s.json[url]
	if !ok {
		return models.NotFound("no canned body for " + url)
	}
	return json.Unmarshal([]byte(body), out)
}

func (s *stubClient) PostJSON(_ context.Context, url string, _ map[string]string, _, out any) error {
	s.calls = append(s.calls, url)
	if s.err != nil {
		return s.err
	}
	body, ok := s.json[url]
	if !ok {
		return models.NotFound("no canned body for " + url)
	}
	return json.Unmarshal([]byte(body), out)
}

func (s *stubClient) OpenPage(context.Context, string) (*rod.Page, error) {
	return nil, models.Upstream("stub client cannot open pages", nil)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
