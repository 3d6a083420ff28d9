package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-rod/rod"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/metascraper/config"
	"github.com/use-agent/metascraper/models"
)

const maxBodyBytes = 10 << 20 // 10 MB cap on any upstream body

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. Computed once at init time and reused for every
// connection. The ALPN pin avoids the framing mismatch that occurs when
// utls negotiates h2 but Go's http.Transport only speaks h1 over a
// custom-dialed connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPClient is the pooled keep-alive client with browser-like default
// headers, automatic gzip/deflate/brotli decompression and no cookie jar.
// Safe for concurrent use.
type HTTPClient struct {
	client   *http.Client
	cfg      config.HTTPClientConfig
	breakers *hostBreakers
}

// NewHTTPClient creates an HTTPClient from configuration.
func NewHTTPClient(cfg config.HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
		// Compression is negotiated and decoded by hand so brotli is
		// covered alongside gzip and deflate.
		DisableCompression: true,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("fetch: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		cfg:      cfg,
		breakers: newHostBreakers(cfg.BreakerFailures, cfg.BreakerCooldown),
	}
}

// GetHTML retrieves the body at targetURL with browser-like headers.
func (c *HTTPClient) GetHTML(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", models.Upstream("build request", err)
	}
	c.setDefaultHeaders(req)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")

	body, _, err := c.do(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetJSON performs a GET and decodes the response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, targetURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return models.Upstream("build request", err)
	}
	c.setDefaultHeaders(req)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, _, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return models.Upstream("decode json", err)
	}
	return nil
}

// PostJSON posts body as JSON and decodes the response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, targetURL string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return models.Upstream("encode json", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return models.Upstream("build request", err)
	}
	c.setDefaultHeaders(req)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	respBody, _, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return models.Upstream("decode json", err)
	}
	return nil
}

// OpenPage always fails: the plain HTTP client cannot drive a browser.
func (c *HTTPClient) OpenPage(context.Context, string) (*rod.Page, error) {
	return nil, models.Upstream("http client cannot open browser pages", nil)
}

func (c *HTTPClient) setDefaultHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Cache-Control", "no-cache")
}

// do executes the request through the per-host breaker, maps status codes
// to the error taxonomy and returns the decompressed body.
func (c *HTTPClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.breakers.execute(req.URL, func() (*http.Response, error) {
		return c.client.Do(req)
	})
	if err != nil {
		return nil, 0, models.Classify(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode, models.NotFound(fmt.Sprintf("upstream returned %d for %s", resp.StatusCode, req.URL))
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, models.Upstream(fmt.Sprintf("upstream status %d for %s", resp.StatusCode, req.URL), nil)
	}

	reader, err := decompressed(resp)
	if err != nil {
		return nil, resp.StatusCode, models.Upstream("open decompressor", err)
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, models.Classify(err)
	}
	return body, resp.StatusCode, nil
}

// decompressed wraps the response body according to Content-Encoding.
func decompressed(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return zlib.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// hostURL returns the breaker key for a request URL.
func hostKey(u *url.URL) string {
	return u.Hostname()
}
