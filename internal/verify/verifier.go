// Package verify runs black-box health checks against a live deployment
// URL: reachability, SPA routing and asset-optimization heuristics. Checks
// are independent of how the deployment was produced.
package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultTimeout bounds each HTTP probe.
const DefaultTimeout = 30 * time.Second

// Check is the outcome of a single verification probe. Probes never
// panic or return errors past their own boundary; failures are encoded
// here so one broken probe cannot abort the others.
type Check struct {
	Name     string
	Success  bool
	Message  string
	Details  []string
	Duration time.Duration
}

// Result aggregates all checks of one verification run.
type Result struct {
	Success bool
	Checks  []Check
	Passed  int
	Failed  int
	Total   int
}

// Options selects which optional checks run.
type Options struct {
	SkipSPARouting bool
	SkipAssets     bool
}

// spaRoutes are the representative paths probed by the SPA-routing check.
// The last one does not exist on purpose: a correctly configured
// single-page app serves its entry document for every path, so even the
// bogus route must return 200.
var spaRoutes = []string{
	"/",
	"/servicos",
	"/agendamento",
	"/definitely-not-a-real-route-404",
}

// Verifier issues the probes. Construct with NewVerifier.
type Verifier struct {
	client  *retryablehttp.Client
	timeout time.Duration
	logger  hclog.Logger
}

// NewVerifier creates a verifier with the given per-probe timeout; zero
// means DefaultTimeout.
func NewVerifier(timeout time.Duration, logger hclog.Logger) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = timeout
	// Only network errors are retried. An HTTP error status from the
	// deployed site is the signal being probed for, not noise to retry
	// away.
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	return &Verifier{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("verify"),
	}
}

// CheckURL verifies the URL answers a HEAD request with a 2xx status
// within the timeout.
func (v *Verifier) CheckURL(ctx context.Context, url string) Check {
	start := time.Now()
	check := Check{Name: "url-accessibility"}

	resp, err := v.do(ctx, http.MethodHead, url)
	check.Duration = time.Since(start)
	if err != nil {
		check.Message = fmt.Sprintf("%s is not reachable: %v", url, err)
		return check
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		check.Message = fmt.Sprintf("%s returned HTTP %d", url, resp.StatusCode)
		return check
	}

	check.Success = true
	check.Message = fmt.Sprintf("%s returned HTTP %d", url, resp.StatusCode)
	return check
}

// CheckSPARouting probes the representative routes and requires every one
// of them, including the deliberately nonexistent path, to return 200.
func (v *Verifier) CheckSPARouting(ctx context.Context, baseURL string) Check {
	start := time.Now()
	check := Check{Name: "spa-routing"}
	base := strings.TrimSuffix(baseURL, "/")

	var failed []string
	for _, route := range spaRoutes {
		resp, err := v.do(ctx, http.MethodGet, base+route)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", route, err))
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			failed = append(failed, fmt.Sprintf("%s: HTTP %d", route, resp.StatusCode))
		}
	}

	check.Duration = time.Since(start)
	check.Details = failed
	if len(failed) > 0 {
		check.Message = fmt.Sprintf("%d of %d routes failed; SPA fallback may be misconfigured", len(failed), len(spaRoutes))
		return check
	}

	check.Success = true
	check.Message = fmt.Sprintf("all %d routes serve the entry document", len(spaRoutes))
	return check
}

// CheckAssetOptimization fetches the entry document and applies three
// independent heuristics: minified markup, referenced assets, and a
// compressed response. All must pass. The check is stateless, so repeated
// runs against the same response yield identical results.
func (v *Verifier) CheckAssetOptimization(ctx context.Context, baseURL string) Check {
	start := time.Now()
	check := Check{Name: "asset-optimization"}

	resp, err := v.do(ctx, http.MethodGet, baseURL)
	if err != nil {
		check.Duration = time.Since(start)
		check.Message = fmt.Sprintf("could not fetch entry document: %v", err)
		return check
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	check.Duration = time.Since(start)
	if err != nil {
		check.Message = fmt.Sprintf("could not read entry document: %v", err)
		return check
	}

	html := string(body)
	var failures []string

	if !looksMinified(html) {
		failures = append(failures, "markup does not look minified (indented or multi-space content)")
	}
	if !strings.Contains(html, "<script") && !strings.Contains(html, "stylesheet") {
		failures = append(failures, "entry document references no scripts or stylesheets")
	}
	// The transport decompresses transparently; Uncompressed records that
	// the server actually sent a compressed body. A Content-Encoding of
	// "identity" explicitly means no compression was applied.
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if !resp.Uncompressed && (encoding == "" || encoding == "identity") {
		failures = append(failures, "response is not served compressed (no gzip/brotli)")
	}

	check.Details = failures
	if len(failures) > 0 {
		check.Message = fmt.Sprintf("%d of 3 optimization heuristics failed", len(failures))
		return check
	}

	check.Success = true
	check.Message = "entry document is minified, compressed and references bundled assets"
	return check
}

func looksMinified(html string) bool {
	trimmed := strings.TrimSpace(html)
	if strings.HasPrefix(strings.ToLower(trimmed), "<!doctype html><") {
		return true
	}
	return !strings.Contains(trimmed, "    ")
}

// Verify runs the configured checks against url and aggregates them.
// Overall success requires zero failed checks.
func (v *Verifier) Verify(ctx context.Context, url string, opts Options) *Result {
	v.logger.Info("verifying deployment", "url", url, "skip_spa", opts.SkipSPARouting, "skip_assets", opts.SkipAssets)

	res := &Result{}
	res.Checks = append(res.Checks, v.CheckURL(ctx, url))
	if !opts.SkipSPARouting {
		res.Checks = append(res.Checks, v.CheckSPARouting(ctx, url))
	}
	if !opts.SkipAssets {
		res.Checks = append(res.Checks, v.CheckAssetOptimization(ctx, url))
	}

	for _, c := range res.Checks {
		res.Total++
		if c.Success {
			res.Passed++
		} else {
			res.Failed++
		}
	}
	res.Success = res.Failed == 0

	v.logger.Info("verification finished", "passed", res.Passed, "failed", res.Failed)
	return res
}

// do issues one probe. The timeout is enforced by the underlying client
// and covers the body read, so no per-call context deadline is layered on.
func (v *Verifier) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "agendai-deploy-verifier")
	return v.client.Do(req)
}
