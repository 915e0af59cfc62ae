package deploy

import (
	"regexp"
	"strings"
)

// ParsedOutput is what can be recovered from the deploy tool's
// human-readable output.
type ParsedOutput struct {
	// URL is the primary URL, preferring a custom domain over the
	// platform subdomain when both appear.
	URL string

	// PreviewURL is the platform-subdomain URL when it is distinct from
	// URL.
	PreviewURL string

	// DeploymentID is the platform's identifier for this deployment.
	DeploymentID string

	// URLs is every distinct URL found, in order of first appearance.
	URLs []string
}

const platformSuffix = ".pages.dev"

var (
	urlRe          = regexp.MustCompile(`https://[A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,}(?:/[^\s"'<>]*)?`)
	deploymentIDRe = regexp.MustCompile(`(?i)deployment\s+id:\s*([0-9a-f][0-9a-f-]*)`)
	subdomainIDRe  = regexp.MustCompile(`https://deployment-([0-9a-f]+)\.`)
)

// ParseDeploymentOutput scrapes wrangler's textual output for URLs and the
// deployment identifier. Pure string processing; the tool's output format
// is not under our control, so the scraping stays isolated here and is
// tested against literal fixtures.
func ParseDeploymentOutput(text string) ParsedOutput {
	var out ParsedOutput

	seen := make(map[string]bool)
	for _, raw := range urlRe.FindAllString(text, -1) {
		u := strings.TrimRight(raw, ".,;:!?)")
		if seen[u] {
			continue
		}
		seen[u] = true
		out.URLs = append(out.URLs, u)
	}

	var firstCustom, firstPlatform string
	for _, u := range out.URLs {
		if isPlatformURL(u) {
			if firstPlatform == "" {
				firstPlatform = u
			}
		} else if firstCustom == "" {
			firstCustom = u
		}
	}

	switch {
	case firstCustom != "":
		out.URL = firstCustom
		if firstPlatform != "" {
			out.PreviewURL = firstPlatform
		}
	case firstPlatform != "":
		out.URL = firstPlatform
	}
	// PreviewURL only carries information when distinct from URL.
	if out.PreviewURL == out.URL {
		out.PreviewURL = ""
	}

	if m := deploymentIDRe.FindStringSubmatch(text); m != nil {
		out.DeploymentID = m[1]
	} else if m := subdomainIDRe.FindStringSubmatch(text); m != nil {
		out.DeploymentID = m[1]
	}

	return out
}

func isPlatformURL(u string) bool {
	host := strings.TrimPrefix(u, "https://")
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	return strings.HasSuffix(host, platformSuffix)
}
