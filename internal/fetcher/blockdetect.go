package fetcher

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

// Block kinds reported by DetectBlock.
const (
	BlockNone       BlockType = ""
	BlockForbidden  BlockType = "forbidden"
	BlockChallenge  BlockType = "challenge_redirect"
	BlockCloudflare BlockType = "cloudflare"
)

// challengeMarkers are URL fragments of verification pages that sites
// redirect suspected bots to.
var challengeMarkers = []string{"captcha", "verify", "challenge"}

// DetectBlock reports whether resp is an anti-bot answer rather than content.
// resp.Request.URL is the final URL after redirects.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.Request != nil && resp.Request.URL != nil {
		final := strings.ToLower(resp.Request.URL.String())
		for _, m := range challengeMarkers {
			if strings.Contains(final, m) {
				return true, BlockChallenge
			}
		}
	}

	if resp.StatusCode == http.StatusForbidden {
		if isCloudflare(resp) {
			return true, BlockCloudflare
		}
		return true, BlockForbidden
	}

	if resp.StatusCode == http.StatusServiceUnavailable && isCloudflare(resp) {
		return true, BlockCloudflare
	}

	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, BlockCloudflare
	}

	return false, BlockNone
}

func isCloudflare(resp *http.Response) bool {
	return resp.Header.Get("cf-ray") != "" ||
		resp.Header.Get("cf-mitigated") != "" ||
		strings.EqualFold(resp.Header.Get("server"), "cloudflare")
}
