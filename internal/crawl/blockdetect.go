package crawl

import (
	"bytes"
	"net/http"
)

// BlockType describes the kind of anti-bot response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
)

// challengeMaxBytes bounds the body scan. Real listing pages are far larger
// and may mention captcha in their scripts.
const challengeMaxBytes = 16 << 10

// DetectBlock checks a response for an anti-bot interstitial instead of a
// listing page. Blocks are not retried.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	// Cloudflare: 403/503 with cf-* headers.
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-mitigated") != "" ||
			resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	if len(body) > challengeMaxBytes {
		return false, BlockNone
	}

	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("checking your browser")) ||
		bytes.Contains(lower, []byte("cf-browser-verification")) ||
		bytes.Contains(lower, []byte("cf-challenge")) {
		return true, BlockCloudflare
	}
	if bytes.Contains(lower, []byte("captcha")) {
		return true, BlockCaptcha
	}

	return false, BlockNone
}
