package fetcher

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// decodeBody converts textual responses declared in a legacy Chinese
// charset (GBK, GB2312, GB18030, Big5) to UTF-8. Binary bodies such as PDF
// and xlsx pass through untouched.
func decodeBody(contentType string, body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	ct := strings.ToLower(contentType)
	if !strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") {
		return body
	}

	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return body
	}
	if !certain && !strings.HasPrefix(name, "gb") && name != "big5" {
		return body
	}

	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		zap.L().Warn("fetcher: charset decode failed, keeping raw body",
			zap.String("charset", name), zap.Error(err))
		return body
	}
	return out
}
