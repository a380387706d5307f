package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDecodeBody_GBKHeader(t *testing.T) {
	raw, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("<html><p>花呗贷款余额</p></html>"))
	require.NoError(t, err)

	out := decodeBody("text/html; charset=GBK", raw)
	assert.Equal(t, "<html><p>花呗贷款余额</p></html>", string(out))
}

func TestDecodeBody_GB2312Meta(t *testing.T) {
	raw, err := simplifiedchinese.GBK.NewEncoder().Bytes(
		[]byte(`<html><head><meta charset="gb2312"></head><body>微粒贷</body></html>`))
	require.NoError(t, err)

	out := decodeBody("text/html", raw)
	assert.Contains(t, string(out), "微粒贷")
}

func TestDecodeBody_PassThrough(t *testing.T) {
	utf := []byte("<html><p>借呗</p></html>")
	assert.Equal(t, utf, decodeBody("text/html; charset=utf-8", utf))

	pdf := []byte("%PDF-1.7\x00\xff\xfe")
	assert.Equal(t, pdf, decodeBody("application/pdf", pdf))
	assert.Empty(t, decodeBody("text/html", nil))
}
