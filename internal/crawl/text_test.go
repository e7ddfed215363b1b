package crawl

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePage_TextAndLinks(t *testing.T) {
	base, _ := url.Parse("https://happypaws.com/about/")
	body := []byte(`<html><body>
<nav><a href="team">Team</a></nav>
<div>Dr.&nbsp;Jane<br>Smith</div><div>Medical   Director</div>
<ul><li>Surgery</li><li>Dental</li></ul>
<p>ﬁne care</p>
<a href="/contact#form">Contact</a>
<a href="https://happypaws.com/contact">Contact dup</a>
<a href="javascript:void(0)">noop</a>
<a href="#top">Top</a>
</body></html>`)

	p, err := parsePage(body, base, 0)
	require.NoError(t, err)

	assert.Equal(t, "Dr. Jane Smith Medical Director Surgery Dental fine care Contact Contact dup noop Top", p.Text)
	assert.Equal(t, []string{
		"https://happypaws.com/about/team",
		"https://happypaws.com/contact",
	}, p.Links)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", cleanText("  a\n\n\tb   c "))
	// NFKC folds compatibility characters.
	assert.Equal(t, "fine A1", cleanText("ﬁne Ａ１"))
	assert.Equal(t, "", cleanText(" \n "))
}

func TestDetectBlock(t *testing.T) {
	cf := http.Header{}
	cf.Set("cf-ray", "abc")

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare header", 403, cf, "denied", BlockCloudflare},
		{"cloudflare server", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"challenge body", 200, http.Header{}, "<p>Checking your browser</p>", BlockCloudflare},
		{"small captcha", 200, http.Header{}, "<div class=g-recaptcha></div>", BlockCaptcha},
		{"captcha on full page", 200, http.Header{}, strings.Repeat("<p>content</p>", 1000) + "recaptcha", BlockNone},
		{"js shell", 200, http.Header{}, "<noscript>Enable JavaScript</noscript>", BlockJSShell},
		{"normal", 200, http.Header{}, "<p>Welcome</p>", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := DetectBlock(tt.status, tt.header, []byte(tt.body))
			assert.Equal(t, tt.want, got)
		})
	}
}
