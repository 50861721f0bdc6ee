package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
)

func TestDomainMatches(t *testing.T) {
	assert.True(t, domainMatches("portal.example.edu", "portal.example.edu"))
	assert.True(t, domainMatches("portal.example.edu", ".example.edu"))
	assert.True(t, domainMatches("portal.example.edu", "example.edu"))
	assert.False(t, domainMatches("portal.example.edu", "other.edu"))
	assert.False(t, domainMatches("evilexample.edu", "example.edu"))
}

func TestHeaderValue(t *testing.T) {
	headers := network.Headers{
		"authorization": "Bearer tok",
		"Accept":        "application/json",
		"X-Count":       float64(3),
	}

	assert.Equal(t, "Bearer tok", headerValue(headers, "Authorization"))
	assert.Equal(t, "", headerValue(headers, "Cookie"))
	assert.Equal(t, "", headerValue(headers, "X-Count"), "non-string header values are ignored")
}
