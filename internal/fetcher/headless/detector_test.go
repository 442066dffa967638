package headless

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldPromoteEmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	assert.True(t, h.ShouldPromote(200, nil))
}

func TestShouldPromoteSPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := []byte(`<html><body><div id="root"></div></body></html>`)
	assert.True(t, h.ShouldPromote(200, body))
}

func TestShouldPromoteScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	body := []byte("<html><script>" + strings.Repeat("x", 400) + "</script><p>hi</p></html>")
	assert.True(t, h.ShouldPromote(200, body))
}

func TestShouldPromoteDisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	assert.False(t, h.ShouldPromote(404, nil))
}

func TestShouldPromoteFullPageStaysPlain(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := []byte("<html><body><header><h1>org/alpha</h1></header>" + strings.Repeat("<p>content</p>", 50) + "</body></html>")
	assert.False(t, h.ShouldPromote(200, body))
}
