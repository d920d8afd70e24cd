package assets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSVGSize(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		w, h float64
	}{
		{"attributes", `<svg width="200" height="100"/>`, 200, 100},
		{"px units", `<svg width="20px" height="10px"/>`, 20, 10},
		{"view box", `<svg viewBox="0 0 64 32"/>`, 64, 32},
		{"comma view box", `<svg viewBox="0,0,64,32"/>`, 64, 32},
		{"percent falls back", `<svg width="100%" height="50" viewBox="0 0 80 40"/>`, 80, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := ParseSVG(strings.NewReader(tc.doc))
			require.NoError(t, err)
			assert.Equal(t, tc.w, info.Width)
			assert.Equal(t, tc.h, info.Height)
		})
	}
}

func TestParseSVGErrors(t *testing.T) {
	_, err := ParseSVG(strings.NewReader(`<html></html>`))
	assert.Error(t, err)
	_, err = ParseSVG(strings.NewReader(`<svg></svg>`))
	assert.Error(t, err)
	_, err = ParseSVG(strings.NewReader(``))
	assert.Error(t, err)
}

func TestLooksLikeSVG(t *testing.T) {
	assert.True(t, LooksLikeSVG([]byte("  <svg/>")))
	assert.True(t, LooksLikeSVG([]byte(`<?xml version="1.0"?><svg/>`)))
	assert.False(t, LooksLikeSVG([]byte(`<?xml version="1.0"?><html/>`)))
	assert.False(t, LooksLikeSVG([]byte("\x89PNG")))
}
