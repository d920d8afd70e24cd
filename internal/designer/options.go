package designer

import (
	"time"

	"github.com/product-designer/backend/internal/models"
)

// ColorLinkPolicy decides how a color link group's available colors evolve
// as members join.
type ColorLinkPolicy string

const (
	ColorLinkUnion   ColorLinkPolicy = "union"
	ColorLinkReplace ColorLinkPolicy = "replace"
)

// Options configures a Stage.
type Options struct {
	// HistoryEnabled turns undo/redo recording on.
	HistoryEnabled bool
	// ReplaceInheritScale and ReplaceInheritFill copy the replaced element's
	// scale and fill onto its replacement in addition to its position.
	ReplaceInheritScale bool
	ReplaceInheritFill  bool
	ColorLinkPolicy     ColorLinkPolicy
	// SharedTextAttributes are propagated along text link groups together with the text.
	SharedTextAttributes []string
	// DisallowedChars are stripped from text content.
	DisallowedChars string
	AutoSelectDelay time.Duration
	// Border colors used by flag-out containment.
	InBoundsColor  string
	OutBoundsColor string
	// Upload constraints for custom images, in pixels. Zero disables a bound.
	UploadMinWidth  float64
	UploadMinHeight float64
	UploadMaxWidth  float64
	UploadMaxHeight float64
	// UploadMaxSize limits custom image payloads in bytes.
	UploadMaxSize int64
	// PrintingBoxAsBounding applies to views that do not set it themselves.
	PrintingBoxAsBounding bool
	// ElementDefaults is the global parameter layer applied beneath the view layers.
	ElementDefaults models.Params
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		HistoryEnabled:       true,
		ColorLinkPolicy:      ColorLinkUnion,
		SharedTextAttributes: []string{"fontFamily", "fontSize", "fill"},
		DisallowedChars:      "<>",
		AutoSelectDelay:      300 * time.Millisecond,
		InBoundsColor:        "#005ede",
		OutBoundsColor:       "#ff0000",
	}
}

// baseParams are the hard defaults every element starts from. Scale is left
// out so creation can tell a requested scale from the auto-fit one.
func baseParams() models.Params {
	return models.Params{
		"opacity":     1.0,
		"visible":     true,
		"fill":        "",
		"price":       0.0,
		"zChangeable": true,
		"copyable":    true,
	}
}

func textBaseParams() models.Params {
	return models.Params{
		"fontFamily": "Arial",
		"fontSize":   18.0,
		"lineHeight": 1.2,
		"textAlign":  "left",
		"fill":       "#000000",
	}
}
