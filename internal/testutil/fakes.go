package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
)

// FakeLoader resolves sources from a scripted table. Sources can be made to
// fail or to block until released.
type FakeLoader struct {
	mu      sync.Mutex
	assets  map[string]canvas.Asset
	errs    map[string]error
	gates   map[string]chan struct{}
	calls   []string
	started chan string

	// Default is returned for unscripted sources when its size is set.
	Default canvas.Asset
}

// NewFakeLoader creates a loader that knows no sources.
func NewFakeLoader() *FakeLoader {
	return &FakeLoader{
		assets:  make(map[string]canvas.Asset),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
}

// Set scripts the asset returned for source.
func (f *FakeLoader) Set(source string, a canvas.Asset) *FakeLoader {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[source] = a
	return f
}

// Fail makes source fail with err.
func (f *FakeLoader) Fail(source string, err error) *FakeLoader {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[source] = err
	return f
}

// Block holds loads of source until the returned function is called or the
// load context is canceled.
func (f *FakeLoader) Block(source string) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[source] = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Started receives each source as its load begins.
func (f *FakeLoader) Started() <-chan string {
	return f.started
}

// Load implements canvas.Loader.
func (f *FakeLoader) Load(ctx context.Context, source string) (canvas.Asset, error) {
	f.mu.Lock()
	f.calls = append(f.calls, source)
	gate := f.gates[source]
	f.mu.Unlock()

	select {
	case f.started <- source:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return canvas.Asset{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return canvas.Asset{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[source]; ok {
		return canvas.Asset{}, err
	}
	if a, ok := f.assets[source]; ok {
		return a, nil
	}
	if f.Default.Width > 0 && f.Default.Height > 0 {
		return f.Default, nil
	}
	return canvas.Asset{}, fmt.Errorf("unknown source %q", source)
}

// Calls returns the sources loaded so far, in order.
func (f *FakeLoader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var _ canvas.Loader = (*FakeLoader)(nil)

// ColorizeCall is one recorded Colorize invocation.
type ColorizeCall struct {
	ElementID string
	Title     string
	Fill      canvas.Fill
}

// ClipCall is one recorded Clip invocation. Region is nil when the clip was cleared.
type ClipCall struct {
	ElementID string
	Title     string
	Region    *models.Rect
}

// ExportCall captures the scene state seen by Snapshot or Vectorize.
type ExportCall struct {
	View     int
	Zoom     float64
	Visible  []string // titles of visible elements
	Snapshot *canvas.SnapshotOptions
	Vector   *canvas.SVGOptions
}

// RecordingEngine implements canvas.Engine by recording every call.
type RecordingEngine struct {
	mu        sync.Mutex
	colorized []ColorizeCall
	clipped   []ClipCall
	exports   []ExportCall

	SnapshotBytes []byte
	SVG           string
	ColorizeErr   error
}

// NewRecordingEngine returns an engine with canned export output.
func NewRecordingEngine() *RecordingEngine {
	return &RecordingEngine{
		SnapshotBytes: []byte("snapshot"),
		SVG:           `<svg xmlns="http://www.w3.org/2000/svg"></svg>`,
	}
}

func (r *RecordingEngine) Colorize(el *models.Element, fill canvas.Fill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.colorized = append(r.colorized, ColorizeCall{ElementID: el.ID, Title: el.Title, Fill: fill})
	return r.ColorizeErr
}

func (r *RecordingEngine) Clip(el *models.Element, region *models.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var copied *models.Rect
	if region != nil {
		c := *region
		copied = &c
	}
	r.clipped = append(r.clipped, ClipCall{ElementID: el.ID, Title: el.Title, Region: copied})
	return nil
}

func (r *RecordingEngine) Snapshot(v *models.View, opts canvas.SnapshotOptions) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := exportCall(v)
	call.Snapshot = &opts
	r.exports = append(r.exports, call)
	return r.SnapshotBytes, nil
}

func (r *RecordingEngine) Vectorize(v *models.View, opts canvas.SVGOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := exportCall(v)
	call.Vector = &opts
	r.exports = append(r.exports, call)
	return r.SVG, nil
}

func exportCall(v *models.View) ExportCall {
	call := ExportCall{View: v.Index, Zoom: v.Zoom}
	for _, el := range v.Elements {
		if el.Params.Visible {
			call.Visible = append(call.Visible, el.Title)
		}
	}
	return call
}

// Colorized returns the recorded Colorize calls.
func (r *RecordingEngine) Colorized() []ColorizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ColorizeCall(nil), r.colorized...)
}

// Clipped returns the recorded Clip calls.
func (r *RecordingEngine) Clipped() []ClipCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ClipCall(nil), r.clipped...)
}

// Exports returns the recorded Snapshot and Vectorize calls.
func (r *RecordingEngine) Exports() []ExportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExportCall(nil), r.exports...)
}

var _ canvas.Engine = (*RecordingEngine)(nil)
