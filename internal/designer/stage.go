// Package designer implements the element state-synchronization and rules
// engine of the product designer.
//
// A Stage owns the views of the active product. Every mutation goes through
// the option pipeline (ApplyOptions), which resolves containment, replace
// groups, upload zones and link groups before committing, then records
// history and recomputes prices. Notifications raised while a call is in
// flight are queued and delivered synchronously, in order, once the stage
// lock has been released but before the call returns.
package designer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/events"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/pricing"
	"github.com/zoobzio/clockz"
)

// Deps are the collaborators a Stage calls into. Nil members fall back to
// no-op or approximate implementations.
type Deps struct {
	Engine   canvas.Engine
	Loader   canvas.Loader
	Measurer canvas.Measurer
	Clock    clockz.Clock
	Pricing  *pricing.Engine
}

// Stage is the live scene of one designer session.
type Stage struct {
	mu       sync.Mutex
	opts     Options
	engine   canvas.Engine
	loader   canvas.Loader
	measurer canvas.Measurer
	clock    clockz.Clock
	pricer   *pricing.Engine
	bus      *events.Bus
	sched    *scheduler

	product    models.Product
	generation uint64
	ledgers    []*ledger
	links      *linkRegistry
	rules      []models.RuleGroup
	selected   string
	loading    int
	total      float64

	queue       []models.Notification
	dirty       map[int]bool
	holdHistory int
	propagating bool
}

// NewStage creates an empty stage. Call LoadProduct to populate it.
func NewStage(opts Options, deps Deps) *Stage {
	s := &Stage{
		opts:     opts,
		engine:   deps.Engine,
		loader:   deps.Loader,
		measurer: deps.Measurer,
		clock:    deps.Clock,
		pricer:   deps.Pricing,
		bus:      events.NewBus(),
		dirty:    make(map[int]bool),
	}
	if s.engine == nil {
		s.engine = canvas.NopEngine{}
	}
	if s.measurer == nil {
		s.measurer = canvas.ApproxMeasurer{}
	}
	if s.clock == nil {
		s.clock = clockz.RealClock
	}
	if s.pricer == nil {
		s.pricer = pricing.NewEngine()
	}
	if s.opts.ColorLinkPolicy == "" {
		s.opts.ColorLinkPolicy = ColorLinkUnion
	}
	s.sched = newScheduler(s.clock)
	s.links = newLinkRegistry(s.opts.ColorLinkPolicy)
	return s
}

// Bus returns the notification bus of the stage.
func (s *Stage) Bus() *events.Bus {
	return s.bus
}

// Options returns the stage configuration.
func (s *Stage) Options() Options {
	return s.opts
}

// Close cancels every scheduled task.
func (s *Stage) Close() {
	s.sched.cancelAll()
}

// do runs fn under the stage lock, records history for touched views,
// refreshes prices and then delivers the queued notifications.
func (s *Stage) do(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.recordDirty()
	s.updatePrices()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, n := range queued {
		s.bus.Fire(n)
	}
	return err
}

func (s *Stage) notify(n models.Notification) {
	n.At = s.clock.Now()
	s.queue = append(s.queue, n)
}

func (s *Stage) notifyElement(kind models.NotificationKind, el *models.Element, keys []string) {
	s.notify(models.Notification{Kind: kind, View: el.View, ElementID: el.ID, Title: el.Title, Keys: keys})
}

func (s *Stage) view(index int) (*models.View, error) {
	if index < 0 || index >= len(s.product.Views) {
		return nil, fmt.Errorf("%w: %d", ErrViewNotFound, index)
	}
	return s.product.Views[index], nil
}

func (s *Stage) find(id string) (*models.Element, *models.View) {
	for _, v := range s.product.Views {
		if el, _ := v.ElementByID(id); el != nil {
			return el, v
		}
	}
	return nil, nil
}

func (s *Stage) element(id string) (*models.Element, *models.View, error) {
	el, v := s.find(id)
	if el == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	return el, v, nil
}

// LoadProduct replaces the active product. Elements flagged fixed in the
// previous product are carried over to the view with the same index. Initial
// elements that fail to load are logged and skipped.
func (s *Stage) LoadProduct(ctx context.Context, def models.ProductDef) error {
	if len(def.Views) == 0 {
		return fmt.Errorf("%w: product %q has no views", ErrMalformedRequest, def.Title)
	}

	err := s.do(func() error {
		fixed := map[int][]*models.Element{}
		for _, v := range s.product.Views {
			for _, el := range v.Elements {
				if el.Params.Fixed {
					fixed[v.Index] = append(fixed[v.Index], el)
				}
			}
		}

		s.sched.cancelAll()
		s.generation++
		s.holdHistory++

		views := make([]*models.View, len(def.Views))
		s.ledgers = make([]*ledger, len(def.Views))
		for i, vj := range def.Views {
			v := models.NewView(i, vj.Title, vj.Options)
			v.Thumbnail = vj.Thumbnail
			v.Mask = vj.Mask
			v.Locked = vj.Locked
			views[i] = v
			s.ledgers[i] = &ledger{}
		}
		s.product = models.Product{ID: def.ID, Title: def.Title, Views: views}
		s.links = newLinkRegistry(s.opts.ColorLinkPolicy)
		s.selected = ""

		for idx, els := range fixed {
			if idx >= len(views) {
				continue
			}
			for _, el := range els {
				el.View = idx
				views[idx].Elements = append(views[idx].Elements, el)
				s.links.add(el)
			}
			s.normalizeZ(views[idx])
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, vj := range def.Views {
		for _, ej := range vj.Elements {
			ej.Parameters = ej.Parameters.Clone()
			if ej.Parameters == nil {
				ej.Parameters = models.Params{}
			}
			ej.Parameters["isInitial"] = true
			if _, err := s.AddElement(ctx, i, ej); err != nil {
				Logger().Warn("initial element skipped", "title", ej.Title, "view", i, "error", err)
			}
		}
	}

	return s.do(func() error {
		s.holdHistory--
		for i, v := range s.product.Views {
			snap, err := s.snapshot(v)
			if err != nil {
				return err
			}
			s.ledgers[i] = &ledger{current: snap}
		}
		s.notify(models.Notification{Kind: models.NotifyProductChange, Title: def.Title, View: -1})
		return ctx.Err()
	})
}

// Product returns the identity of the active product and its view count.
func (s *Stage) Product() (id, title string, views int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.product.ID, s.product.Title, len(s.product.Views)
}

// Element returns a copy of an element.
func (s *Stage) Element(id string) (*models.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, _, err := s.element(id)
	if err != nil {
		return nil, err
	}
	return el.Clone(), nil
}

// Elements returns copies of a view's elements in z order.
func (s *Stage) Elements(view int) ([]*models.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Element, len(v.Elements))
	for i, el := range v.Elements {
		out[i] = el.Clone()
	}
	return out, nil
}

// ElementByTitle returns a copy of the first element with the given title.
func (s *Stage) ElementByTitle(view int, title string) (*models.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return nil, err
	}
	el := v.ElementByTitle(title)
	if el == nil {
		return nil, fmt.Errorf("%w: title %q", ErrElementNotFound, title)
	}
	return el.Clone(), nil
}

// Loading reports the number of in-flight asset loads.
func (s *Stage) Loading() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Select marks an element as the active selection.
func (s *Stage) Select(id string) error {
	return s.do(func() error {
		el, _, err := s.element(id)
		if err != nil {
			return err
		}
		s.selected = id
		s.notifyElement(models.NotifyElementSelect, el, nil)
		return nil
	})
}

// Selected returns the id of the selected element, or "".
func (s *Stage) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// ViewJSON serializes a view.
func (s *Stage) ViewJSON(view int) (models.ViewJSON, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return models.ViewJSON{}, err
	}
	return v.JSON()
}

// ProductJSON serializes the whole product.
func (s *Stage) ProductJSON() (models.ProductDef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := models.ProductDef{ID: s.product.ID, Title: s.product.Title}
	for _, v := range s.product.Views {
		vj, err := v.JSON()
		if err != nil {
			return models.ProductDef{}, err
		}
		out.Views = append(out.Views, vj)
	}
	return out, nil
}

// Snapshot returns the persisted form of a view's elements.
func (s *Stage) Snapshot(view int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return nil, err
	}
	return s.snapshot(v)
}

// RestoreSnapshot replaces a view's elements with a persisted snapshot. The
// change is recorded as a regular history entry.
func (s *Stage) RestoreSnapshot(view int, data []byte) error {
	return s.do(func() error {
		v, err := s.view(view)
		if err != nil {
			return err
		}
		if err := s.replay(v, data); err != nil {
			return err
		}
		s.dirty[v.Index] = true
		return nil
	})
}

// LinkGroupColors returns the available colors of a color link group.
func (s *Stage) LinkGroupColors(group string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links.colors(group)
}

func (s *Stage) newID(requested string) string {
	if requested != "" {
		if el, _ := s.find(requested); el == nil {
			return requested
		}
	}
	return uuid.NewString()
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
