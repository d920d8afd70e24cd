package designer

import (
	"context"
	"errors"
	"fmt"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/params"
)

// Pending is an element whose visual payload is still loading.
type Pending struct {
	done   chan struct{}
	cancel context.CancelFunc
	id     string
	err    error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) finish(id string, err error) {
	p.id, p.err = id, err
	close(p.done)
}

// Done is closed once the element is committed or dropped.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the load completes and returns the committed element id.
func (p *Pending) Wait() (string, error) {
	<-p.done
	return p.id, p.err
}

// Cancel aborts the load. A canceled element is never added to the scene.
func (p *Pending) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}

func validateRequest(req models.ElementJSON) error {
	switch {
	case !req.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrMalformedRequest, req.Type)
	case req.Source == "":
		return fmt.Errorf("%w: missing source", ErrMalformedRequest)
	case req.Title == "":
		return fmt.Errorf("%w: missing title", ErrMalformedRequest)
	}
	return nil
}

// Create starts adding an element to a view. Text elements commit before
// Create returns; images commit once their source has loaded.
func (s *Stage) Create(ctx context.Context, view int, req models.ElementJSON) *Pending {
	p := newPending()
	if err := validateRequest(req); err != nil {
		Logger().Warn("dropping element request", "title", req.Title, "view", view, "error", err)
		p.finish("", err)
		return p
	}

	if req.Type == models.ElementTypeText {
		var id string
		err := s.do(func() error {
			el, resolved, err := s.prepare(view, req)
			if err != nil {
				return err
			}
			id = el.ID
			return s.commit(el, resolved, canvas.Asset{})
		})
		p.finish(id, err)
		return p
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	var (
		el         *models.Element
		resolved   models.Params
		generation uint64
	)
	err := s.do(func() error {
		var err error
		el, resolved, err = s.prepare(view, req)
		if err != nil {
			return err
		}
		generation = s.generation
		s.loading++
		return nil
	})
	if err != nil {
		cancel()
		p.finish("", err)
		return p
	}

	go s.load(ctx, p, el, resolved, generation)
	return p
}

func (s *Stage) load(ctx context.Context, p *Pending, el *models.Element, resolved models.Params, generation uint64) {
	defer p.cancel()

	var (
		asset canvas.Asset
		err   error
	)
	if s.loader == nil {
		err = errors.New("no asset loader configured")
	} else {
		asset, err = s.loader.Load(ctx, el.Source)
	}

	err = s.do(func() error {
		s.loading--
		switch {
		case isCanceled(ctx, err):
			Logger().Debug("element load canceled", "title", el.Title, "view", el.View)
			s.notifyElement(models.NotifyElementFail, el, nil)
			return fmt.Errorf("%w: %s", ErrLoadCanceled, el.Title)
		case err != nil:
			Logger().Warn("element source failed", "title", el.Title, "view", el.View, "error", err)
			n := models.Notification{Kind: models.NotifyElementFail, View: el.View, ElementID: el.ID, Title: el.Title, Message: err.Error()}
			s.notify(n)
			return fmt.Errorf("%w: %s: %v", ErrAssetFailed, el.Title, err)
		case generation != s.generation:
			return fmt.Errorf("%w: product changed while loading %s", ErrLoadCanceled, el.Title)
		}
		if err := s.checkUpload(el, resolved, asset); err != nil {
			s.notify(models.Notification{Kind: models.NotifyError, View: el.View, Title: el.Title, Message: err.Error()})
			return err
		}
		return s.commit(el, resolved, asset)
	})
	if err != nil {
		p.finish("", err)
		return
	}
	p.finish(el.ID, nil)
}

// AddElement creates an element and waits for it to be committed.
func (s *Stage) AddElement(ctx context.Context, view int, req models.ElementJSON) (string, error) {
	return s.Create(ctx, view, req).Wait()
}

// AddElements adds a batch in order. Failed items are logged and skipped;
// the returned error joins their failures.
func (s *Stage) AddElements(ctx context.Context, view int, reqs []models.ElementJSON) ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, req := range reqs {
		id, err := s.AddElement(ctx, view, req)
		if err != nil {
			Logger().Warn("batch item skipped", "title", req.Title, "view", view, "error", err)
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}

// prepare resolves the parameter layers of a create request into an attached
// element. The element is not part of the view yet.
func (s *Stage) prepare(view int, req models.ElementJSON) (*models.Element, models.Params, error) {
	v, err := s.view(view)
	if err != nil {
		return nil, nil, err
	}
	custom, _ := req.Parameters.Bool("isCustom")
	if custom && v.Locked {
		return nil, nil, fmt.Errorf("%w: %d", ErrViewLocked, view)
	}

	layers := []models.Params{baseParams()}
	if req.Type == models.ElementTypeText {
		layers = append(layers, textBaseParams())
	}
	layers = append(layers,
		s.opts.ElementDefaults,
		v.Options.ElementParameters,
		v.Options.TypeLayer(req.Type, custom),
		req.Parameters,
	)
	resolved := params.Merge(layers...)

	requested, _ := resolved.String("id")
	delete(resolved, "id")

	if req.Type == models.ElementTypeText && !resolved.Has("text") {
		resolved["text"] = req.Source
	}

	if group, _ := resolved.String("colorLinkGroup"); group != "" {
		if fill, ok := s.linkFill(group); ok {
			resolved["fill"] = fill
		}
	}

	usePB := v.Options.UsePrintingBoxAsBounding || s.opts.PrintingBoxAsBounding
	if usePB && v.Options.PrintingBox != nil && resolved["boundingBox"] == nil {
		pb := *v.Options.PrintingBox
		resolved["boundingBox"] = rectParams(pb)
		if mode, _ := resolved.String("boundingBoxMode"); mode == "" {
			resolved["boundingBoxMode"] = string(models.BoundingClip)
		}
	}

	if !resolved.Has("x") && !resolved.Has("y") {
		center := v.StageRect()
		if bb, ok := boundingBoxParam(resolved["boundingBox"]); ok {
			if r := s.regionOf(v, nil, bb); r != nil {
				center = *r
			}
		}
		resolved["x"] = center.X + center.Width/2
		resolved["y"] = center.Y + center.Height/2
	}

	el := &models.Element{
		ID:      s.newID(requested),
		Type:    req.Type,
		Title:   req.Title,
		Source:  req.Source,
		View:    v.Index,
		Runtime: models.Runtime{State: models.StateAttached, Fresh: true},
	}
	el.Params.ID = el.ID
	return el, resolved, nil
}

func (s *Stage) checkUpload(el *models.Element, resolved models.Params, asset canvas.Asset) error {
	if custom, _ := resolved.Bool("isCustom"); !custom {
		return nil
	}
	o := s.opts
	switch {
	case o.UploadMinWidth > 0 && asset.Width < o.UploadMinWidth,
		o.UploadMinHeight > 0 && asset.Height < o.UploadMinHeight:
		return fmt.Errorf("%w: %s is %gx%g, minimum is %gx%g", ErrConstraintViolation,
			el.Title, asset.Width, asset.Height, o.UploadMinWidth, o.UploadMinHeight)
	case o.UploadMaxWidth > 0 && asset.Width > o.UploadMaxWidth,
		o.UploadMaxHeight > 0 && asset.Height > o.UploadMaxHeight:
		return fmt.Errorf("%w: %s is %gx%g, maximum is %gx%g", ErrConstraintViolation,
			el.Title, asset.Width, asset.Height, o.UploadMaxWidth, o.UploadMaxHeight)
	case o.UploadMaxSize > 0 && asset.Size > o.UploadMaxSize:
		return fmt.Errorf("%w: %s is %d bytes, maximum is %d", ErrConstraintViolation,
			el.Title, asset.Size, o.UploadMaxSize)
	}
	return nil
}

// commit attaches a prepared element to its view and runs the full option
// pipeline with every resolved parameter.
func (s *Stage) commit(el *models.Element, resolved models.Params, asset canvas.Asset) error {
	v, err := s.view(el.View)
	if err != nil {
		return err
	}
	if el.IsImage() {
		if !resolved.Has("width") {
			resolved["width"] = asset.Width
		}
		if !resolved.Has("height") {
			resolved["height"] = asset.Height
		}
		if len(asset.Colors) > 0 && !resolved.Has("svgFill") {
			colors := make([]any, len(asset.Colors))
			for i, c := range asset.Colors {
				colors[i] = c
			}
			resolved["svgFill"] = colors
		}
	}

	v.Elements = append(v.Elements, el)
	s.applyOptions(el, resolved, opCreate)
	el.Runtime.State = models.StateCommitted
	s.links.add(el)
	s.notifyElement(models.NotifyElementAdd, el, nil)
	return nil
}

// ApplyOptions changes parameters of a committed element.
func (s *Stage) ApplyOptions(id string, p models.Params) error {
	return s.do(func() error {
		el, _, err := s.element(id)
		if err != nil {
			return err
		}
		if len(p) == 0 {
			return nil
		}
		s.applyOptions(el, p, opUser)
		return nil
	})
}

// Duplicate re-creates an element with its exportable parameters, offset by
// 30 scene units on both axes.
func (s *Stage) Duplicate(ctx context.Context, id string) (string, error) {
	var (
		req  models.ElementJSON
		view int
	)
	err := s.do(func() error {
		el, _, err := s.element(id)
		if err != nil {
			return err
		}
		ej, err := el.JSON()
		if err != nil {
			return err
		}
		p := ej.Parameters.Without("id", "replace", "inUploadZone", "addToUploadZone", "z", "isInitial")
		p["x"] = el.Params.X + 30
		p["y"] = el.Params.Y + 30
		p["copyable"] = true
		p["autoSelect"] = true
		req = models.ElementJSON{Type: el.Type, Source: el.Source, Title: el.Title, Parameters: p}
		view = el.View
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.AddElement(ctx, view, req)
}

// Remove deletes an element from the scene.
func (s *Stage) Remove(id string) error {
	return s.do(func() error {
		el, v, err := s.element(id)
		if err != nil {
			return err
		}
		s.removeElement(v, el, models.StateRemoved, false)
		return nil
	})
}

// removeElement detaches el. An upload zone left without occupants becomes
// visible again unless keepZone is set.
func (s *Stage) removeElement(v *models.View, el *models.Element, state models.ElementState, keepZone bool) {
	_, idx := v.ElementByID(el.ID)
	if idx < 0 {
		return
	}
	v.Elements = append(v.Elements[:idx], v.Elements[idx+1:]...)
	el.Runtime.State = state
	s.sched.cancel(el.ID)
	s.links.remove(el)
	if s.selected == el.ID {
		s.selected = ""
	}
	if zone := el.Params.InUploadZone; zone != "" && !keepZone {
		s.emptyZone(v, zone)
	}
	s.normalizeZ(v)
	s.notifyElement(models.NotifyElementRemove, el, nil)
	s.dirty[v.Index] = true
}

func (s *Stage) emptyZone(v *models.View, title string) {
	for _, other := range v.Elements {
		if other.Params.InUploadZone == title {
			return
		}
	}
	zone := v.ElementByTitle(title)
	if zone == nil || !zone.Params.UploadZone || zone.Params.Visible {
		return
	}
	zone.Params.Visible = true
	s.notifyElement(models.NotifyElementModify, zone, []string{"visible"})
}
