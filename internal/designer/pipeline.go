package designer

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/params"
)

type applyMode int

const (
	opUser applyMode = iota
	opCreate
	opPropagate
)

// applyOptions is the single mutation path for elements. Each step only runs
// when the keys it depends on are present, always in this order.
func (s *Stage) applyOptions(el *models.Element, raw models.Params, mode applyMode) {
	v := s.product.Views[el.View]
	supplied := raw.Keys()
	in := raw.Clone()
	delete(in, "id")

	// 1. scale shorthand
	if sc, ok := in.Float("scale"); ok {
		in["scaleX"], in["scaleY"] = sc, sc
		delete(in, "scale")
	}

	// 2. one-time auto-fit
	if el.Runtime.Fresh {
		s.autoFit(v, el, in)
	}

	// 3. upload zone slotting
	if zone, _ := in.String("addToUploadZone"); zone != "" {
		s.slotIntoZone(v, el, zone, in)
	}

	// 4. capability flags
	deriveCapabilities(in)

	// 5. replace groups
	if key, _ := in.String("replace"); key != "" {
		s.resolveReplace(v, el, key, in)
	}

	// 6. text normalization
	if el.IsText() {
		s.normalizeText(el, in)
	}

	// 7. shadow merge
	if in.Has("shadow") {
		mergeShadow(el, in)
	}

	// 8. commit
	if err := commitParams(&el.Params, in); err != nil {
		Logger().Warn("parameters rejected", "id", el.ID, "title", el.Title, "view", el.View, "error", err)
		s.notify(models.Notification{Kind: models.NotifyError, View: el.View, ElementID: el.ID, Title: el.Title, Message: err.Error()})
		return
	}
	el.Params.ID = el.ID
	if in.Has("fill") || in.Has("colorPrices") {
		el.Params.CurrentColorPrice = el.ColorPriceFor(el.Params.Fill)
	}

	// 9. curvature
	if el.IsText() && in.Has("curved") {
		s.toggleCurve(el)
	}

	// 10. fill and pattern
	s.applyFill(el, in)

	// 11. z order
	if in.Has("z") {
		s.moveZ(v, el, el.Params.Z)
	} else if mode == opCreate {
		s.normalizeZ(v)
	}

	// 12. containment, including elements bounded by this one
	s.checkContainment(v, el)
	for _, other := range v.Elements {
		if other != el && other.Params.BoundingBox != nil && other.Params.BoundingBox.Ref == el.Title {
			s.checkContainment(v, other)
		}
	}

	// 13. modified notification
	if mode != opCreate {
		s.notifyElement(models.NotifyElementModify, el, supplied)
	}

	if mode == opUser {
		s.propagate(el, in)
	}

	// 14. history, recorded once the outermost call finishes
	s.dirty[v.Index] = true

	// 15. deferred auto-select
	if el.Runtime.Fresh {
		el.Runtime.Fresh = false
		if el.Params.AutoSelect {
			id := el.ID
			s.sched.schedule(id, s.opts.AutoSelectDelay, func() {
				if err := s.Select(id); err != nil {
					Logger().Debug("auto-select skipped", "id", id, "error", err)
				}
			})
		}
	}
}

// autoFit computes the initial scale of an image from its bounding region
// or upload zone when no explicit scale was requested.
func (s *Stage) autoFit(v *models.View, el *models.Element, in models.Params) {
	if in.Has("scaleX") || in.Has("scaleY") {
		return
	}
	in["scaleX"], in["scaleY"] = 1.0, 1.0
	if !el.IsImage() {
		return
	}
	w, _ := in.Float("width")
	h, _ := in.Float("height")
	if w <= 0 || h <= 0 {
		return
	}

	var (
		target *models.Rect
		inZone bool
	)
	mode, _ := in.String("scaleMode")
	if zoneTitle, _ := in.String("addToUploadZone"); zoneTitle != "" {
		if zone := v.ElementByTitle(zoneTitle); zone != nil && zone.Params.UploadZone {
			r := zone.BoundingRect()
			target, inZone = &r, true
			mode = zone.Params.UploadZoneScaleMode
		}
	}
	if target == nil {
		if bb, ok := boundingBoxParam(in["boundingBox"]); ok {
			target = s.regionOf(v, el, bb)
		}
	}
	rw, _ := in.Float("resizeToW")
	rh, _ := in.Float("resizeToH")
	if rw > 0 || rh > 0 {
		target = &models.Rect{Width: rw, Height: rh}
		if rw <= 0 {
			target.Width = math.Inf(1)
		}
		if rh <= 0 {
			target.Height = math.Inf(1)
		}
		inZone = true
	}
	if target == nil {
		return
	}

	sx, sy := target.Width/w, target.Height/h
	scale := math.Min(sx, sy)
	if mode == "cover" && !math.IsInf(sx, 1) && !math.IsInf(sy, 1) {
		scale = math.Max(sx, sy)
	}
	if !inZone && scale > 1 {
		scale = 1
	}
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return
	}
	in["scaleX"], in["scaleY"] = scale, scale
}

// slotIntoZone places el into an upload zone, taking over its position and
// behavior and marking the zone as filled.
func (s *Stage) slotIntoZone(v *models.View, el *models.Element, title string, in models.Params) {
	in["addToUploadZone"] = nil
	zone := v.ElementByTitle(title)
	if zone == nil || !zone.Params.UploadZone || zone == el {
		Logger().Debug("upload zone not found", "zone", title, "title", el.Title, "view", v.Index)
		return
	}
	zp := zone.Params

	in["x"], in["y"] = zp.X, zp.Y
	if zp.BoundingBox != nil {
		in["boundingBox"] = bboxParams(*zp.BoundingBox)
	} else {
		in["boundingBox"] = zone.Title
	}
	mode := zp.BoundingBoxMode
	if mode == models.BoundingNone {
		mode = models.BoundingClip
	}
	in["boundingBoxMode"] = string(mode)
	in["draggable"] = zp.UploadZoneMovable
	in["resizable"] = zp.UploadZoneMovable
	in["rotatable"] = zp.UploadZoneMovable
	in["removable"] = zp.UploadZoneRemovable
	if zp.Price != 0 {
		in["price"] = zp.Price
	}
	if !in.Has("z") {
		in["z"] = float64(zp.Z)
	}
	in["replace"] = zone.Title
	in["inUploadZone"] = zone.Title

	if zone.Params.Visible {
		zone.Params.Visible = false
		s.notifyElement(models.NotifyElementModify, zone, []string{"visible"})
	}
}

func deriveCapabilities(in models.Params) {
	if b, ok := in.Bool("draggable"); ok {
		in["lockMovementX"], in["lockMovementY"] = !b, !b
	}
	if b, ok := in.Bool("resizable"); ok {
		in["lockScalingX"], in["lockScalingY"] = !b, !b
		in["resizeControl"] = b
	}
	if b, ok := in.Bool("rotatable"); ok {
		in["lockRotation"] = !b
		in["rotateControl"] = b
	}
	if b, ok := in.Bool("removable"); ok {
		in["removeControl"] = b
	}
	if b, ok := in.Bool("copyable"); ok {
		in["copyControl"] = b
	}
	if b, ok := in.Bool("locked"); ok && b {
		in["lockMovementX"], in["lockMovementY"] = true, true
		in["lockScalingX"], in["lockScalingY"] = true, true
		in["lockRotation"] = true
	}
}

// resolveReplace removes every other element holding key and lets el take
// over its slot.
func (s *Stage) resolveReplace(v *models.View, el *models.Element, key string, in models.Params) {
	holders := make([]*models.Element, 0, 1)
	for _, other := range v.Elements {
		if other != el && other.Params.ReplaceKey == key && other.Committed() {
			holders = append(holders, other)
		}
	}
	zone, _ := in.String("inUploadZone")
	if zone == "" {
		zone = el.Params.InUploadZone
	}
	for _, other := range holders {
		in["x"], in["y"] = other.Params.X, other.Params.Y
		if s.opts.ReplaceInheritScale {
			in["scaleX"], in["scaleY"] = other.Params.ScaleX, other.Params.ScaleY
		}
		if s.opts.ReplaceInheritFill && other.Params.Fill != "" {
			in["fill"] = other.Params.Fill
		}
		if !in.Has("z") {
			in["z"] = float64(other.Params.Z)
		}
		keepZone := zone != "" && other.Params.InUploadZone == zone
		s.removeElement(v, other, models.StateReplaced, keepZone)
	}
}

func mergeShadow(el *models.Element, in models.Params) {
	patch, ok := asParams(in["shadow"])
	if !ok {
		in["shadow"] = nil
		return
	}
	if patch.Has("color") && patch["color"] == nil {
		in["shadow"] = nil
		return
	}
	cur := models.Params{}
	if el.Params.Shadow != nil {
		if p, err := models.ParamsOf(el.Params.Shadow); err == nil {
			cur = p
		}
	}
	in["shadow"] = params.Merge(cur, patch)
}

func (s *Stage) toggleCurve(el *models.Element) {
	p := &el.Params
	if !p.Curved {
		p.CurvePath = ""
		return
	}
	if p.MaxLines != 1 || p.TextBox || strings.Contains(p.Text, "\n") {
		p.Text = strings.ReplaceAll(p.Text, "\n", " ")
		p.MaxLines = 1
		p.TextBox = false
		s.measureText(el)
	}
	p.CurvePath = curvePath(p.CurveRadius, p.CurveReverse)
}

func (s *Stage) applyFill(el *models.Element, in models.Params) {
	var fill canvas.Fill
	p := el.Params
	switch {
	case in.Has("pattern") && p.Pattern != "":
		fill = canvas.Fill{Kind: canvas.FillPattern, Pattern: p.Pattern}
	case in.Has("svgFill") && len(p.SvgFill) > 0:
		fill = canvas.Fill{Kind: canvas.FillMultiPath, Colors: p.SvgFill}
	case in.Has("fill") && (p.Fill == "" || p.Fill == "none"):
		fill = canvas.Fill{Kind: canvas.FillNone}
	case in.Has("fill"):
		fill = canvas.Fill{Kind: canvas.FillSolid, Color: p.Fill}
	default:
		return
	}
	if err := s.engine.Colorize(el, fill); err != nil {
		Logger().Warn("colorize failed", "id", el.ID, "title", el.Title, "view", el.View, "error", err)
		s.notify(models.Notification{Kind: models.NotifyError, View: el.View, ElementID: el.ID, Title: el.Title, Message: err.Error()})
	}
}

var (
	boundingBoxType    = reflect.TypeOf(models.BoundingBox{})
	boundingBoxPtrType = reflect.TypeOf(&models.BoundingBox{})
)

// commitParams writes in onto dst. Absent keys keep their value, nil clears.
func commitParams(dst *models.Parameters, in models.Params) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ZeroFields:       true,
		DecodeHook:       boundingBoxHook,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(in)); err != nil {
		return err
	}
	clearNilPointers(dst, in)
	return nil
}

// pointerFields maps the json key of every pointer field of Parameters to
// its field index.
var pointerFields = func() map[string]int {
	out := map[string]int{}
	t := reflect.TypeOf(models.Parameters{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Kind() != reflect.Ptr {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			out[name] = i
		}
	}
	return out
}()

// clearNilPointers resets pointer fields explicitly set to nil. The decoder
// leaves an allocated zero value behind for them.
func clearNilPointers(dst *models.Parameters, in models.Params) {
	rv := reflect.ValueOf(dst).Elem()
	for key, idx := range pointerFields {
		if v, ok := in[key]; ok && isNilValue(v) {
			f := rv.Field(idx)
			f.Set(reflect.Zero(f.Type()))
		}
	}
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func boundingBoxHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != boundingBoxType && to != boundingBoxPtrType {
		return data, nil
	}
	var bb models.BoundingBox
	switch d := data.(type) {
	case models.BoundingBox:
		bb = d
	case *models.BoundingBox:
		if d == nil {
			return data, nil
		}
		bb = *d
	default:
		parsed, ok := boundingBoxParam(data)
		if !ok {
			return data, nil
		}
		bb = *parsed
	}
	if to == boundingBoxPtrType {
		return &bb, nil
	}
	return bb, nil
}

// boundingBoxParam reads a raw boundingBox parameter (title or rect object).
func boundingBoxParam(raw any) (*models.BoundingBox, bool) {
	switch b := raw.(type) {
	case nil:
		return nil, false
	case *models.BoundingBox:
		return b, b != nil
	case models.BoundingBox:
		return &b, true
	case string:
		if b == "" {
			return nil, false
		}
		return &models.BoundingBox{Ref: b}, true
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var bb models.BoundingBox
	if err := json.Unmarshal(data, &bb); err != nil {
		return nil, false
	}
	return &bb, true
}

func rectParams(r models.Rect) models.Params {
	p := models.Params{"x": r.X, "y": r.Y, "width": r.Width, "height": r.Height}
	if r.BorderRadius != 0 {
		p["borderRadius"] = r.BorderRadius
	}
	return p
}

func bboxParams(b models.BoundingBox) any {
	if b.Rect != nil {
		return rectParams(*b.Rect)
	}
	return b.Ref
}

func asParams(v any) (models.Params, bool) {
	switch m := v.(type) {
	case models.Params:
		return m, true
	case map[string]any:
		return models.Params(m), true
	}
	return nil, false
}
