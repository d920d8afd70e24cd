package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/product-designer/backend/internal/designer"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/pricing"
	"github.com/product-designer/backend/internal/session"
	"github.com/vmihailenco/msgpack/v5"
)

// ExportDefaults are applied to raster exports that do not choose for themselves.
type ExportDefaults struct {
	Format    string
	Quality   int
	Watermark string
}

// Handler handles designer session requests.
type Handler struct {
	session     *session.Manager
	maxQuantity int
	export      ExportDefaults
}

// NewHandler creates a new API handler.
func NewHandler(sessions *session.Manager, maxQuantity int, export ExportDefaults) *Handler {
	if maxQuantity <= 0 {
		maxQuantity = 1000
	}
	return &Handler{
		session:     sessions,
		maxQuantity: maxQuantity,
		export:      export,
	}
}

type createSessionRequest struct {
	ProductID string             `json:"productId"`
	Product   *models.ProductDef `json:"product"`
}

func (r *createSessionRequest) validate() error {
	if r.ProductID == "" && r.Product == nil {
		return NewValidationError("productId")
	}
	return nil
}

// HandleCreateSession starts a session with a catalog product or an inline
// product definition.
func (h *Handler) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var (
		sess *models.DesignSession
		err  error
	)
	if req.Product != nil {
		sess, err = h.session.StartSession(ctx, *req.Product)
	} else {
		sess, err = h.session.StartCatalogSession(ctx, req.ProductID)
	}
	if err != nil {
		if errors.Is(err, designer.ErrMalformedRequest) {
			return NewBadRequestError("invalid product", err)
		}
		return fromDomain(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// HandleListSessions returns all live sessions.
func (h *Handler) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.ListSessions())
}

// HandleGetSession returns a session descriptor.
func (h *Handler) HandleGetSession(c echo.Context) error {
	id := c.Param("sessionId")
	sess, ok := h.session.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	// Touch session to prevent cleanup while being viewed
	h.session.TouchSession(id)
	return c.JSON(http.StatusOK, sess)
}

// HandleDeleteSession closes a session.
func (h *Handler) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.session.DeleteSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive extends the session lifetime.
func (h *Handler) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.session.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListProducts returns the product catalog.
func (h *Handler) HandleListProducts(c echo.Context) error {
	catalog := h.session.Catalog()
	if catalog == nil {
		return c.JSON(http.StatusOK, []session.ProductSummary{})
	}
	return c.JSON(http.StatusOK, catalog.List())
}

// HandleLoadProduct replaces the product of a session.
func (h *Handler) HandleLoadProduct(c echo.Context) error {
	id := c.Param("sessionId")
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	def := models.ProductDef{}
	if req.Product != nil {
		def = *req.Product
	} else {
		catalog := h.session.Catalog()
		if catalog == nil {
			return NewNotFoundError("product", req.ProductID)
		}
		var err error
		if def, err = catalog.Get(req.ProductID); err != nil {
			return fromDomain(err)
		}
	}

	if err := h.session.LoadProduct(c.Request().Context(), id, def); err != nil {
		return fromDomain(err)
	}
	sess, _ := h.session.GetSession(id)
	return c.JSON(http.StatusOK, sess)
}

type addElementsRequest struct {
	models.ElementJSON
	Elements []models.ElementJSON `json:"elements"`
}

// HandleAddElement adds one element, or several when the body carries an
// "elements" array. The response is sent once the elements are committed.
func (h *Handler) HandleAddElement(c echo.Context) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	var req addElementsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	ctx := c.Request().Context()
	if len(req.Elements) > 0 {
		ids, err := stage.AddElements(ctx, view, req.Elements)
		if err != nil && len(ids) == 0 {
			return fromDomain(err)
		}
		resp := map[string]interface{}{"ids": ids}
		if err != nil {
			resp["error"] = err.Error()
		}
		return c.JSON(http.StatusCreated, resp)
	}

	id, err := stage.AddElement(ctx, view, req.ElementJSON)
	if err != nil {
		return fromDomain(err)
	}
	return h.respondElement(c, stage, id, http.StatusCreated)
}

// HandleGetElements returns the elements of a view in z order.
func (h *Handler) HandleGetElements(c echo.Context) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	vj, err := stage.ViewJSON(view)
	if err != nil {
		return fromDomain(err)
	}
	return c.JSON(http.StatusOK, vj.Elements)
}

// HandleGetElement returns one element.
func (h *Handler) HandleGetElement(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	return h.respondElement(c, stage, c.Param("elementId"), http.StatusOK)
}

// HandleModifyElement applies a partial parameter update.
func (h *Handler) HandleModifyElement(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	// Bind would also copy path params into a map destination.
	var params models.Params
	if err := json.NewDecoder(c.Request().Body).Decode(&params); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(params) == 0 {
		return NewValidationError("parameters")
	}

	id := c.Param("elementId")
	if err := stage.ApplyOptions(id, params); err != nil {
		return fromDomain(err)
	}
	return h.respondElement(c, stage, id, http.StatusOK)
}

// HandleDuplicateElement copies an element onto the same view.
func (h *Handler) HandleDuplicateElement(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	id, err := stage.Duplicate(c.Request().Context(), c.Param("elementId"))
	if err != nil {
		return fromDomain(err)
	}
	return h.respondElement(c, stage, id, http.StatusCreated)
}

// HandleSelectElement marks an element as selected.
func (h *Handler) HandleSelectElement(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	if err := stage.Select(c.Param("elementId")); err != nil {
		return fromDomain(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRemoveElement deletes an element.
func (h *Handler) HandleRemoveElement(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	if err := stage.Remove(c.Param("elementId")); err != nil {
		return fromDomain(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type historyState struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// HandleGetHistory reports whether a view can undo or redo.
func (h *Handler) HandleGetHistory(c echo.Context) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	if _, err := stage.ViewJSON(view); err != nil {
		return fromDomain(err)
	}
	return c.JSON(http.StatusOK, historyState{CanUndo: stage.CanUndo(view), CanRedo: stage.CanRedo(view)})
}

// HandleUndo reverts the last change of a view.
func (h *Handler) HandleUndo(c echo.Context) error {
	return h.historyStep(c, (*designer.Stage).Undo)
}

// HandleRedo reapplies the last undone change of a view.
func (h *Handler) HandleRedo(c echo.Context) error {
	return h.historyStep(c, (*designer.Stage).Redo)
}

// HandleClearHistory drops the undo and redo stacks of a view.
func (h *Handler) HandleClearHistory(c echo.Context) error {
	return h.historyStep(c, (*designer.Stage).ClearHistory)
}

func (h *Handler) historyStep(c echo.Context, step func(*designer.Stage, int) error) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	if err := step(stage, view); err != nil {
		return fromDomain(err)
	}
	return c.JSON(http.StatusOK, historyState{CanUndo: stage.CanUndo(view), CanRedo: stage.CanRedo(view)})
}

// HandleGetPrice returns the price breakdown for a quantity (default 1).
func (h *Handler) HandleGetPrice(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	quantity := 1
	if q := c.QueryParam("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > h.maxQuantity {
			return NewValidationError("quantity")
		}
		quantity = n
	}
	return c.JSON(http.StatusOK, stage.TotalPrice(quantity))
}

// HandleGetPricingRules returns the installed rule groups.
func (h *Handler) HandleGetPricingRules(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	rules := stage.PricingRules()
	if rules == nil {
		rules = []models.RuleGroup{}
	}
	return c.JSON(http.StatusOK, rules)
}

// HandleSetPricingRules replaces the rule groups. The body is JSON, or YAML
// when the content type says so.
func (h *Handler) HandleSetPricingRules(c echo.Context) error {
	stage, err := h.stage(c)
	if err != nil {
		return err
	}
	format := "json"
	if strings.Contains(c.Request().Header.Get(echo.HeaderContentType), "yaml") {
		format = "yaml"
	}
	groups, err := pricing.LoadRulesFromReader(c.Request().Body, format)
	if err != nil {
		return NewBadRequestError("invalid pricing rules", err)
	}
	stage.SetPricingRules(groups)
	return c.JSON(http.StatusOK, stage.TotalPrice(1))
}

// HandleExportPNG renders a view to PNG or JPEG.
func (h *Handler) HandleExportPNG(c echo.Context) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	opts := designer.RasterOptions{
		Format:          h.export.Format,
		Quality:         h.export.Quality,
		Watermark:       h.export.Watermark,
		HideExcluded:    queryBool(c, "hideExcluded", true),
		PrintingBoxOnly: queryBool(c, "printingBox", false),
		Background:      c.QueryParam("background"),
	}
	if f := strings.ToLower(c.QueryParam("format")); f != "" {
		if f != "png" && f != "jpeg" && f != "jpg" {
			return NewValidationError("format")
		}
		opts.Format = f
	}
	if opts.Format == "jpg" {
		opts.Format = "jpeg"
	}
	if q := c.QueryParam("quality"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 100 {
			return NewValidationError("quality")
		}
		opts.Quality = n
	}
	if m := c.QueryParam("multiplier"); m != "" {
		f, err := strconv.ParseFloat(m, 64)
		if err != nil || f <= 0 || f > 10 {
			return NewValidationError("multiplier")
		}
		opts.Multiplier = f
	}
	if w, ok := c.QueryParams()["watermark"]; ok {
		opts.Watermark = w[0]
	}

	data, err := stage.Rasterize(view, opts)
	if err != nil {
		return fromDomain(err)
	}
	contentType := "image/png"
	if opts.Format == "jpeg" {
		contentType = "image/jpeg"
	}
	return c.Blob(http.StatusOK, contentType, data)
}

// HandleExportSVG serializes a view to SVG.
func (h *Handler) HandleExportSVG(c echo.Context) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	opts := designer.VectorOptions{
		PrintingBoxOnly: queryBool(c, "printingBox", false),
		Transparent:     queryBool(c, "transparent", false),
		EmbedFonts:      queryBool(c, "embedFonts", false),
		HideExcluded:    queryBool(c, "hideExcluded", true),
	}
	if b := c.QueryParam("bleed"); b != "" {
		f, err := strconv.ParseFloat(b, 64)
		if err != nil || f < 0 {
			return NewValidationError("bleed")
		}
		opts.BleedMM = f
	}

	svg, err := stage.Vectorize(view, opts)
	if err != nil {
		return fromDomain(err)
	}
	return c.Blob(http.StatusOK, "image/svg+xml", []byte(svg))
}

type stateResponse struct {
	Product  models.ProductDef     `json:"product" msgpack:"product"`
	Selected string                `json:"selected,omitempty" msgpack:"selected"`
	Price    models.PriceBreakdown `json:"price" msgpack:"price"`
}

func (h *Handler) state(c echo.Context) (*stateResponse, error) {
	stage, err := h.stage(c)
	if err != nil {
		return nil, err
	}
	product, err := stage.ProductJSON()
	if err != nil {
		return nil, NewInternalError("failed to serialize product", err)
	}
	return &stateResponse{Product: product, Selected: stage.Selected(), Price: stage.TotalPrice(1)}, nil
}

// HandleGetState returns the full product with all elements as JSON.
func (h *Handler) HandleGetState(c echo.Context) error {
	state, err := h.state(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

// HandleGetStateMsgpack returns the full product using MessagePack encoding.
func (h *Handler) HandleGetStateMsgpack(c echo.Context) error {
	state, err := h.state(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(state)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetSnapshot returns the versioned element snapshot of a view.
func (h *Handler) HandleGetSnapshot(c echo.Context) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	snap, err := stage.Snapshot(view)
	if err != nil {
		return fromDomain(err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, snap)
}

// HandleRestoreSnapshot replaces the elements of a view from a snapshot.
func (h *Handler) HandleRestoreSnapshot(c echo.Context) error {
	stage, view, err := h.stageView(c)
	if err != nil {
		return err
	}
	var raw []byte
	if raw, err = readBody(c); err != nil {
		return err
	}
	if err := stage.RestoreSnapshot(view, raw); err != nil {
		if errors.Is(err, designer.ErrViewNotFound) {
			return fromDomain(err)
		}
		return NewBadRequestError("invalid snapshot", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSaveDesign persists every view of the session.
func (h *Handler) HandleSaveDesign(c echo.Context) error {
	design, err := h.session.SaveDesign(c.Request().Context(), c.Param("sessionId"), false)
	if err != nil {
		return fromDomain(err)
	}
	return c.JSON(http.StatusCreated, design)
}

// HandleListDesigns lists the saved designs of a session, newest first.
func (h *Handler) HandleListDesigns(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	designs, err := h.session.ListDesigns(c.Request().Context(), c.Param("sessionId"), limit)
	if err != nil {
		return fromDomain(err)
	}
	if designs == nil {
		designs = []*models.SavedDesign{}
	}
	return c.JSON(http.StatusOK, designs)
}

// HandleGetDesign returns a saved design.
func (h *Handler) HandleGetDesign(c echo.Context) error {
	design, err := h.session.GetDesign(c.Request().Context(), c.Param("designId"))
	if err != nil {
		return fromDomain(err)
	}
	return c.JSON(http.StatusOK, design)
}

// HandleLoadDesign restores a saved design into a session.
func (h *Handler) HandleLoadDesign(c echo.Context) error {
	id := c.Param("sessionId")
	if err := h.session.LoadDesign(c.Request().Context(), id, c.Param("designId")); err != nil {
		return fromDomain(err)
	}
	sess, _ := h.session.GetSession(id)
	return c.JSON(http.StatusOK, sess)
}

// Helper functions

func (h *Handler) stage(c echo.Context) (*designer.Stage, error) {
	stage, err := h.session.Stage(c.Param("sessionId"))
	if err != nil {
		return nil, fromDomain(err)
	}
	return stage, nil
}

func (h *Handler) stageView(c echo.Context) (*designer.Stage, int, error) {
	view, err := strconv.Atoi(c.Param("view"))
	if err != nil || view < 0 {
		return nil, 0, NewValidationError("view")
	}
	stage, err := h.stage(c)
	if err != nil {
		return nil, 0, err
	}
	return stage, view, nil
}

func (h *Handler) respondElement(c echo.Context, stage *designer.Stage, id string, status int) error {
	el, err := stage.Element(id)
	if err != nil {
		return fromDomain(err)
	}
	ej, err := el.JSON()
	if err != nil {
		return NewInternalError("failed to serialize element", err)
	}
	return c.JSON(status, ej)
}

func queryBool(c echo.Context, name string, def bool) bool {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func readBody(c echo.Context) ([]byte, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, NewBadRequestError("failed to read body", err)
	}
	if len(data) == 0 {
		return nil, NewValidationError("body")
	}
	return data, nil
}
