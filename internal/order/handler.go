package order

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

const reportCacheTTL = 60 * time.Second

type Handler struct {
	logger    apt.Logger
	config    *apt.Config
	tlm       *telemetry.HTTP
	engine    *Engine
	projector *Projector
	cache     ReportCache
}

type HandlerDeps struct {
	Engine    *Engine
	Projector *Projector
	Cache     ReportCache
}

func NewHandler(hd HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		logger:    logger,
		config:    config,
		tlm:       telemetry.NewHTTP(),
		engine:    hd.Engine,
		projector: hd.Projector,
		cache:     hd.Cache,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tables/{tableID}/order", func(r chi.Router) {
		r.Post("/", h.OpenOrder)
		r.Get("/", h.CurrentOrder)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/items", h.AddOrderItem)
		r.Post("/{id}/kot", h.PrintKOT)
		r.Post("/{id}/bill", h.PrintBill)
		r.Post("/{id}/payment", h.ProcessPayment)
		r.Post("/{id}/cancel", h.CancelOrder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/summary", h.AdminSummary)
		r.Get("/running-tables", h.RunningTables)
		r.Get("/biller-performance", h.BillerPerformance)
	})

	r.Get("/reports/{username}", h.ReportsByUsername)
}

// Order lifecycle handlers

func (h *Handler) OpenOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.OpenOrder")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseUUIDParam(w, r, "tableID", log)
	if !ok {
		return
	}

	actor, ok := h.requireActor(w, r, log)
	if !ok {
		return
	}

	o, err := h.engine.Open(ctx, tableID, actor.ID)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot open order")
		return
	}

	links := apt.RESTfulLinksFor(o)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, o, links...)
}

func (h *Handler) CurrentOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CurrentOrder")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseUUIDParam(w, r, "tableID", log)
	if !ok {
		return
	}

	o, err := h.engine.Current(ctx, tableID)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot load current order")
		return
	}

	if o == nil {
		// An unoccupied table is a normal answer, not an error.
		apt.RespondSuccess(w, nil)
		return
	}

	links := apt.RESTfulLinksFor(o)
	apt.RespondSuccess(w, o, links...)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, "id", log)
	if !ok {
		return
	}

	o, err := h.engine.getOrder(ctx, id)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot load order")
		return
	}

	links := apt.RESTfulLinksFor(o)
	apt.RespondSuccess(w, o, links...)
}

func (h *Handler) AddOrderItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AddOrderItem")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, "id", log)
	if !ok {
		return
	}

	var delta ItemDelta
	if !h.decodeBody(w, r, &delta, log) {
		return
	}
	if delta.ItemID == uuid.Nil {
		log.Debug("missing item id in item delta")
		apt.RespondError(w, http.StatusBadRequest, "item_id is required")
		return
	}

	o, err := h.engine.AddItem(ctx, id, delta)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot update order items")
		return
	}

	links := apt.RESTfulLinksFor(o)
	apt.RespondSuccess(w, o, links...)
}

func (h *Handler) PrintKOT(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PrintKOT")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, "id", log)
	if !ok {
		return
	}

	o, err := h.engine.PrintKOT(ctx, id)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot print KOT")
		return
	}

	links := apt.RESTfulLinksFor(o)
	apt.RespondSuccess(w, o, links...)
}

func (h *Handler) PrintBill(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PrintBill")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, "id", log)
	if !ok {
		return
	}

	o, err := h.engine.PrintBill(ctx, id)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot print bill")
		return
	}

	links := apt.RESTfulLinksFor(o)
	apt.RespondSuccess(w, o, links...)
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ProcessPayment")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, "id", log)
	if !ok {
		return
	}

	var batch []PaymentInput
	if !h.decodeBody(w, r, &batch, log) {
		return
	}

	o, err := h.engine.ProcessPayment(ctx, id, batch)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot process payment")
		return
	}

	links := apt.RESTfulLinksFor(o)
	apt.RespondSuccess(w, o, links...)
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CancelOrder")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, "id", log)
	if !ok {
		return
	}

	actor, ok := h.requireActor(w, r, log)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}

	o, err := h.engine.Cancel(ctx, id, actor, req.Reason)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot cancel order")
		return
	}

	links := apt.RESTfulLinksFor(o)
	apt.RespondSuccess(w, o, links...)
}

// Listing and reporting handlers

type PaginatedOrdersResponse struct {
	Items    []ListItem `json:"items"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Total    int64      `json:"total"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	actor, ok := h.requireActor(w, r, log)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := ListParams{
		Scope:    query.Get("scope"),
		Page:     atoiOrDefault(query.Get("page"), 1),
		PageSize: atoiOrDefault(query.Get("page_size"), DefaultPageSize),
		From:     query.Get("from"),
		To:       query.Get("to"),
		Text:     query.Get("q"),
	}

	// The biller filter is an admin-only facility.
	if actor.IsAdmin() {
		if billerStr := query.Get("biller_id"); billerStr != "" {
			billerID, err := uuid.Parse(billerStr)
			if err != nil {
				log.Debug("invalid biller_id parameter", "biller_id", billerStr)
				apt.RespondError(w, http.StatusBadRequest, "Invalid biller_id parameter")
				return
			}
			params.BillerID = &billerID
		}
	}

	items, total, err := h.projector.List(ctx, params)
	if err != nil {
		h.respondEngineError(w, log, err, "cannot list orders")
		return
	}

	apt.RespondSuccess(w, PaginatedOrdersResponse{
		Items:    items,
		Page:     params.Page,
		PageSize: params.PageSize,
		Total:    total,
	})
}

func (h *Handler) AdminSummary(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AdminSummary")
	defer finish()

	summary := h.projector.AdminSummary(r.Context(), r.URL.Query().Get("date"))
	apt.RespondSuccess(w, summary)
}

func (h *Handler) RunningTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RunningTables")
	defer finish()

	rows := h.projector.RunningTables(r.Context())
	apt.RespondSuccess(w, rows)
}

func (h *Handler) BillerPerformance(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.BillerPerformance")
	defer finish()

	rows := h.projector.BillerPerformance(r.Context(), r.URL.Query().Get("date"))
	apt.RespondSuccess(w, rows)
}

func (h *Handler) ReportsByUsername(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ReportsByUsername")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	username := chi.URLParam(r, "username")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = "today"
	}

	cacheKey := "reports:" + username + ":" + date
	if h.cache != nil {
		if cached, ok := h.cache.Get(ctx, cacheKey); ok {
			var bundle ReportBundle
			if err := json.Unmarshal([]byte(cached), &bundle); err == nil {
				apt.RespondSuccess(w, bundle)
				return
			}
			log.Debug("discarding undecodable cached report", "key", cacheKey)
		}
	}

	bundle := h.projector.ReportsByUsername(ctx, username, date)

	if h.cache != nil {
		if payload, err := json.Marshal(bundle); err == nil {
			h.cache.Set(ctx, cacheKey, string(payload), reportCacheTTL)
		}
	}

	apt.RespondSuccess(w, bundle)
}

// Helper methods

func (h *Handler) parseUUIDParam(w http.ResponseWriter, r *http.Request, name string, log apt.Logger) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, name)
	if idStr == "" {
		log.Debug("missing id parameter", "param", name)
		apt.RespondError(w, http.StatusBadRequest, "Missing "+name+" parameter")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Debug("invalid id parameter", "param", name, "value", idStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return uuid.Nil, false
	}

	return id, true
}

// requireActor reads the caller identity resolved by the upstream
// gateway. This service is internal-only; authentication happens before
// requests reach it.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request, log apt.Logger) (Actor, bool) {
	idStr := r.Header.Get("X-User-ID")
	role := r.Header.Get("X-User-Role")

	id, err := uuid.Parse(idStr)
	if err != nil || (role != RoleAdmin && role != RoleBiller) {
		log.Debug("missing or invalid caller identity", "user_id", idStr, "role", role)
		apt.RespondError(w, http.StatusUnauthorized, "Caller identity is required")
		return Actor{}, false
	}

	return Actor{ID: id, Role: role}, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, target interface{}, log apt.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, target); err != nil {
		log.Debug("failed to decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}

	return true
}

func (h *Handler) respondEngineError(w http.ResponseWriter, log apt.Logger, err error, msg string) {
	kind := KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		log.Error(msg, "error", err)
	} else {
		log.Debug(msg, "error", err, "kind", kind.String())
	}
	apt.RespondError(w, status, err.Error())
}

// statusForKind maps the error taxonomy to stable HTTP statuses. Busy
// (429) is kept distinct from Conflict (409) so clients can auto-retry
// a busy print but never a conflicting transition.
func statusForKind(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindBusy:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func atoiOrDefault(value string, def int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}
