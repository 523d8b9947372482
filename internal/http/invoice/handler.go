package invoice

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/blockbill/internal/http/auth"
	"github.com/MrJamesThe3rd/blockbill/internal/http/respond"
	"github.com/MrJamesThe3rd/blockbill/internal/importer"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

type Handler struct {
	svc      *invoice.Service
	query    *invoice.Query
	importer *importer.Service
}

func NewHandler(svc *invoice.Service, query *invoice.Query, importSvc *importer.Service) *Handler {
	return &Handler{svc: svc, query: query, importer: importSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.issue)
	r.Post("/batch", h.issueBatch)
	r.Post("/import", h.importCSV)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/settled", h.isSettled)
	r.Get("/{id}/events", h.events)
	r.Post("/{id}/settle", h.settle)
	r.Post("/{id}/void", h.void)
	r.Patch("/{id}/metadata", h.updateMetadata)
}

type issueRequest struct {
	// Issuer defaults to the caller.
	Issuer       string          `json:"issuer,omitempty"`
	Counterparty string          `json:"counterparty" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	ContentRef   string          `json:"content_ref" validate:"max=2048"`
}

func (req issueRequest) params(caller invoice.Address) invoice.IssueParams {
	issuer := req.Issuer
	if issuer == "" {
		issuer = caller.String()
	}

	return invoice.IssueParams{
		Issuer:       issuer,
		Counterparty: req.Counterparty,
		Amount:       req.Amount,
		ContentRef:   req.ContentRef,
	}
}

type batchRequest struct {
	Invoices []issueRequest `json:"invoices" validate:"required,min=1,max=1000,dive"`
}

type settleRequest struct {
	Value decimal.Decimal `json:"value"`
}

type metadataRequest struct {
	ContentRef string `json:"content_ref" validate:"max=2048"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())

	var req issueRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	inv, err := h.svc.Issue(r.Context(), caller, req.params(caller))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(inv))
}

func (h *Handler) issueBatch(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())

	var req batchRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	params := make([]invoice.IssueParams, len(req.Invoices))
	for i, item := range req.Invoices {
		params[i] = item.params(caller)
	}

	invs, err := h.svc.IssueBatch(r.Context(), caller, params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, map[string]any{
		"issued":   len(invs),
		"invoices": toResponseList(invs),
	})
}

type previewRow struct {
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	ContentRef   string          `json:"content_ref"`
}

// importCSV issues every row of the uploaded file, or with dry_run=true only
// reports what would be issued.
func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, importer.MaxBytes+(1<<20))
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respond.BadRequest(w, "failed to parse form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	if dryRun, _ := strconv.ParseBool(r.FormValue("dry_run")); dryRun {
		res, err := h.importer.Preview(caller, file)
		if err != nil {
			importError(w, r, err)
			return
		}

		rows := make([]previewRow, len(res.Rows))
		for i, p := range res.Rows {
			rows[i] = previewRow{Counterparty: p.Counterparty, Amount: p.Amount, ContentRef: p.ContentRef}
		}

		respond.JSON(w, http.StatusOK, map[string]any{
			"format":  res.Profile,
			"charset": res.Charset,
			"rows":    rows,
		})

		return
	}

	invs, err := h.importer.Import(r.Context(), caller, file)
	if err != nil {
		importError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, map[string]any{
		"issued":   len(invs),
		"invoices": toResponseList(invs),
	})
}

func importError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, importer.ErrTooLarge):
		respond.Fail(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
	case errors.Is(err, importer.ErrNoProfile), errors.Is(err, importer.ErrNoRows):
		respond.Fail(w, http.StatusUnprocessableEntity, "invalid_csv", err.Error())
	default:
		respond.Error(w, r, err)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	var (
		invs []*invoice.Invoice
		err  error
	)

	switch {
	case q.Get("issuer") != "":
		invs, err = h.query.ListByIssuer(r.Context(), q.Get("issuer"), filter)
	case q.Get("counterparty") != "":
		invs, err = h.query.ListByCounterparty(r.Context(), q.Get("counterparty"), filter)
	case filter.Status != nil:
		invs, err = h.query.ListByStatus(r.Context(), *filter.Status, filter)
	default:
		respond.BadRequest(w, "one of issuer, counterparty or status is required")
		return
	}

	if err != nil {
		respond.Error(w, r, err)
		return
	}

	filter = filter.Normalize()

	respond.JSON(w, http.StatusOK, listResponse{
		Invoices: toResponseList(invs),
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

func parseFilter(w http.ResponseWriter, r *http.Request) (invoice.ListFilter, bool) {
	q := r.URL.Query()
	filter := invoice.ListFilter{}

	if s := q.Get("status"); s != "" {
		status := invoice.Status(s)
		if !status.Valid() {
			respond.Error(w, r, invoice.ErrInvalidStatus)
			return filter, false
		}

		filter.Status = &status
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		s := q.Get(name)
		if s == "" {
			continue
		}

		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respond.BadRequest(w, "invalid "+name)
			return filter, false
		}

		*dst = n
	}

	return filter, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	inv, err := h.query.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) isSettled(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	settled, err := h.svc.IsSettled(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{"id": id, "settled": settled})
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	events, err := h.query.History(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toEventResponses(events))
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req settleRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	caller, _ := auth.Caller(r.Context())

	inv, err := h.svc.Settle(r.Context(), id, caller, req.Value)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	caller, _ := auth.Caller(r.Context())

	inv, err := h.svc.Void(r.Context(), id, caller)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) updateMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req metadataRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	caller, _ := auth.Caller(r.Context())

	inv, err := h.svc.UpdateMetadata(r.Context(), id, caller, req.ContentRef)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(inv))
}

// parseID reads the {id} route parameter. Ids are positive; anything else is
// reported as not found, since no such invoice can exist.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, r, invoice.ErrNotFound)
		return 0, false
	}

	return id, true
}
