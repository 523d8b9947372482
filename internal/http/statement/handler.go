package statement

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/blockbill/internal/http/respond"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/statement"
)

type Handler struct {
	svc *statement.Service
}

func NewHandler(svc *statement.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{party}", h.metadata)
	r.Get("/{party}/summary", h.summary)
	r.Get("/{party}/download", h.download)
}

type lineResponse struct {
	ID         int64           `json:"id"`
	Role       statement.Role  `json:"role"`
	Other      invoice.Address `json:"other_party"`
	Amount     decimal.Decimal `json:"amount"`
	Status     invoice.Status  `json:"status"`
	ContentRef string          `json:"content_ref"`
	CreatedAt  time.Time       `json:"created_at"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
}

type statementResponse struct {
	Party       invoice.Address  `json:"party"`
	GeneratedAt time.Time        `json:"generated_at"`
	Totals      statement.Totals `json:"totals"`
	Lines       []lineResponse   `json:"lines"`
}

func toResponse(st *statement.Statement) statementResponse {
	lines := make([]lineResponse, len(st.Lines))
	for i, l := range st.Lines {
		lines[i] = lineResponse{
			ID:         l.Invoice.ID,
			Role:       l.Role,
			Other:      l.Other(),
			Amount:     l.Invoice.Amount,
			Status:     l.Invoice.Status,
			ContentRef: l.Invoice.ContentRef,
			CreatedAt:  l.Invoice.CreatedAt,
			SettledAt:  l.Invoice.SettledAt,
		}
	}

	return statementResponse{
		Party:       st.Party,
		GeneratedAt: st.GeneratedAt,
		Totals:      st.Totals,
		Lines:       lines,
	}
}

func (h *Handler) build(w http.ResponseWriter, r *http.Request) (*statement.Statement, bool) {
	var status *invoice.Status
	if s := r.URL.Query().Get("status"); s != "" {
		status = new(invoice.Status(s))
	}

	st, err := h.svc.Build(r.Context(), chi.URLParam(r, "party"), status)
	if err != nil {
		respond.Error(w, r, err)
		return nil, false
	}

	return st, true
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	st, ok := h.build(w, r)
	if !ok {
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(st))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	st, ok := h.build(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if _, err := w.Write([]byte(statement.Summary(st))); err != nil {
		slog.Error("failed to write summary", "error", err)
	}
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	st, ok := h.build(w, r)
	if !ok {
		return
	}

	// Buffer so a failure can still be reported with a proper status.
	var buf bytes.Buffer
	if err := statement.WriteZip(&buf, st); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", statement.Filename(st)))

	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write zip", "error", err)
	}
}
