package audit

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/blockbill/internal/audit"
	"github.com/MrJamesThe3rd/blockbill/internal/blob"
	"github.com/MrJamesThe3rd/blockbill/internal/http/respond"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

type Handler struct {
	verifier *audit.Verifier
	archiver *audit.Archiver // nil when archiving is disabled
}

func NewHandler(verifier *audit.Verifier, archiver *audit.Archiver) *Handler {
	return &Handler{verifier: verifier, archiver: archiver}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/verify", h.verifyAll)
	r.Get("/invoices/{id}/verify", h.verify)

	r.Group(func(r chi.Router) {
		r.Use(h.requireArchive)
		r.Post("/archive/sweep", h.sweep)
		r.Post("/invoices/{id}/archive", h.archive)
		r.Get("/invoices/{id}/archive", h.archived)
	})
}

func (h *Handler) requireArchive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.archiver == nil {
			respond.Fail(w, http.StatusServiceUnavailable, "archive_disabled", "no archive store is configured")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	report, err := h.verifier.Verify(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, report)
}

func (h *Handler) verifyAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.verifier.VerifyAll(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, summary)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.archiver.Sweep(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	created, err := h.archiver.Archive(r.Context(), id)

	switch {
	case errors.Is(err, audit.ErrNotTerminal):
		respond.Fail(w, http.StatusConflict, "not_terminal", err.Error())
	case errors.Is(err, audit.ErrMismatch):
		respond.Fail(w, http.StatusConflict, "mismatch", err.Error())
	case err != nil:
		respond.Error(w, r, err)
	case created:
		respond.JSON(w, http.StatusCreated, map[string]any{"id": id, "key": audit.Key(id), "created": true})
	default:
		respond.JSON(w, http.StatusOK, map[string]any{"id": id, "key": audit.Key(id), "created": false})
	}
}

// archived returns the stored JSON Lines history after checking it decodes.
func (h *Handler) archived(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	events, err := h.archiver.Load(r.Context(), id)
	if errors.Is(err, blob.ErrNotFound) {
		respond.Fail(w, http.StatusNotFound, "not_archived", "invoice "+strconv.FormatInt(id, 10)+" has no archive")
		return
	}

	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := audit.Encode(&buf, events); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", audit.ContentType)

	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write archive", "error", err)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, r, invoice.ErrNotFound)
		return 0, false
	}

	return id, true
}
