package invoice_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/blockbill/internal/http/auth"
	invoiceHandler "github.com/MrJamesThe3rd/blockbill/internal/http/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/importer"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice/memstore"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

// newServer mounts the handler behind a stub that trusts the X-Caller header.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memstore.New()
	svc := invoice.NewService(store)
	h := invoiceHandler.NewHandler(svc, invoice.NewQuery(store), importer.NewService(svc))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithCaller(req.Context(), invoice.Address(req.Header.Get("X-Caller")))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/invoices", h.Routes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, caller, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller", caller)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else {
		out = map[string]any{"raw": string(raw)}
	}

	return resp.StatusCode, out
}

func TestHandler_Lifecycle(t *testing.T) {
	srv := newServer(t)

	status, body := do(t, srv, http.MethodPost, "/invoices", alice,
		`{"counterparty":"`+bob+`","amount":"1000000000000000000","content_ref":"ipfs://QmA"}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, alice, body["issuer"])
	assert.Equal(t, "1000000000000000000", body["amount"])
	assert.Equal(t, "open", body["status"])
	assert.NotContains(t, body, "settled_value")

	status, body = do(t, srv, http.MethodPatch, "/invoices/1/metadata", alice, `{"content_ref":"ipfs://QmB"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "ipfs://QmB", body["content_ref"])

	status, body = do(t, srv, http.MethodGet, "/invoices/1/settled", carol, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["settled"])

	status, body = do(t, srv, http.MethodPost, "/invoices/1/settle", bob, `{"value":"1000000000000000000"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "settled", body["status"])
	assert.Equal(t, "1000000000000000000", body["settled_value"])

	status, body = do(t, srv, http.MethodGet, "/invoices/1/settled", carol, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["settled"])

	status, body = do(t, srv, http.MethodGet, "/invoices/1/events", carol, "")
	require.Equal(t, http.StatusOK, status)

	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body["raw"].(string)), &events))
	require.Len(t, events, 3)
	assert.Equal(t, "issued", events[0]["kind"])
	assert.Equal(t, "metadata_updated", events[1]["kind"])
	assert.Equal(t, "settled", events[2]["kind"])
	assert.Equal(t, alice, events[2]["beneficiary"])
}

func TestHandler_Errors(t *testing.T) {
	srv := newServer(t)

	status, _ := do(t, srv, http.MethodPost, "/invoices", alice, `{"counterparty":"`+bob+`","amount":"100"}`)
	require.Equal(t, http.StatusCreated, status)

	tests := []struct {
		name       string
		method     string
		path       string
		caller     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown invoice", http.MethodGet, "/invoices/99", alice, "", http.StatusNotFound, "not_found"},
		{"non-numeric id", http.MethodGet, "/invoices/abc", alice, "", http.StatusNotFound, "not_found"},
		{"zero amount", http.MethodPost, "/invoices", alice, `{"counterparty":"` + bob + `","amount":"0"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"fractional amount", http.MethodPost, "/invoices", alice, `{"counterparty":"` + bob + `","amount":"1.5"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"self invoice", http.MethodPost, "/invoices", alice, `{"counterparty":"` + alice + `","amount":"1"}`, http.StatusUnprocessableEntity, "invalid_party"},
		{"issue for someone else", http.MethodPost, "/invoices", carol, `{"issuer":"` + alice + `","counterparty":"` + bob + `","amount":"1"}`, http.StatusForbidden, "not_issuer"},
		{"missing counterparty", http.MethodPost, "/invoices", alice, `{"amount":"1"}`, http.StatusBadRequest, "bad_request"},
		{"settle by stranger", http.MethodPost, "/invoices/1/settle", carol, `{"value":"100"}`, http.StatusForbidden, "not_counterparty"},
		{"settle wrong amount", http.MethodPost, "/invoices/1/settle", bob, `{"value":"99"}`, http.StatusUnprocessableEntity, "wrong_amount"},
		{"void by counterparty", http.MethodPost, "/invoices/1/void", bob, "", http.StatusForbidden, "not_issuer"},
		{"list without selector", http.MethodGet, "/invoices", alice, "", http.StatusBadRequest, "bad_request"},
		{"list bad status", http.MethodGet, "/invoices?status=pending", alice, "", http.StatusUnprocessableEntity, "invalid_status"},
		{"list bad address", http.MethodGet, "/invoices?issuer=nobody", alice, "", http.StatusUnprocessableEntity, "invalid_party"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.wantStatus, status, body)
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}

	status, body := do(t, srv, http.MethodPost, "/invoices/1/void", alice, "")
	require.Equal(t, http.StatusOK, status, body)

	status, body = do(t, srv, http.MethodPost, "/invoices/1/settle", bob, `{"value":"100"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invoice_voided", body["error"])

	status, body = do(t, srv, http.MethodPost, "/invoices/1/void", alice, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_finalized", body["error"])
}

func TestHandler_ListAndBatch(t *testing.T) {
	srv := newServer(t)

	status, body := do(t, srv, http.MethodPost, "/invoices/batch", alice, `{"invoices":[
		{"counterparty":"`+bob+`","amount":"1"},
		{"counterparty":"`+carol+`","amount":"2"},
		{"counterparty":"`+bob+`","amount":"3"}
	]}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(3), body["issued"])

	status, body = do(t, srv, http.MethodPost, "/invoices/batch", alice, `{"invoices":[
		{"counterparty":"`+bob+`","amount":"1"},
		{"counterparty":"`+bob+`","amount":"-1"}
	]}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_amount", body["error"])

	status, body = do(t, srv, http.MethodGet, "/invoices?counterparty="+bob, carol, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["invoices"], 2)

	status, body = do(t, srv, http.MethodGet, "/invoices?issuer="+alice+"&limit=1&offset=1", carol, "")
	require.Equal(t, http.StatusOK, status)
	list := body["invoices"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, float64(2), list[0].(map[string]any)["id"])
	assert.Equal(t, float64(1), body["limit"])

	status, body = do(t, srv, http.MethodGet, "/invoices?status=open", carol, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["invoices"], 3)

	status, body = do(t, srv, http.MethodGet, "/invoices?issuer="+carol, carol, "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["invoices"])
	assert.NotNil(t, body["invoices"])
}

func TestHandler_ImportCSV(t *testing.T) {
	srv := newServer(t)

	upload := func(csv string, dryRun bool) (int, map[string]any) {
		var buf bytes.Buffer

		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "invoices.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)

		if dryRun {
			require.NoError(t, mw.WriteField("dry_run", "true"))
		}

		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/invoices/import", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-Caller", alice)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

		return resp.StatusCode, out
	}

	csv := "counterparty;amount;content_ref\n" + bob + ";10;ipfs://a\n" + carol + ";20;ipfs://b\n"

	status, body := upload(csv, true)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "blockbill", body["format"])
	assert.Len(t, body["rows"], 2)

	status, body = do(t, srv, http.MethodGet, "/invoices?issuer="+alice, alice, "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["invoices"], "dry run must not issue")

	status, body = upload(csv, false)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(2), body["issued"])

	status, body = upload("to;value\n"+bob+";1\n", false)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_csv", body["error"])
}
