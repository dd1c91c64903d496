package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/gateway-fm/txdispatch/internal/transport"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.StatusResponse{
			RunID:  "run-1",
			Kind:   types.RunFund,
			State:  types.StateRunning,
			Target: 12500,
			Counts: types.Counts{Submitted: 1234, Accepted: 1230, Failed: 4},
			SubmitLatency: &types.LatencyStats{
				Count: 1230, Min: 1, P50: 3.5, P95: 9, P99: 12, Max: 40,
			},
		})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready": false,
			"checks": []transport.ReadinessCheck{
				{Name: "node-1", Status: "ok", LatencyMs: 3},
				{Name: "node-2", Status: "failed", Error: "connection refused"},
			},
		})
	})
	mux.HandleFunc("GET /v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unexpected limit"})
			return
		}
		writeJSON(w, http.StatusOK, types.RunListResponse{
			Runs: []types.RunSummary{{
				ID:        "run-1",
				Kind:      types.RunLoad,
				State:     types.StateCompleted,
				Counts:    types.Counts{Submitted: 100, Confirmed: 98, Failed: 2},
				StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}},
			Total: 1,
			Limit: 5,
		})
	})
	mux.HandleFunc("GET /v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "run-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Run not found"})
			return
		}
		writeJSON(w, http.StatusOK, types.RunDetail{
			RunSummary: types.RunSummary{ID: "run-1", Kind: types.RunLoad, State: types.StateCompleted, DurationMs: 2500},
			Config:     map[string]any{"concurrency": 5, "gas_policy": "fixed", "target_tps": 12.5},
		})
	})
	mux.HandleFunc("GET /v1/runs/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		txs := make([]types.TxRecord, 25)
		for i := range txs {
			txs[i] = types.TxRecord{
				Status:   "success",
				TxHash:   "0x1111111111111111111111111111111111111111111111111111111111111111",
				SrcChain: 20001,
				DstChain: 20002,
				Amount:   "1000",
			}
		}
		txs[0].Status = "failed"
		txs[0].Error = "nonce too low"
		writeJSON(w, http.StatusOK, types.TxListResponse{Transactions: txs, Total: 25, Limit: 50})
	})
	mux.HandleFunc("DELETE /v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func callTool(t *testing.T, h func(context.Context, gomcp.CallToolRequest) (*gomcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req gomcp.CallToolRequest
	req.Params.Arguments = args

	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("handler returned no content")
	}
	text, ok := res.Content[0].(gomcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return text.Text, res.IsError
}

func TestStatusTool(t *testing.T) {
	client := NewClient(newAPIServer(t).URL + "/")

	text, isErr := callTool(t, statusHandler(client), nil)
	if isErr {
		t.Fatalf("status tool returned error: %s", text)
	}
	for _, want := range []string{"run-1", "fund", "running", "1,234", "12,500", "Submit Latency", "3.5ms"} {
		if !strings.Contains(text, want) {
			t.Errorf("status text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Confirmation Latency") {
		t.Errorf("status text has empty confirmation latency section:\n%s", text)
	}
}

func TestStatusTool_Unreachable(t *testing.T) {
	srv := newAPIServer(t)
	client := NewClient(srv.URL)
	srv.Close()

	text, isErr := callTool(t, statusHandler(client), nil)
	if !isErr {
		t.Errorf("want error result, got %q", text)
	}
}

func TestHealthTool_NotReady(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	text, isErr := callTool(t, healthHandler(client), nil)
	if isErr {
		t.Fatalf("health tool returned error: %s", text)
	}
	for _, want := range []string{"NOT READY", "node-1", "node-2", "connection refused"} {
		if !strings.Contains(text, want) {
			t.Errorf("health text missing %q:\n%s", want, text)
		}
	}
}

func TestRunsTool(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	text, isErr := callTool(t, runsHandler(client), map[string]any{"limit": 5})
	if isErr {
		t.Fatalf("runs tool returned error: %s", text)
	}
	if !strings.Contains(text, "### run-1") || !strings.Contains(text, "98") {
		t.Errorf("runs text:\n%s", text)
	}
}

func TestRunDetailTool(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	text, isErr := callTool(t, runDetailHandler(client), map[string]any{"id": "run-1"})
	if isErr {
		t.Fatalf("detail tool returned error: %s", text)
	}
	for _, want := range []string{"Run: run-1", "2.5s", "concurrency", "12.50", "fixed"} {
		if !strings.Contains(text, want) {
			t.Errorf("detail text missing %q:\n%s", want, text)
		}
	}
	// Config keys are sorted.
	if strings.Index(text, "concurrency") > strings.Index(text, "gas_policy") {
		t.Errorf("config keys not sorted:\n%s", text)
	}

	text, isErr = callTool(t, runDetailHandler(client), map[string]any{"id": "nope"})
	if !isErr || !strings.Contains(text, "404") {
		t.Errorf("missing run: isErr = %v, text = %q", isErr, text)
	}

	_, isErr = callTool(t, runDetailHandler(client), nil)
	if !isErr {
		t.Error("want error result without id")
	}
}

func TestRunTxsTool(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	text, isErr := callTool(t, runTxsHandler(client), map[string]any{"id": "run-1"})
	if isErr {
		t.Fatalf("txs tool returned error: %s", text)
	}
	for _, want := range []string{"Total:", "25", "nonce too low", "20001->20002", "... and 5 more"} {
		if !strings.Contains(text, want) {
			t.Errorf("txs text missing %q:\n%s", want, text)
		}
	}
}

func TestDeleteRunTool(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	text, isErr := callTool(t, deleteRunHandler(client), map[string]any{"id": "run-1"})
	if isErr || !strings.Contains(text, "Run Deleted") {
		t.Errorf("isErr = %v, text = %q", isErr, text)
	}
}

func TestClient_HTTPError(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	var out types.RunDetail
	err := client.Get(context.Background(), "/v1/runs/missing", &out)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Get() error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", httpErr.StatusCode)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
