package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRPCError(t *testing.T) {
	err := &RPCError{Code: -32000, Message: "nonce too low"}

	if got := err.Error(); got != "RPC error -32000: nonce too low" {
		t.Errorf("RPCError.Error() = %q, want %q", got, "RPC error -32000: nonce too low")
	}
	if !isRPCError(err) {
		t.Error("isRPCError should return true for *RPCError")
	}
	if isRPCError(errors.New("plain")) {
		t.Error("isRPCError should return false for a plain error")
	}
}

func TestHTTPStatusError(t *testing.T) {
	tests := []struct {
		name       string
		err        HTTPStatusError
		wantString string
		wantRetry  bool
	}{
		{
			name:       "429 Too Many Requests",
			err:        HTTPStatusError{StatusCode: 429, Body: "rate limited"},
			wantString: "HTTP 429: Too Many Requests (body: rate limited)",
			wantRetry:  true,
		},
		{
			name:       "503 Service Unavailable",
			err:        HTTPStatusError{StatusCode: 503},
			wantString: "HTTP 503: Service Unavailable",
			wantRetry:  true,
		},
		{
			name:       "400 Bad Request not retryable",
			err:        HTTPStatusError{StatusCode: 400, Body: "invalid request"},
			wantString: "HTTP 400: Bad Request (body: invalid request)",
			wantRetry:  false,
		},
		{
			name:       "500 Internal Server Error not retryable",
			err:        HTTPStatusError{StatusCode: 500},
			wantString: "HTTP 500: Internal Server Error",
			wantRetry:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantString {
				t.Errorf("HTTPStatusError.Error() = %q, want %q", got, tt.wantString)
			}
			if got := tt.err.IsRetryable(); got != tt.wantRetry {
				t.Errorf("HTTPStatusError.IsRetryable() = %v, want %v", got, tt.wantRetry)
			}
		})
	}
}

func TestGetRetryDelay(t *testing.T) {
	defaultBackoff := 100 * time.Millisecond

	tests := []struct {
		name      string
		err       error
		wantDelay time.Duration
	}{
		{
			name:      "HTTP error with Retry-After",
			err:       &HTTPStatusError{StatusCode: 429, RetryAfter: 2 * time.Second},
			wantDelay: 2 * time.Second,
		},
		{
			name:      "HTTP error without Retry-After",
			err:       &HTTPStatusError{StatusCode: 503},
			wantDelay: defaultBackoff,
		},
		{
			name:      "RPC error uses default",
			err:       &RPCError{Code: -32000, Message: "test"},
			wantDelay: defaultBackoff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getRetryDelay(tt.err, defaultBackoff); got != tt.wantDelay {
				t.Errorf("getRetryDelay() = %v, want %v", got, tt.wantDelay)
			}
		})
	}
}

// rpcHandler answers single JSON-RPC requests from a method -> result table.
func rpcHandler(t *testing.T, results map[string]string, calls *atomic.Int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		body, _ := io.ReadAll(r.Body)
		var req JSONRPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}
}

func testClient(url string) *HTTPClient {
	cfg := DefaultClientConfig(url)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return NewHTTPClient(cfg)
}

func TestHTTPClient_Queries(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, map[string]string{
		"eth_chainId":             `"0x539"`,
		"eth_getTransactionCount": `"0x2a"`,
		"eth_gasPrice":            `"0x3b9aca00"`,
		"eth_getBalance":          `"0xde0b6b3a7640000"`,
		"eth_getCode":             `"0x6080"`,
	}, nil))
	defer srv.Close()

	c := testClient(srv.URL)
	ctx := context.Background()

	chainID, err := c.ChainID(ctx)
	if err != nil || chainID != 1337 {
		t.Errorf("ChainID() = %d, %v, want 1337, nil", chainID, err)
	}
	nonce, err := c.GetNonce(ctx, "0x0000000000000000000000000000000000000001")
	if err != nil || nonce != 42 {
		t.Errorf("GetNonce() = %d, %v, want 42, nil", nonce, err)
	}
	price, err := c.GetGasPrice(ctx)
	if err != nil || price.Uint64() != 1_000_000_000 {
		t.Errorf("GetGasPrice() = %v, %v, want 1000000000, nil", price, err)
	}
	bal, err := c.GetBalance(ctx, "0x0000000000000000000000000000000000000001")
	if err != nil || bal.String() != "1000000000000000000" {
		t.Errorf("GetBalance() = %v, %v, want 1e18, nil", bal, err)
	}
	code, err := c.GetCode(ctx, "0x0000000000000000000000000000000000000001")
	if err != nil || code != "0x6080" {
		t.Errorf("GetCode() = %q, %v, want 0x6080, nil", code, err)
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(rpcHandler(t, map[string]string{}, &calls))
	defer srv.Close()

	err := testClient(srv.URL).SendRawTransaction(context.Background(), []byte{0x01})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("SendRawTransaction() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("Code = %d, want -32601", rpcErr.Code)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestHTTPClient_RetriesOnUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer srv.Close()

	chainID, err := testClient(srv.URL).ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID() error = %v", err)
	}
	if chainID != 1 {
		t.Errorf("ChainID() = %d, want 1", chainID)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestHTTPClient_ReceiptPendingAndMined(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, map[string]string{
		"eth_getTransactionReceipt": `null`,
	}, nil))
	receipt, err := testClient(srv.URL).GetTransactionReceipt(context.Background(), "0xabc")
	srv.Close()
	if err != nil || receipt != nil {
		t.Fatalf("GetTransactionReceipt() = %v, %v, want nil, nil", receipt, err)
	}

	srv = httptest.NewServer(rpcHandler(t, map[string]string{
		"eth_getTransactionReceipt": `{"transactionHash":"0xabc","blockHash":"0xdef","blockNumber":"0x10","status":"0x1","gasUsed":"0x5208"}`,
	}, nil))
	defer srv.Close()
	receipt, err = testClient(srv.URL).GetTransactionReceipt(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetTransactionReceipt() error = %v", err)
	}
	if receipt.Status != 1 || receipt.BlockNumber != 16 || receipt.GasUsed != 21000 || receipt.TxHash != "0xabc" {
		t.Errorf("receipt = %+v, want status 1, block 16, gas 21000", receipt)
	}
}

func TestHTTPClient_ReceiptsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		// Answer out of order to exercise id-based reordering.
		w.Write([]byte(`[
			{"jsonrpc":"2.0","id":2,"result":null},
			{"jsonrpc":"2.0","id":1,"result":{"transactionHash":"0x01","blockNumber":"0x1","status":"0x0"}},
			{"jsonrpc":"2.0","id":3,"error":{"code":-32000,"message":"boom"}}
		]`))
	}))
	defer srv.Close()

	receipts, err := testClient(srv.URL).GetTransactionReceiptsBatch(context.Background(), []string{"0x01", "0x02", "0x03"})
	if err != nil {
		t.Fatalf("GetTransactionReceiptsBatch() error = %v", err)
	}
	if len(receipts) != 3 {
		t.Fatalf("len(receipts) = %d, want 3", len(receipts))
	}
	if receipts[0] == nil || receipts[0].TxHash != "0x01" || receipts[0].Status != 0 {
		t.Errorf("receipts[0] = %+v, want reverted receipt for 0x01", receipts[0])
	}
	if receipts[1] != nil || receipts[2] != nil {
		t.Errorf("receipts[1:] = %v, %v, want nil, nil", receipts[1], receipts[2])
	}
}

func TestHTTPClient_Observer(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, map[string]string{"eth_chainId": `"0x1"`}, nil))
	defer srv.Close()

	var observed []string
	cfg := DefaultClientConfig(srv.URL)
	cfg.Observer = func(method string, ok bool, _ time.Duration) {
		if ok {
			observed = append(observed, method)
		}
	}
	if _, err := NewHTTPClient(cfg).ChainID(context.Background()); err != nil {
		t.Fatalf("ChainID() error = %v", err)
	}
	if len(observed) != 1 || observed[0] != "eth_chainId" {
		t.Errorf("observed = %v, want [eth_chainId]", observed)
	}
}
