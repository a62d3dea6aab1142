package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(Config{
		BaseURL:        srv.URL,
		APIKey:         "secret-key",
		RetryMax:       3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  4 * time.Millisecond,
	}, logger, nil, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c, srv
}

func TestCreateTransferRetriesThenSucceeds(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":true,"data":{"id":"991","reff_id":"TRF-1","status":"pending","nominal":10000,"fee":2500}}`))
	})

	resp, err := c.CreateTransfer(context.Background(), TransferRequest{
		BankCode:    "ovo",
		AccountNo:   "62895600689900",
		AccountName: "Arfi",
		Amount:      10000,
		RefID:       "TRF-1",
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", calls)
	}
	if resp.ID != "991" || resp.Status != "pending" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Total != 12500 {
		t.Fatalf("expected total backfilled to 12500, got %v", resp.Total)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.CreateTransfer(context.Background(), TransferRequest{RefID: "TRF-2", Amount: 5000})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 4 {
		t.Fatalf("expected 1 call + 3 retries = 4 calls, got %d", calls)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected HTTPError 503, got %v", err)
	}
}

func TestBusinessFailureNotRetried(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"status":false,"message":"Saldo tidak mencukupi","code":403}`))
	})

	_, err := c.CreateTransfer(context.Background(), TransferRequest{RefID: "TRF-3", Amount: 99999999})
	if err == nil {
		t.Fatal("expected business failure error")
	}
	if calls != 1 {
		t.Fatalf("business failures must not be retried, got %d calls", calls)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Message != "Saldo tidak mencukupi" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
	if ErrorMessage(err) != "Saldo tidak mencukupi" {
		t.Fatalf("provider message must pass through verbatim, got %q", ErrorMessage(err))
	}
}

func TestCheckAccountParsesOwner(t *testing.T) {
	var gotForm map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"api_key":        r.PostFormValue("api_key"),
			"bank_code":      r.PostFormValue("bank_code"),
			"account_number": r.PostFormValue("account_number"),
		}
		w.Write([]byte(`{"status":true,"data":{"nama_pemilik":"Arfi","status":"valid"}}`))
	})

	resp, err := c.CheckAccount(context.Background(), "ovo", "62895600689900")
	if err != nil {
		t.Fatalf("check account: %v", err)
	}
	if gotForm["api_key"] != "secret-key" {
		t.Fatalf("api_key not sent, form: %v", gotForm)
	}
	if gotForm["bank_code"] != "ovo" || gotForm["account_number"] != "62895600689900" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
	if resp.OwnerName != "Arfi" {
		t.Fatalf("expected owner Arfi, got %q", resp.OwnerName)
	}
	if resp.Status != "success" {
		t.Fatalf("expected normalized status success, got %q", resp.Status)
	}
	if resp.BankCode != "ovo" || resp.AccountNo != "62895600689900" {
		t.Fatalf("expected request values echoed back, got %+v", resp)
	}
}

func TestListChannelsParsesRows(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"data":[
			{"bank_code":"bca","bank_name":"BCA","type":"bank"},
			{"bank_code":"ovo","bank_name":"OVO","type":"ewallet"}
		]}`))
	})

	channels, err := c.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
	if channels[0].Code != "bca" || channels[0].Name != "BCA" || channels[0].Type != "bank" {
		t.Fatalf("unexpected channel: %+v", channels[0])
	}
	if channels[1].Code != "ovo" || channels[1].Type != "ewallet" {
		t.Fatalf("unexpected channel: %+v", channels[1])
	}
}

func TestEnvelopeToleratesStringyFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"true","code":"200","data":{"id":123,"status":"sukses","nominal":"25000"}}`))
	})

	resp, err := c.TransferStatus(context.Background(), "123")
	if err != nil {
		t.Fatalf("transfer status: %v", err)
	}
	if resp.ID != "123" {
		t.Fatalf("expected numeric id coerced to string, got %q", resp.ID)
	}
	if resp.Status != "success" {
		t.Fatalf("expected sukses normalized to success, got %q", resp.Status)
	}
	if resp.Amount != 25000 {
		t.Fatalf("expected string amount parsed, got %v", resp.Amount)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(Config{
		BaseURL:        "http://localhost",
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  300 * time.Millisecond,
	}, logger, nil, nil)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := c.backoffDelay(attempt); got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestClassifyHTTPStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindForbidden},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindServerError},
		{http.StatusServiceUnavailable, KindServerError},
		{http.StatusBadRequest, KindUnknown},
	}
	for _, tc := range cases {
		err := &HTTPError{StatusCode: tc.status}
		if got := Classify(err); got != tc.kind {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.kind, got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if isRetryable(&APIError{Message: "invalid account"}) {
		t.Fatal("business failures must not be retryable")
	}
	if isRetryable(&HTTPError{StatusCode: http.StatusBadRequest}) {
		t.Fatal("400 must not be retryable")
	}
	if !isRetryable(&HTTPError{StatusCode: http.StatusTooManyRequests}) {
		t.Fatal("429 must be retryable")
	}
	if !isRetryable(&HTTPError{StatusCode: http.StatusBadGateway}) {
		t.Fatal("502 must be retryable")
	}
	if !isRetryable(errors.New("read tcp: connection reset by peer")) {
		t.Fatal("connection reset must be retryable")
	}
	if !isRetryable(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded must be retryable")
	}
}

func TestRateLimitedRetried(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"status":true,"data":{"id":"5","status":"pending"}}`))
	})

	if _, err := c.DepositStatus(context.Background(), "5"); err != nil {
		t.Fatalf("expected retry to recover from 429, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
