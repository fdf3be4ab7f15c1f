package qbsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *qbClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("QB_API_BASE_URL", srv.URL)
	t.Setenv("QB_RATE_LIMIT_PER_MIN", "600000")

	client, err := newQBClient("realm-1", "token-1")
	if err != nil {
		t.Fatalf("newQBClient: %v", err)
	}
	return client
}

func TestQueryCustomers_PaginationAndAuth(t *testing.T) {
	var gotQuery, gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/company/realm-1/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(qbEnvelope{
			QueryResponse: &qbQueryResponse{
				Customer: []qbCustomer{{Id: "1", DisplayName: "Acme Co"}},
			},
		})
	}))

	customers, err := client.queryCustomers(context.Background(), 101, 100)
	if err != nil {
		t.Fatalf("queryCustomers: %v", err)
	}
	if len(customers) != 1 || customers[0].DisplayName != "Acme Co" {
		t.Errorf("unexpected customers: %+v", customers)
	}
	if gotQuery != "SELECT * FROM Customer STARTPOSITION 101 MAXRESULTS 100" {
		t.Errorf("unexpected query statement: %q", gotQuery)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
}

func TestWriteCustomer_DecodesBothResponseShapes(t *testing.T) {
	responses := []string{
		`{"Customer":{"Id":"7","SyncToken":"0","DisplayName":"Acme Co"}}`,
		`{"QueryResponse":{"Customer":[{"Id":"8","SyncToken":"0","DisplayName":"Beta LLC"}]}}`,
	}
	call := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(responses[call]))
		call++
	}))

	first, _, err := client.createCustomer(context.Background(), qbCustomer{DisplayName: "Acme Co"})
	if err != nil {
		t.Fatalf("createCustomer (entity shape): %v", err)
	}
	if first.Id != "7" {
		t.Errorf("expected Id 7, got %q", first.Id)
	}

	second, _, err := client.createCustomer(context.Background(), qbCustomer{DisplayName: "Beta LLC"})
	if err != nil {
		t.Fatalf("createCustomer (query shape): %v", err)
	}
	if second.Id != "8" {
		t.Errorf("expected Id 8, got %q", second.Id)
	}
}

func TestDo_SurfacesFaultMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"Duplicate Name Exists Error","Detail":"The name supplied already exists","code":"6240"}]}}`))
	}))

	_, _, err := client.createCustomer(context.Background(), qbCustomer{DisplayName: "Acme Co"})
	if err == nil {
		t.Fatal("expected fault error")
	}
	if !strings.Contains(err.Error(), "Duplicate Name Exists Error") || !strings.Contains(err.Error(), "400") {
		t.Errorf("fault not surfaced: %v", err)
	}
}

func TestUpdateCustomer_RequiresId(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	_, _, err := client.updateCustomer(context.Background(), qbCustomer{DisplayName: "Acme Co"})
	if err == nil {
		t.Fatal("expected error for update without id")
	}
}
