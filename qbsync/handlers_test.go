package qbsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldlinehq/fsm_backend/config"
	"github.com/fieldlinehq/fsm_backend/models"
	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/integrations/quickbooks/status", StatusHandler())
	r.POST("/api/integrations/quickbooks/connect", ConnectHandler())
	r.POST("/api/integrations/quickbooks/disconnect", DisconnectHandler())
	r.POST("/api/integrations/quickbooks/settings", UpdateSettingsHandler())
	r.POST("/api/integrations/quickbooks/sync", TriggerSyncHandler())
	r.GET("/api/integrations/quickbooks/customers", CustomersHandler())
	r.GET("/api/integrations/quickbooks/sync-runs", SyncHistoryHandler())
	r.GET("/api/integrations/quickbooks/sync-runs/:id", SyncRunDetailHandler())
	r.POST("/api/integrations/quickbooks/sync-runs/:id/retry", RetrySyncRunHandler())
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQuickBooksAdminEndpoints(t *testing.T) {
	db, _, _ := setupSyncEnv(t)
	router := newTestRouter()

	// Nothing configured yet: status reports disconnected with default modules.
	w := doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	var status StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Connection.Status != models.ConnectionStatusDisconnected {
		t.Errorf("initial status = %s", status.Connection.Status)
	}
	if !status.Modules.Customers || !status.Modules.Items {
		t.Errorf("default modules: %+v", status.Modules)
	}

	// Sync cannot be triggered while disconnected.
	w = doJSON(t, router, http.MethodPost, "/api/integrations/quickbooks/sync", "{}")
	if w.Code != http.StatusConflict {
		t.Fatalf("trigger while disconnected: %d %s", w.Code, w.Body.String())
	}

	// Connect requires realm and token.
	w = doJSON(t, router, http.MethodPost, "/api/integrations/quickbooks/connect", `{"realmId":"test-realm"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("connect without token: %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/integrations/quickbooks/connect",
		`{"realmId":"test-realm","companyName":"Fieldline Test Co","accessToken":"test-token"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("connect: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/status", "")
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Connection.Status != models.ConnectionStatusConnected || status.Connection.RealmId != "test-realm" {
		t.Errorf("connected status: %+v", status.Connection)
	}

	// Module toggles persist.
	w = doJSON(t, router, http.MethodPost, "/api/integrations/quickbooks/settings",
		`{"modules":{"customers":true,"items":false}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("settings: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/status", "")
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Modules.Customers || status.Modules.Items {
		t.Errorf("settings not applied: %+v", status.Modules)
	}

	// Triggering creates a queued run; dispatch is asynchronous.
	w = doJSON(t, router, http.MethodPost, "/api/integrations/quickbooks/sync", "{}")
	if w.Code != http.StatusOK {
		t.Fatalf("trigger: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.ID == 0 {
		t.Fatalf("trigger response: %s (%v)", w.Body.String(), err)
	}
	var run models.QuickBooksSyncRun
	if err := db.Where("id = ?", created.ID).Take(&run).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != models.SyncRunStatusQueued || run.TriggeredBy != models.SyncTriggeredManual {
		t.Errorf("queued run: %+v", run)
	}

	// History lists the run; detail returns it with its (empty) log set.
	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/sync-runs?limit=5", "")
	var history SyncHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].ID != created.ID {
		t.Errorf("history: %+v", history.Items)
	}

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/integrations/quickbooks/sync-runs/%d", created.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("run detail: %d %s", w.Code, w.Body.String())
	}
	var detail SyncRunDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.ID != created.ID || len(detail.Logs) != 0 {
		t.Errorf("detail: %+v", detail)
	}

	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/sync-runs/9999", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing run detail: %d", w.Code)
	}

	// Retry spawns a new queued run linked to its parent.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/integrations/quickbooks/sync-runs/%d/retry", created.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("retry: %d %s", w.Code, w.Body.String())
	}
	var retried struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &retried); err != nil || retried.ID == 0 {
		t.Fatalf("retry response: %s (%v)", w.Body.String(), err)
	}
	var retryRun models.QuickBooksSyncRun
	if err := db.Where("id = ?", retried.ID).Take(&retryRun).Error; err != nil {
		t.Fatalf("load retry run: %v", err)
	}
	if retryRun.TriggeredBy != models.SyncTriggeredRetry || retryRun.ParentRunId == nil || *retryRun.ParentRunId != created.ID {
		t.Errorf("retry run: %+v", retryRun)
	}

	// Disconnect clears the credential reference but keeps the record.
	w = doJSON(t, router, http.MethodPost, "/api/integrations/quickbooks/disconnect", "")
	if w.Code != http.StatusOK {
		t.Fatalf("disconnect: %d %s", w.Code, w.Body.String())
	}
	var conn models.QuickBooksConnection
	if err := db.Order("id desc").Take(&conn).Error; err != nil {
		t.Fatalf("load connection: %v", err)
	}
	if conn.Status != models.ConnectionStatusDisconnected || conn.AuthSecretRef != "" {
		t.Errorf("disconnected connection: %+v", conn)
	}

	// Customer listing for sync administration, with a name filter.
	ctx := context.Background()
	mustCreateCustomer(t, ctx, &models.NewCustomer{DisplayName: "Acme Co"})
	mustCreateCustomer(t, ctx, &models.NewCustomer{DisplayName: "Beta Services"})
	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/customers?name=Acme", "")
	if w.Code != http.StatusOK {
		t.Fatalf("customers: %d %s", w.Code, w.Body.String())
	}
	var listing struct {
		Items []models.Customer `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode customers: %v", err)
	}
	if len(listing.Items) != 1 || listing.Items[0].DisplayName != "Acme Co" {
		t.Errorf("filtered customers: %+v", listing.Items)
	}

	// Status is cached; direct DB writes are invisible until something
	// invalidates the key.
	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/status", "")
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Connection.Status != models.ConnectionStatusDisconnected {
		t.Fatalf("status after disconnect = %s", status.Connection.Status)
	}
	if err := db.Model(&models.QuickBooksConnection{}).Where("id = ?", conn.ID).
		Update("status", models.ConnectionStatusConnected).Error; err != nil {
		t.Fatalf("flip status: %v", err)
	}
	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/status", "")
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Connection.Status != models.ConnectionStatusDisconnected {
		t.Errorf("expected cached status, got %s", status.Connection.Status)
	}
	if err := config.RemoveRedisKey(statusCacheKey); err != nil {
		t.Fatalf("invalidate cache: %v", err)
	}
	w = doJSON(t, router, http.MethodGet, "/api/integrations/quickbooks/status", "")
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Connection.Status != models.ConnectionStatusConnected {
		t.Errorf("expected fresh status after invalidation, got %s", status.Connection.Status)
	}
}
