package qbsync

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestPubSubPushHandler_AlwaysAcks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/pubsub/quickbooks-sync", PubSubPushHandler())

	// Push endpoint disabled: message is acked and dropped.
	t.Setenv("ENABLE_QB_PUBSUB_PUSH_ENDPOINT", "false")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pubsub/quickbooks-sync", strings.NewReader("{}")))
	if w.Code != http.StatusNoContent {
		t.Errorf("disabled endpoint: %d", w.Code)
	}

	// A malformed envelope must be acked, not retried forever by Pub/Sub.
	t.Setenv("ENABLE_QB_PUBSUB_PUSH_ENDPOINT", "true")
	for _, body := range []string{"not json", "{}", `{"message":{"data":"eyJydW5faWQiOjB9"}}`} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pubsub/quickbooks-sync", strings.NewReader(body)))
		if w.Code != http.StatusNoContent {
			t.Errorf("body %q: %d", body, w.Code)
		}
	}
}

func TestEnvBoolDefault(t *testing.T) {
	t.Setenv("QB_TEST_FLAG", "")
	if !envBoolDefault("QB_TEST_FLAG", true) || envBoolDefault("QB_TEST_FLAG", false) {
		t.Error("unset should fall back to default")
	}
	t.Setenv("QB_TEST_FLAG", "yes")
	if !envBoolDefault("QB_TEST_FLAG", false) {
		t.Error("yes should be true")
	}
	t.Setenv("QB_TEST_FLAG", "OFF")
	if envBoolDefault("QB_TEST_FLAG", true) {
		t.Error("OFF should be false")
	}
	t.Setenv("QB_TEST_FLAG", "junk")
	if !envBoolDefault("QB_TEST_FLAG", true) {
		t.Error("junk should fall back to default")
	}
}
