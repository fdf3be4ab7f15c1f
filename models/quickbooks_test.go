package models_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/fieldlinehq/fsm_backend/models"
)

func TestAppendSyncError_KeepsMostRecentEntries(t *testing.T) {
	var raw []byte
	for i := 1; i <= 12; i++ {
		raw = models.AppendSyncError(raw, models.SyncErrorEntry{
			Timestamp: time.Now(),
			Error:     fmt.Sprintf("attempt %d failed", i),
		})
	}

	entries := models.DecodeSyncErrors(raw)
	if len(entries) != 10 {
		t.Fatalf("expected history capped at 10, got %d", len(entries))
	}
	if entries[0].Error != "attempt 3 failed" {
		t.Errorf("oldest entries not dropped first, got %q", entries[0].Error)
	}
	if entries[9].Error != "attempt 12 failed" {
		t.Errorf("newest entry missing, got %q", entries[9].Error)
	}
}

func TestAppendSyncError_StartsFromCorruptColumn(t *testing.T) {
	raw := models.AppendSyncError([]byte("{not json"), models.SyncErrorEntry{
		Timestamp: time.Now(),
		Error:     "timeout",
	})

	entries := models.DecodeSyncErrors(raw)
	if len(entries) != 1 || entries[0].Error != "timeout" {
		t.Errorf("corrupt column should reset to a single entry, got %+v", entries)
	}
}

func TestDecodeSyncErrors_EmptyColumn(t *testing.T) {
	if got := models.DecodeSyncErrors(nil); got != nil {
		t.Errorf("expected nil for empty column, got %+v", got)
	}
	if got := models.DecodeSyncErrors([]byte("not json")); got != nil {
		t.Errorf("expected nil for invalid column, got %+v", got)
	}
}
