package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/fieldlinehq/fsm_backend/config"
	"github.com/fieldlinehq/fsm_backend/models"
	"github.com/fieldlinehq/fsm_backend/utils"
	"gorm.io/gorm"
)

const syncLockTTL = 10 * time.Minute

var ErrNoActiveConnection = errors.New("no active quickbooks connection")

// GetActiveConnection returns the connected QuickBooks connection record.
func GetActiveConnection(ctx context.Context, db *gorm.DB) (*models.QuickBooksConnection, error) {
	var conn models.QuickBooksConnection
	err := db.WithContext(ctx).
		Where("status = ?", models.ConnectionStatusConnected).
		Order("id desc").
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveConnection
		}
		return nil, err
	}
	return &conn, nil
}

// RunFullSync is the single sync entry point. It runs, in fixed order:
// outbound customers, inbound customers, inbound items, then stamps the
// connection's last_sync_at regardless of individual failures. Failing to
// obtain the connection (or the single-flight lock) aborts before any
// sub-sync runs and is surfaced on every sub-result.
func RunFullSync(ctx context.Context, runID uint) (FullSyncResult, error) {
	db := config.GetDB()

	conn, err := GetActiveConnection(ctx, db)
	if err != nil {
		return abortedResult(err), err
	}

	// Single-flight per connection: two orchestrator runs must never
	// interleave on the same mapping rows.
	lock, err := utils.ObtainSyncLock(ctx, "quickbooks-sync", strconv.Itoa(int(conn.ID)), syncLockTTL, "qbsync", "RunFullSync")
	if err != nil {
		return abortedResult(err), err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	client, err := newQBClient(conn.RealmId, conn.AuthSecretRef)
	if err != nil {
		return abortedResult(err), err
	}

	modules := DecodeModules(conn.SettingsJSON)

	var result FullSyncResult
	if modules.Customers {
		result.Customers.ToQB = syncCustomersToQB(ctx, db, runID, client)
		result.Customers.FromQB = syncCustomersFromQB(ctx, db, runID, client)
	} else {
		result.Customers.ToQB.finalize()
		result.Customers.FromQB.finalize()
	}
	if modules.Items {
		result.Items.FromQB = syncItemsFromQB(ctx, db, runID, client)
	} else {
		result.Items.FromQB.finalize()
	}

	now := time.Now()
	updates := map[string]interface{}{"last_sync_at": now}
	if result.errorCount() == 0 {
		updates["last_success_sync_at"] = now
	}
	if err := db.WithContext(ctx).
		Model(&models.QuickBooksConnection{}).
		Where("id = ?", conn.ID).
		Updates(updates).Error; err != nil {
		config.LogError(config.GetLogger(), "qbsync", "RunFullSync", "stamp last_sync_at", conn.ID, err)
	}
	_ = config.RemoveRedisKey(statusCacheKey)

	return result, nil
}

func abortedResult(cause error) FullSyncResult {
	detail := cause.Error()
	return FullSyncResult{
		Customers: CustomerSyncResults{
			ToQB:   failedResult(detail),
			FromQB: failedResult(detail),
		},
		Items: ItemSyncResults{
			FromQB: failedResult(detail),
		},
	}
}

// processSyncRun executes one queued run row end to end, recording status,
// stats and duration. Already-finished runs are acked as no-ops so Pub/Sub
// redeliveries stay idempotent.
func processSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 {
		return errors.New("invalid payload")
	}

	db := config.GetDB().WithContext(ctx)

	var run models.QuickBooksSyncRun
	if err := db.Where("id = ?", payload.RunId).Take(&run).Error; err != nil {
		return err
	}

	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}

	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	result, runErr := RunFullSync(ctx, run.ID)

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()
	errorCount := result.errorCount()
	totalSynced := result.recordsSynced()

	status := models.SyncRunStatusSuccess
	if runErr != nil || (errorCount > 0 && totalSynced == 0) {
		status = models.SyncRunStatusFailed
	} else if errorCount > 0 {
		status = models.SyncRunStatusPartial
	}

	statsJSON, _ := json.Marshal(result)
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":         status,
		"finished_at":    finishedAt,
		"duration_ms":    durationMs,
		"records_synced": totalSynced,
		"error_count":    errorCount,
		"stats_json":     statsJSON,
	}).Error; err != nil {
		return err
	}

	return nil
}
