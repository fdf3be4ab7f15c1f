package qbsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fieldlinehq/fsm_backend/models"
	"github.com/fieldlinehq/fsm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// syncItemsFromQB mirrors the remote product/service catalog into the local
// read cache. Items are remote-authoritative; every mirrored field is
// overwritten on each pass. No mapping-table indirection: the remote ID is
// the upsert key.
func syncItemsFromQB(ctx context.Context, db *gorm.DB, runID uint, client *qbClient) SyncResult {
	var result SyncResult

	startPosition := 1
	for {
		page, err := client.queryItems(ctx, startPosition, defaultPageSize)
		if err != nil {
			result.addError(fmt.Sprintf("fetch items page at %d: %v", startPosition, err))
			break
		}
		for _, remote := range page {
			created, err := upsertItem(ctx, db, remote)
			if err != nil {
				result.addError(fmt.Sprintf("%s: %v", remoteItemName(remote), err))
				_ = createSyncLog(ctx, db, models.QuickBooksSyncLog{
					SyncRunId:     runID,
					OperationType: models.SyncLogOperationSync,
					EntityType:    models.QuickBooksEntityItem,
					QuickbooksId:  strings.TrimSpace(remote.Id),
					Direction:     models.SyncDirectionFromQB,
					Status:        models.SyncLogStatusError,
					ErrorMessage:  err.Error(),
				})
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		if len(page) < defaultPageSize {
			break
		}
		startPosition += len(page)
	}

	result.finalize()

	// One summary audit row per pass; per-item success rows would dwarf the log.
	summary, _ := json.Marshal(map[string]int{"created": result.Created, "updated": result.Updated, "errors": result.Errors})
	summaryStatus := models.SyncLogStatusSuccess
	if result.Errors > 0 {
		summaryStatus = models.SyncLogStatusError
	}
	_ = createSyncLog(ctx, db, models.QuickBooksSyncLog{
		SyncRunId:     runID,
		OperationType: models.SyncLogOperationSync,
		EntityType:    models.QuickBooksEntityItem,
		Direction:     models.SyncDirectionFromQB,
		Status:        summaryStatus,
		ResponseJSON:  summary,
	})

	return result
}

// upsertItem writes one catalog row keyed by remote ID. MySQL reports one
// affected row for a fresh insert and two for an ON DUPLICATE KEY update,
// which is how created and updated are told apart.
func upsertItem(ctx context.Context, db *gorm.DB, remote qbItem) (bool, error) {
	quickbooksId := strings.TrimSpace(remote.Id)
	if quickbooksId == "" {
		return false, fmt.Errorf("remote item id missing")
	}

	name := strings.TrimSpace(remote.Name)
	if name == "" {
		name = "QuickBooks Item " + quickbooksId
	}

	taxable := remote.Taxable
	if taxable == nil {
		taxable = utils.NewFalse()
	}
	active := remote.Active
	if active == nil {
		active = utils.NewTrue()
	}

	now := time.Now()
	row := models.QuickBooksItem{
		QuickbooksId: quickbooksId,
		Name:         name,
		Description:  strings.TrimSpace(remote.Description),
		Type:         strings.TrimSpace(remote.Type),
		UnitPrice:    decimalFromNumber(remote.UnitPrice),
		QtyOnHand:    decimalFromNumber(remote.QtyOnHand),
		Taxable:      taxable,
		Active:       active,
		Sku:          strings.TrimSpace(remote.Sku),
		SyncVersion:  remote.SyncToken,
		LastSyncAt:   &now,
	}

	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "quickbooks_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "type", "unit_price", "qty_on_hand",
			"taxable", "active", "sku", "sync_version", "last_sync_at", "updated_at",
		}),
	}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func remoteItemName(remote qbItem) string {
	if name := strings.TrimSpace(remote.Name); name != "" {
		return name
	}
	return "QuickBooks Item " + strings.TrimSpace(remote.Id)
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}
