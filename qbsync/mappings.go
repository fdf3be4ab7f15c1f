package qbsync

import (
	"context"
	"errors"
	"time"

	"github.com/fieldlinehq/fsm_backend/models"
	"gorm.io/gorm"
)

func findMappingByLocal(ctx context.Context, db *gorm.DB, entityType string, localId int) (*models.QuickBooksMapping, error) {
	var mapping models.QuickBooksMapping
	err := db.WithContext(ctx).
		Where("local_entity_type = ? AND local_entity_id = ?", entityType, localId).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

func findMappingByRemote(ctx context.Context, db *gorm.DB, quickbooksId string, quickbooksType string) (*models.QuickBooksMapping, error) {
	var mapping models.QuickBooksMapping
	err := db.WithContext(ctx).
		Where("quickbooks_id = ? AND quickbooks_type = ?", quickbooksId, quickbooksType).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

// upsertSyncedMapping inserts or updates the mapping for a local entity after
// a successful sync, stamping the new version token. A remote ID, once
// assigned, is stable; updates never change the local key.
func upsertSyncedMapping(ctx context.Context, tx *gorm.DB, existing *models.QuickBooksMapping, entityType string, localId int, quickbooksId string, quickbooksType string, syncVersion string) error {
	now := time.Now()
	if existing == nil {
		mapping := models.QuickBooksMapping{
			LocalEntityType: entityType,
			LocalEntityId:   localId,
			QuickbooksId:    quickbooksId,
			QuickbooksType:  quickbooksType,
			SyncVersion:     syncVersion,
			SyncStatus:      models.MappingStatusSynced,
			LastSyncAt:      &now,
		}
		return tx.WithContext(ctx).Create(&mapping).Error
	}
	return tx.WithContext(ctx).
		Model(&models.QuickBooksMapping{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"quickbooks_id": quickbooksId,
			"sync_version":  syncVersion,
			"sync_status":   models.MappingStatusSynced,
			"last_sync_at":  now,
		}).Error
}

// markMappingError sets the mapping to ERROR and appends the message to its
// bounded error list, creating a PENDING-born row when none exists yet.
func markMappingError(ctx context.Context, db *gorm.DB, existing *models.QuickBooksMapping, entityType string, localId int, quickbooksType string, message string) error {
	entry := models.SyncErrorEntry{Timestamp: time.Now(), Error: message}
	if existing == nil {
		mapping := models.QuickBooksMapping{
			LocalEntityType: entityType,
			LocalEntityId:   localId,
			QuickbooksType:  quickbooksType,
			SyncStatus:      models.MappingStatusError,
			SyncErrorsJSON:  models.AppendSyncError(nil, entry),
		}
		return db.WithContext(ctx).Create(&mapping).Error
	}
	return db.WithContext(ctx).
		Model(&models.QuickBooksMapping{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"sync_status":      models.MappingStatusError,
			"sync_errors_json": models.AppendSyncError(existing.SyncErrorsJSON, entry),
		}).Error
}

func createSyncLog(ctx context.Context, db *gorm.DB, log models.QuickBooksSyncLog) error {
	return db.WithContext(ctx).Create(&log).Error
}
