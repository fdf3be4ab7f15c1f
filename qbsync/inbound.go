package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldlinehq/fsm_backend/models"
	"gorm.io/gorm"
)

// syncCustomersFromQB pulls the remote customer collection page by page and
// reconciles it against the mapping store. Remote is authoritative on this
// direction; local fields are overwritten when the version token moved.
func syncCustomersFromQB(ctx context.Context, db *gorm.DB, runID uint, client *qbClient) SyncResult {
	var result SyncResult

	startPosition := 1
	for {
		page, err := client.queryCustomers(ctx, startPosition, defaultPageSize)
		if err != nil {
			result.addError(fmt.Sprintf("fetch customers page at %d: %v", startPosition, err))
			break
		}
		for _, remote := range page {
			if err := applyRemoteCustomer(ctx, db, runID, remote, &result); err != nil {
				result.addError(fmt.Sprintf("%s: %v", remoteCustomerName(remote), err))
			}
		}
		if len(page) < defaultPageSize {
			break
		}
		startPosition += len(page)
	}

	result.finalize()
	return result
}

func applyRemoteCustomer(ctx context.Context, db *gorm.DB, runID uint, remote qbCustomer, result *SyncResult) error {
	quickbooksId := strings.TrimSpace(remote.Id)
	if quickbooksId == "" {
		return errors.New("remote customer id missing")
	}

	mapping, err := findMappingByRemote(ctx, db, quickbooksId, models.QuickBooksTypeCustomer)
	if err != nil {
		return err
	}

	input := mapRemoteCustomer(remote)
	// Remote payload snapshot for the audit row, same as the outbound path.
	responseJSON, _ := json.Marshal(remote)

	if mapping == nil {
		txErr := db.Transaction(func(tx *gorm.DB) error {
			customer, err := models.CreateCustomerTx(ctx, tx, input)
			if err != nil {
				return err
			}
			if err := upsertSyncedMapping(ctx, tx, nil, models.QuickBooksEntityCustomer, customer.ID, quickbooksId, models.QuickBooksTypeCustomer, remote.SyncToken); err != nil {
				return err
			}
			return createSyncLog(ctx, tx, models.QuickBooksSyncLog{
				SyncRunId:     runID,
				OperationType: models.SyncLogOperationCreate,
				EntityType:    models.QuickBooksEntityCustomer,
				LocalEntityId: customer.ID,
				QuickbooksId:  quickbooksId,
				Direction:     models.SyncDirectionFromQB,
				Status:        models.SyncLogStatusSuccess,
				ResponseJSON:  responseJSON,
			})
		})
		if txErr != nil {
			return txErr
		}
		result.Created++
		return nil
	}

	if mapping.SyncVersion == remote.SyncToken {
		// Already current; no local write issued.
		return nil
	}

	txErr := db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.UpdateCustomerTx(ctx, tx, mapping.LocalEntityId, input); err != nil {
			return err
		}
		// Compare-and-swap on the stored token so two concurrent runs cannot
		// both win the same version transition.
		res := tx.WithContext(ctx).
			Model(&models.QuickBooksMapping{}).
			Where("id = ? AND sync_version = ?", mapping.ID, mapping.SyncVersion).
			Updates(map[string]interface{}{
				"sync_version": remote.SyncToken,
				"sync_status":  models.MappingStatusSynced,
				"last_sync_at": gorm.Expr("CURRENT_TIMESTAMP"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("mapping version changed concurrently")
		}
		return createSyncLog(ctx, tx, models.QuickBooksSyncLog{
			SyncRunId:     runID,
			OperationType: models.SyncLogOperationUpdate,
			EntityType:    models.QuickBooksEntityCustomer,
			LocalEntityId: mapping.LocalEntityId,
			QuickbooksId:  quickbooksId,
			Direction:     models.SyncDirectionFromQB,
			Status:        models.SyncLogStatusSuccess,
			ResponseJSON:  responseJSON,
		})
	})
	if txErr != nil {
		return txErr
	}
	result.Updated++
	return nil
}

func mapRemoteCustomer(remote qbCustomer) *models.NewCustomer {
	input := &models.NewCustomer{
		DisplayName:  strings.TrimSpace(remote.DisplayName),
		CompanyName:  strings.TrimSpace(remote.CompanyName),
		FirstName:    strings.TrimSpace(remote.GivenName),
		LastName:     strings.TrimSpace(remote.FamilyName),
		Notes:        remote.Notes,
		QuickbooksId: strings.TrimSpace(remote.Id),
	}
	if input.DisplayName == "" {
		input.DisplayName = remoteCustomerName(remote)
	}
	if remote.PrimaryEmailAddr != nil {
		input.Email = strings.TrimSpace(remote.PrimaryEmailAddr.Address)
	}
	if remote.PrimaryPhone != nil {
		input.Phone = strings.TrimSpace(remote.PrimaryPhone.FreeFormNumber)
	}
	if remote.Mobile != nil {
		input.Mobile = strings.TrimSpace(remote.Mobile.FreeFormNumber)
	}
	if remote.BillAddr != nil {
		input.AddressLine1 = remote.BillAddr.Line1
		input.City = remote.BillAddr.City
		input.State = remote.BillAddr.CountrySubDivisionCode
		input.PostalCode = remote.BillAddr.PostalCode
		input.Country = remote.BillAddr.Country
	}
	return input
}

func remoteCustomerName(remote qbCustomer) string {
	if name := strings.TrimSpace(remote.DisplayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(remote.CompanyName); name != "" {
		return name
	}
	return "QuickBooks Customer " + strings.TrimSpace(remote.Id)
}
