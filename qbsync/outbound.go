package qbsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldlinehq/fsm_backend/models"
	"gorm.io/gorm"
)

// outboundBatchSize bounds one outbound pass; rows left unsynced are picked
// up by the next run.
const outboundBatchSize = 50

// syncCustomersToQB pushes local customers without a SYNCED mapping to
// QuickBooks, one at a time. Per-customer failures never abort the batch.
func syncCustomersToQB(ctx context.Context, db *gorm.DB, runID uint, client *qbClient) SyncResult {
	var result SyncResult

	candidates, err := outboundCandidates(ctx, db)
	if err != nil {
		result.addError(fmt.Sprintf("query outbound candidates: %v", err))
		result.finalize()
		return result
	}

	for _, customer := range candidates {
		mapping, err := findMappingByLocal(ctx, db, models.QuickBooksEntityCustomer, customer.ID)
		if err != nil {
			result.addError(fmt.Sprintf("%s: %v", customer.DisplayName, err))
			continue
		}

		payload := buildCustomerPayload(customer)
		operation := models.SyncLogOperationCreate
		if mapping != nil && mapping.QuickbooksId != "" {
			operation = models.SyncLogOperationUpdate
			payload.Id = mapping.QuickbooksId
			payload.SyncToken = mapping.SyncVersion
		}
		requestJSON, _ := json.Marshal(payload)

		var (
			remote       qbCustomer
			responseBody []byte
		)
		if operation == models.SyncLogOperationUpdate {
			remote, responseBody, err = client.updateCustomer(ctx, payload)
		} else {
			remote, responseBody, err = client.createCustomer(ctx, payload)
		}
		if err != nil {
			result.addError(fmt.Sprintf("%s: %v", customer.DisplayName, err))
			recordOutboundFailure(ctx, db, runID, customer, mapping, operation, requestJSON, err)
			continue
		}

		txErr := db.Transaction(func(tx *gorm.DB) error {
			if err := upsertSyncedMapping(ctx, tx, mapping, models.QuickBooksEntityCustomer, customer.ID, remote.Id, models.QuickBooksTypeCustomer, remote.SyncToken); err != nil {
				return err
			}
			if customer.QuickbooksId != remote.Id {
				if err := tx.WithContext(ctx).
					Model(&models.Customer{}).
					Where("id = ?", customer.ID).
					Update("quickbooks_id", remote.Id).Error; err != nil {
					return err
				}
			}
			return createSyncLog(ctx, tx, models.QuickBooksSyncLog{
				SyncRunId:     runID,
				OperationType: operation,
				EntityType:    models.QuickBooksEntityCustomer,
				LocalEntityId: customer.ID,
				QuickbooksId:  remote.Id,
				Direction:     models.SyncDirectionToQB,
				Status:        models.SyncLogStatusSuccess,
				RequestJSON:   requestJSON,
				ResponseJSON:  responseBody,
			})
		})
		if txErr != nil {
			result.addError(fmt.Sprintf("%s: %v", customer.DisplayName, txErr))
			recordOutboundFailure(ctx, db, runID, customer, mapping, operation, requestJSON, txErr)
			continue
		}

		if operation == models.SyncLogOperationUpdate {
			result.Updated++
		} else {
			result.Created++
		}
	}

	result.finalize()
	return result
}

// outboundCandidates selects customers with no mapping row or a mapping that
// is not yet SYNCED (PENDING or ERROR rows are retried on the next pass).
func outboundCandidates(ctx context.Context, db *gorm.DB) ([]models.Customer, error) {
	var customers []models.Customer
	err := db.WithContext(ctx).
		Joins("LEFT JOIN quick_books_mappings m ON m.local_entity_type = ? AND m.local_entity_id = customers.id",
			models.QuickBooksEntityCustomer).
		Where("m.id IS NULL OR m.sync_status <> ?", models.MappingStatusSynced).
		Order("customers.id").
		Limit(outboundBatchSize).
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

// buildCustomerPayload copies the mirrored fields, pruning optional fields
// that are unset; the remote API rejects explicit nulls for them.
func buildCustomerPayload(customer models.Customer) qbCustomer {
	payload := qbCustomer{
		DisplayName: customer.DisplayName,
		CompanyName: customer.CompanyName,
		GivenName:   customer.FirstName,
		FamilyName:  customer.LastName,
		Notes:       customer.Notes,
	}
	if customer.Email != "" {
		payload.PrimaryEmailAddr = &qbEmail{Address: customer.Email}
	}
	if customer.Phone != "" {
		payload.PrimaryPhone = &qbPhone{FreeFormNumber: customer.Phone}
	}
	if customer.Mobile != "" {
		payload.Mobile = &qbPhone{FreeFormNumber: customer.Mobile}
	}
	if customer.AddressLine1 != "" || customer.City != "" || customer.State != "" || customer.PostalCode != "" || customer.Country != "" {
		payload.BillAddr = &qbAddress{
			Line1:                  customer.AddressLine1,
			City:                   customer.City,
			CountrySubDivisionCode: customer.State,
			PostalCode:             customer.PostalCode,
			Country:                customer.Country,
		}
	}
	return payload
}

// recordOutboundFailure writes the ERROR audit row and flips the mapping to
// ERROR. Best effort: a failing audit write must not mask the sync error.
func recordOutboundFailure(ctx context.Context, db *gorm.DB, runID uint, customer models.Customer, mapping *models.QuickBooksMapping, operation string, requestJSON []byte, cause error) {
	quickbooksId := ""
	if mapping != nil {
		quickbooksId = mapping.QuickbooksId
	}
	_ = createSyncLog(ctx, db, models.QuickBooksSyncLog{
		SyncRunId:     runID,
		OperationType: operation,
		EntityType:    models.QuickBooksEntityCustomer,
		LocalEntityId: customer.ID,
		QuickbooksId:  quickbooksId,
		Direction:     models.SyncDirectionToQB,
		Status:        models.SyncLogStatusError,
		RequestJSON:   requestJSON,
		ErrorMessage:  cause.Error(),
	})
	_ = markMappingError(ctx, db, mapping, models.QuickBooksEntityCustomer, customer.ID, models.QuickBooksTypeCustomer, cause.Error())
}
