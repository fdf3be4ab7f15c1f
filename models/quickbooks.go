package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	QuickBooksEntityCustomer = "customer"
	QuickBooksEntityItem     = "item"
)

const (
	QuickBooksTypeCustomer = "Customer"
	QuickBooksTypeItem     = "Item"
)

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusError        = "error"
)

const (
	MappingStatusPending = "PENDING"
	MappingStatusSynced  = "SYNCED"
	MappingStatusError   = "ERROR"
)

const (
	SyncDirectionToQB   = "TO_QB"
	SyncDirectionFromQB = "FROM_QB"
)

const (
	SyncLogOperationCreate = "CREATE"
	SyncLogOperationUpdate = "UPDATE"
	SyncLogOperationSync   = "SYNC"
)

const (
	SyncLogStatusSuccess = "SUCCESS"
	SyncLogStatusError   = "ERROR"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

type QuickBooksConnection struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	RealmId           string     `gorm:"size:64;not null;index" json:"realm_id"`
	CompanyName       string     `gorm:"size:255" json:"company_name"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	AuthType          string     `gorm:"size:20" json:"auth_type"`
	AuthSecretRef     string     `gorm:"type:text" json:"auth_secret_ref"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuickBooksMapping is the reconciliation ledger between one local entity and
// one remote entity. At most one row exists per (local_entity_type,
// local_entity_id); the unique index enforces it.
type QuickBooksMapping struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	LocalEntityType string     `gorm:"uniqueIndex:idx_qb_mapping_local,priority:1;size:50;not null" json:"local_entity_type"`
	LocalEntityId   int        `gorm:"uniqueIndex:idx_qb_mapping_local,priority:2;not null" json:"local_entity_id"`
	QuickbooksId    string     `gorm:"index:idx_qb_mapping_remote,priority:1;size:64;not null" json:"quickbooks_id"`
	QuickbooksType  string     `gorm:"index:idx_qb_mapping_remote,priority:2;size:50;not null" json:"quickbooks_type"`
	SyncVersion     string     `gorm:"size:64" json:"sync_version"`
	SyncStatus      string     `gorm:"size:20;not null" json:"sync_status"`
	SyncErrorsJSON  []byte     `gorm:"type:json" json:"sync_errors"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncErrorEntry is one element of a mapping's sync_errors column.
type SyncErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// maxMappingErrors bounds the per-mapping error history; older entries are
// dropped first.
const maxMappingErrors = 10

// AppendSyncError returns the sync_errors column with entry appended, keeping
// only the most recent maxMappingErrors entries.
func AppendSyncError(raw []byte, entry SyncErrorEntry) []byte {
	var entries []SyncErrorEntry
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &entries)
	}
	entries = append(entries, entry)
	if len(entries) > maxMappingErrors {
		entries = entries[len(entries)-maxMappingErrors:]
	}
	b, _ := json.Marshal(entries)
	return b
}

func DecodeSyncErrors(raw []byte) []SyncErrorEntry {
	if len(raw) == 0 {
		return nil
	}
	var entries []SyncErrorEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

// QuickBooksSyncLog is the append-only audit trail of sync attempts. Rows are
// never mutated or deleted.
type QuickBooksSyncLog struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	SyncRunId     uint      `gorm:"index" json:"sync_run_id"`
	OperationType string    `gorm:"size:20;not null" json:"operation_type"`
	EntityType    string    `gorm:"size:50;not null" json:"entity_type"`
	LocalEntityId int       `gorm:"index" json:"local_entity_id"`
	QuickbooksId  string    `gorm:"size:64;index" json:"quickbooks_id"`
	Direction     string    `gorm:"size:10;not null" json:"direction"`
	Status        string    `gorm:"size:10;not null" json:"status"`
	RequestJSON   []byte    `gorm:"type:json" json:"request"`
	ResponseJSON  []byte    `gorm:"type:json" json:"response"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// QuickBooksItem mirrors the remote product/service catalog 1:1 by remote ID.
// Items are remote-authoritative; there is no local-to-remote direction.
type QuickBooksItem struct {
	ID           uint            `gorm:"primary_key" json:"id"`
	QuickbooksId string          `gorm:"uniqueIndex;size:64;not null" json:"quickbooks_id"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Type         string          `gorm:"size:50" json:"type"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	QtyOnHand    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_on_hand"`
	Taxable      *bool           `gorm:"default:false" json:"taxable"`
	Active       *bool           `gorm:"default:true" json:"active"`
	Sku          string          `gorm:"size:100" json:"sku"`
	SyncVersion  string          `gorm:"size:64" json:"sync_version"`
	LastSyncAt   *time.Time      `json:"last_sync_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type QuickBooksSyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	ConnectionId  uint       `gorm:"index;not null" json:"connection_id"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
