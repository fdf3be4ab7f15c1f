package qbsync

import "encoding/json"

type SyncModules struct {
	Customers bool `json:"customers"`
	Items     bool `json:"items"`
}

func DefaultModules() SyncModules {
	return SyncModules{
		Customers: true,
		Items:     true,
	}
}

func DecodeModules(raw []byte) SyncModules {
	if len(raw) == 0 {
		return DefaultModules()
	}
	var mod SyncModules
	if err := json.Unmarshal(raw, &mod); err != nil {
		return DefaultModules()
	}
	return mod
}

func EncodeModules(mod SyncModules) []byte {
	b, _ := json.Marshal(mod)
	return b
}

// SyncResult is the aggregate outcome of one sync direction. Success means
// zero per-entity errors; partial failures never abort a batch.
type SyncResult struct {
	Success      bool     `json:"success"`
	Created      int      `json:"created"`
	Updated      int      `json:"updated"`
	Errors       int      `json:"errors"`
	ErrorDetails []string `json:"errorDetails"`
}

func (r *SyncResult) addError(detail string) {
	r.Errors++
	r.ErrorDetails = append(r.ErrorDetails, detail)
}

func (r *SyncResult) finalize() {
	r.Success = r.Errors == 0
	if r.ErrorDetails == nil {
		r.ErrorDetails = []string{}
	}
}

func failedResult(detail string) SyncResult {
	return SyncResult{
		Success:      false,
		Errors:       1,
		ErrorDetails: []string{detail},
	}
}

type CustomerSyncResults struct {
	ToQB   SyncResult `json:"toQB"`
	FromQB SyncResult `json:"fromQB"`
}

type ItemSyncResults struct {
	FromQB SyncResult `json:"fromQB"`
}

// FullSyncResult is the combined object an orchestrator run returns.
type FullSyncResult struct {
	Customers CustomerSyncResults `json:"customers"`
	Items     ItemSyncResults     `json:"items"`
}

func (r FullSyncResult) errorCount() int {
	return r.Customers.ToQB.Errors + r.Customers.FromQB.Errors + r.Items.FromQB.Errors
}

func (r FullSyncResult) recordsSynced() int {
	return r.Customers.ToQB.Created + r.Customers.ToQB.Updated +
		r.Customers.FromQB.Created + r.Customers.FromQB.Updated +
		r.Items.FromQB.Created + r.Items.FromQB.Updated
}

type ConnectRequest struct {
	RealmId     string `json:"realmId" binding:"required"`
	CompanyName string `json:"companyName"`
	AccessToken string `json:"accessToken" binding:"required"`
}

type UpdateSettingsRequest struct {
	Modules SyncModules `json:"modules"`
}

type TriggerSyncRequest struct {
	Modules SyncModules `json:"modules"`
}

type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	LastSyncAt        *string            `json:"lastSyncAt"`
	LastSuccessSyncAt *string            `json:"lastSuccessSyncAt"`
	Modules           SyncModules        `json:"modules"`
}

type ConnectionResponse struct {
	Status      string `json:"status"`
	RealmId     string `json:"realmId"`
	CompanyName string `json:"companyName"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Logs []SyncLogResponse `json:"logs"`
}

type SyncLogResponse struct {
	ID            uint   `json:"id"`
	OperationType string `json:"operationType"`
	EntityType    string `json:"entityType"`
	LocalEntityId int    `json:"localEntityId"`
	QuickbooksId  string `json:"quickbooksId"`
	Direction     string `json:"direction"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"errorMessage"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId        uint `json:"run_id"`
	ConnectionId uint `json:"connection_id"`
}
