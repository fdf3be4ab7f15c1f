package qbsync

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fieldlinehq/fsm_backend/models"
)

// The remote API rejects explicit nulls for optional fields, so unset
// contact/address fields must be pruned from the payload entirely.
func TestBuildCustomerPayload_PrunesUnsetOptionalFields(t *testing.T) {
	customer := models.Customer{
		ID:          1,
		DisplayName: "Acme Co",
		CompanyName: "Acme Co",
	}

	payload := buildCustomerPayload(customer)
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body := string(raw)

	for _, key := range []string{"PrimaryEmailAddr", "PrimaryPhone", "Mobile", "BillAddr", "Id", "SyncToken"} {
		if strings.Contains(body, key) {
			t.Errorf("payload contains %s for a customer without it: %s", key, body)
		}
	}
	if !strings.Contains(body, `"DisplayName":"Acme Co"`) {
		t.Errorf("payload missing display name: %s", body)
	}
}

func TestBuildCustomerPayload_IncludesSetFields(t *testing.T) {
	customer := models.Customer{
		ID:           2,
		DisplayName:  "Beta LLC",
		FirstName:    "Bea",
		LastName:     "Taylor",
		Email:        "bea@beta.test",
		Phone:        "+12025550143",
		AddressLine1: "1 Main St",
		City:         "Springfield",
		State:        "IL",
		PostalCode:   "62701",
	}

	payload := buildCustomerPayload(customer)

	if payload.PrimaryEmailAddr == nil || payload.PrimaryEmailAddr.Address != "bea@beta.test" {
		t.Errorf("email not mapped: %+v", payload.PrimaryEmailAddr)
	}
	if payload.PrimaryPhone == nil || payload.PrimaryPhone.FreeFormNumber != "+12025550143" {
		t.Errorf("phone not mapped: %+v", payload.PrimaryPhone)
	}
	if payload.BillAddr == nil || payload.BillAddr.CountrySubDivisionCode != "IL" {
		t.Errorf("address not mapped: %+v", payload.BillAddr)
	}
	if payload.GivenName != "Bea" || payload.FamilyName != "Taylor" {
		t.Errorf("person names not mapped: %+v", payload)
	}
}

func TestMapRemoteCustomer_FallbackDisplayName(t *testing.T) {
	input := mapRemoteCustomer(qbCustomer{Id: "42", CompanyName: "Gamma Inc"})
	if input.DisplayName != "Gamma Inc" {
		t.Errorf("expected company name fallback, got %q", input.DisplayName)
	}

	input = mapRemoteCustomer(qbCustomer{Id: "42"})
	if input.DisplayName != "QuickBooks Customer 42" {
		t.Errorf("expected id fallback, got %q", input.DisplayName)
	}
}

func TestDecodeModules_DefaultsOnEmptyOrInvalid(t *testing.T) {
	mod := DecodeModules(nil)
	if !mod.Customers || !mod.Items {
		t.Errorf("empty settings should default all modules on: %+v", mod)
	}
	mod = DecodeModules([]byte("{not json"))
	if !mod.Customers || !mod.Items {
		t.Errorf("invalid settings should default all modules on: %+v", mod)
	}
	mod = DecodeModules([]byte(`{"customers":true,"items":false}`))
	if !mod.Customers || mod.Items {
		t.Errorf("decoded settings not honored: %+v", mod)
	}
}
