package models_test

import (
	"context"
	"testing"

	"github.com/fieldlinehq/fsm_backend/models"
)

func TestCreateCustomer_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		input *models.NewCustomer
	}{
		{"missing display name", &models.NewCustomer{}},
		{"blank display name", &models.NewCustomer{DisplayName: "   "}},
		{"invalid email", &models.NewCustomer{DisplayName: "Acme Co", Email: "not-an-email"}},
		{"invalid phone", &models.NewCustomer{DisplayName: "Acme Co", Phone: "123"}},
	}
	for _, tc := range cases {
		if _, err := models.CreateCustomer(ctx, tc.input); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
