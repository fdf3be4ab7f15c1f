package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldlinehq/fsm_backend/config"
	"github.com/fieldlinehq/fsm_backend/utils"
	"gorm.io/gorm"
)

type Customer struct {
	ID           int       `gorm:"primary_key" json:"id"`
	DisplayName  string    `gorm:"size:100;not null;index" json:"display_name" binding:"required"`
	CompanyName  string    `gorm:"size:100" json:"company_name"`
	FirstName    string    `gorm:"size:100" json:"first_name"`
	LastName     string    `gorm:"size:100" json:"last_name"`
	Email        string    `gorm:"size:100" json:"email"`
	Phone        string    `gorm:"size:20" json:"phone"`
	Mobile       string    `gorm:"size:20" json:"mobile"`
	AddressLine1 string    `gorm:"size:255" json:"address_line1"`
	City         string    `gorm:"size:100" json:"city"`
	State        string    `gorm:"size:100" json:"state"`
	PostalCode   string    `gorm:"size:20" json:"postal_code"`
	Country      string    `gorm:"size:100" json:"country"`
	Notes        string    `gorm:"type:text" json:"notes"`
	QuickbooksId string    `gorm:"size:64;index" json:"quickbooks_id"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	DisplayName  string `json:"display_name" binding:"required" validate:"required"`
	CompanyName  string `json:"company_name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Mobile       string `json:"mobile"`
	AddressLine1 string `json:"address_line1"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Notes        string `json:"notes"`
	QuickbooksId string `json:"quickbooks_id"`
}

func (input *NewCustomer) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return errors.New("display name is required")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return fmt.Errorf("invalid email: %s", input.Email)
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return fmt.Errorf("invalid phone number: %w", err)
		}
	}
	return nil
}

func newCustomerRow(input *NewCustomer) Customer {
	return Customer{
		DisplayName:  input.DisplayName,
		CompanyName:  input.CompanyName,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		Phone:        input.Phone,
		Mobile:       input.Mobile,
		AddressLine1: input.AddressLine1,
		City:         input.City,
		State:        input.State,
		PostalCode:   input.PostalCode,
		Country:      input.Country,
		Notes:        input.Notes,
		QuickbooksId: input.QuickbooksId,
		IsActive:     utils.NewTrue(),
	}
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	return CreateCustomerTx(ctx, config.GetDB(), input)
}

// CreateCustomerTx creates a customer on the given handle so callers can
// include the insert in a wider transaction.
func CreateCustomerTx(ctx context.Context, db *gorm.DB, input *NewCustomer) (*Customer, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	customer := newCustomerRow(input)
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func UpdateCustomerTx(ctx context.Context, db *gorm.DB, id int, input *NewCustomer) (*Customer, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var customer Customer
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	err := db.WithContext(ctx).Model(&customer).Updates(map[string]interface{}{
		"DisplayName":  input.DisplayName,
		"CompanyName":  input.CompanyName,
		"FirstName":    input.FirstName,
		"LastName":     input.LastName,
		"Email":        input.Email,
		"Phone":        input.Phone,
		"Mobile":       input.Mobile,
		"AddressLine1": input.AddressLine1,
		"City":         input.City,
		"State":        input.State,
		"PostalCode":   input.PostalCode,
		"Country":      input.Country,
		"Notes":        input.Notes,
		"QuickbooksId": input.QuickbooksId,
	}).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	db := config.GetDB()
	var customer Customer
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func GetCustomers(ctx context.Context, name *string) ([]*Customer, error) {
	db := config.GetDB()
	var customers []*Customer
	query := db.WithContext(ctx).Model(&Customer{})
	if name != nil && strings.TrimSpace(*name) != "" {
		query = query.Where("display_name LIKE ?", "%"+strings.TrimSpace(*name)+"%")
	}
	if err := query.Order("id").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}
