package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"gorm.io/gorm"
)

// PaymentMethod is a tender type rung up at the register (cash, credit, ...).
// Key is the stable identifier used inside report declared data, so renaming a
// method never orphans historical reports.
type PaymentMethod struct {
	ID         int               `gorm:"primary_key" json:"id"`
	BusinessId string            `gorm:"size:64;index;not null" json:"business_id"`
	Key        string            `gorm:"size:50;not null" json:"key" binding:"required"`
	Name       string            `gorm:"size:100;not null" json:"name" binding:"required"`
	Kind       PaymentMethodKind `gorm:"type:enum('Cash','Credit','Debit','GiftCard');default:'Cash';size:12;not null" json:"kind" binding:"required"`
	// Only the cash tender carries a drawer deposit amount in declared data.
	CollectsDeposit *bool     `gorm:"not null;default:false" json:"collects_deposit"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPaymentMethod struct {
	Key             string            `json:"key" binding:"required"`
	Name            string            `json:"name" binding:"required"`
	Kind            PaymentMethodKind `json:"kind" binding:"required"`
	CollectsDeposit *bool             `json:"collects_deposit"`
}

/*
caches:
	PaymentMethodList:$businessId
*/

func paymentMethodListKey(businessId string) string {
	return "PaymentMethodList:" + businessId
}

// validate input for both create & update. (id = 0 for create)
func (input *NewPaymentMethod) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[PaymentMethod](ctx, businessId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[PaymentMethod](ctx, businessId, "key", input.Key, id); err != nil {
		return err
	}
	if _, err := ParsePaymentMethodKind(string(input.Kind)); err != nil {
		return err
	}
	return nil
}

func createDefaultPaymentMethods(tx *gorm.DB, ctx context.Context, businessId string) error {

	defaults := []PaymentMethod{
		{Key: "pos_cash", Name: "Cash", Kind: PaymentMethodKindCash, CollectsDeposit: utils.NewTrue()},
		{Key: "pos_credit", Name: "Credit Card", Kind: PaymentMethodKindCredit, CollectsDeposit: utils.NewFalse()},
		{Key: "pos_debit", Name: "Debit Card", Kind: PaymentMethodKindDebit, CollectsDeposit: utils.NewFalse()},
		{Key: "pos_gift_card", Name: "Gift Card", Kind: PaymentMethodKindGiftCard, CollectsDeposit: utils.NewFalse()},
	}

	for i := range defaults {
		defaults[i].BusinessId = businessId
		defaults[i].IsActive = utils.NewTrue()
	}

	if err := tx.WithContext(ctx).Create(&defaults).Error; err != nil {
		return err
	}
	return nil
}

func CreatePaymentMethod(ctx context.Context, input *NewPaymentMethod) (*PaymentMethod, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	collectsDeposit := input.CollectsDeposit
	if collectsDeposit == nil {
		collectsDeposit = utils.NewFalse()
	}

	method := PaymentMethod{
		BusinessId:      businessId,
		Key:             input.Key,
		Name:            input.Name,
		Kind:            input.Kind,
		CollectsDeposit: collectsDeposit,
		IsActive:        utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&method).Error; err != nil {
		return nil, err
	}

	if err := config.RemoveRedisKey(paymentMethodListKey(businessId)); err != nil {
		return nil, err
	}
	return &method, nil
}

func UpdatePaymentMethod(ctx context.Context, id int, input *NewPaymentMethod) (*PaymentMethod, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	method, err := utils.FetchModel[PaymentMethod](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&method).Updates(map[string]interface{}{
		"Key":             input.Key,
		"Name":            input.Name,
		"Kind":            input.Kind,
		"CollectsDeposit": input.CollectsDeposit,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := config.RemoveRedisKey(paymentMethodListKey(businessId)); err != nil {
		return nil, err
	}
	return method, nil
}

func DeletePaymentMethod(ctx context.Context, id int) (*PaymentMethod, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[PaymentMethod](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}

	if err := config.RemoveRedisKey(paymentMethodListKey(businessId)); err != nil {
		return nil, err
	}
	return result, nil
}

func GetPaymentMethod(ctx context.Context, id int) (*PaymentMethod, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[PaymentMethod](ctx, businessId, id)
}

// GetPaymentMethods reads the tender type list, redis or db, caching the result.
func GetPaymentMethods(ctx context.Context) ([]*PaymentMethod, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var results []*PaymentMethod
	exists, err := config.GetRedisObject(paymentMethodListKey(businessId), &results)
	if err != nil {
		return nil, err
	}
	if exists {
		return results, nil
	}

	results, err = utils.FetchAllModels[PaymentMethod](ctx, businessId)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(paymentMethodListKey(businessId), &results, 0); err != nil {
		return nil, err
	}
	return results, nil
}
