package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"gorm.io/gorm"
)

type Store struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Address    string    `gorm:"type:text" json:"address"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStore struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

func createDefaultStore(tx *gorm.DB, ctx context.Context, businessId string) (*Store, error) {

	store := Store{
		BusinessId: businessId,
		Name:       "Main Store",
		IsActive:   utils.NewTrue(),
	}

	if err := tx.WithContext(ctx).Create(&store).Error; err != nil {
		return nil, err
	}

	return &store, nil
}

func CreateStore(ctx context.Context, input *NewStore) (*Store, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Store](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	store := Store{
		BusinessId: businessId,
		Name:       input.Name,
		Address:    input.Address,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func GetStore(ctx context.Context, id int) (*Store, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Store](ctx, businessId, id)
}

func GetStores(ctx context.Context) ([]*Store, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Store](ctx, businessId)
}
