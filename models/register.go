package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidRegisterState reports an open on an already-open register or a
// close on an already-closed one.
var ErrInvalidRegisterState = errors.New("invalid register state transition")

// Register is a physical cash drawer at a store. OpeningFloat is the cash
// amount counted into the drawer when it was last opened; DefaultFloat is the
// amount suggested when opening with no explicit float.
type Register struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"size:64;index;not null" json:"business_id"`
	StoreId      int             `gorm:"index;not null" json:"store_id"`
	Name         string          `gorm:"size:100;not null" json:"name" binding:"required"`
	IsOpen       bool            `gorm:"not null;default:false" json:"is_open"`
	OpeningFloat decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"opening_float"`
	DefaultFloat decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"default_float"`
	OpenedAt     *time.Time      `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRegister struct {
	StoreId      int             `json:"store_id" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	DefaultFloat decimal.Decimal `json:"default_float"`
}

func CreateRegister(ctx context.Context, input *NewRegister) (*Register, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[Store](ctx, businessId, input.StoreId); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Register](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	register := Register{
		BusinessId:   businessId,
		StoreId:      input.StoreId,
		Name:         input.Name,
		IsOpen:       false,
		DefaultFloat: input.DefaultFloat,
		IsActive:     utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&register).Error; err != nil {
		return nil, err
	}
	return &register, nil
}

func UpdateRegister(ctx context.Context, id int, input *NewRegister) (*Register, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[Register](ctx, businessId, id); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Register](ctx, businessId, "name", input.Name, id); err != nil {
		return nil, err
	}

	register, err := utils.FetchModel[Register](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&register).Updates(map[string]interface{}{
		"StoreId":      input.StoreId,
		"Name":         input.Name,
		"DefaultFloat": input.DefaultFloat,
	}).Error
	if err != nil {
		return nil, err
	}
	return register, nil
}

func GetRegister(ctx context.Context, id int) (*Register, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Register](ctx, businessId, id)
}

func GetRegisters(ctx context.Context) ([]*Register, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Register](ctx, businessId)
}

// OpenRegister transitions a closed register to open and records the opening
// float. A nil float falls back to the register's default float. The state
// change and its outbox row commit atomically; the event is published after
// commit by the dispatcher.
func OpenRegister(ctx context.Context, id int, openingFloat *decimal.Decimal) (*Register, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var register Register

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ?", businessId).
			First(&register, id).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		if register.IsOpen {
			return fmt.Errorf("register %d is already open: %w", id, ErrInvalidRegisterState)
		}

		float := register.DefaultFloat
		if openingFloat != nil {
			float = *openingFloat
		}

		now := time.Now()
		register.IsOpen = true
		register.OpeningFloat = float
		register.OpenedAt = &now
		register.ClosedAt = nil

		err = tx.Model(&register).Updates(map[string]interface{}{
			"IsOpen":       true,
			"OpeningFloat": float,
			"OpenedAt":     &now,
			"ClosedAt":     gorm.Expr("NULL"),
		}).Error
		if err != nil {
			return err
		}

		_, err = PublishRegisterEvent(ctx, tx, &register, RegisterEventActionOpened, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &register, nil
}

// CloseRegister transitions an open register to closed.
func CloseRegister(ctx context.Context, id int) (*Register, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var register Register

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ?", businessId).
			First(&register, id).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		if !register.IsOpen {
			return fmt.Errorf("register %d is already closed: %w", id, ErrInvalidRegisterState)
		}

		now := time.Now()
		register.IsOpen = false
		register.ClosedAt = &now
		// The float belongs to the session that just ended. The next open
		// either declares its own or falls back to the default.
		register.OpeningFloat = decimal.Zero

		err = tx.Model(&register).Updates(map[string]interface{}{
			"IsOpen":       false,
			"ClosedAt":     &now,
			"OpeningFloat": decimal.Zero,
		}).Error
		if err != nil {
			return err
		}

		_, err = PublishRegisterEvent(ctx, tx, &register, RegisterEventActionClosed, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &register, nil
}
