package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RegisterEventRecord is the transactional outbox row for register lifecycle
// events. The record is written inside the caller's DB transaction; publishing
// to Pub/Sub happens after commit, via the outbox dispatcher.
type RegisterEventRecord struct {
	ID         int                 `gorm:"primary_key;index:idx_register_outbox,priority:3" json:"id"`
	BusinessId string              `gorm:"size:64;not null;index" json:"business_id"`
	RegisterId int                 `gorm:"index;not null" json:"register_id"`
	OccurredAt time.Time           `gorm:"index;not null" json:"occurred_at"`
	Action     RegisterEventAction `gorm:"type:enum('O','C')" json:"action"`
	Payload    []byte              `gorm:"type:blob" json:"payload"`
	// Dispatch metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_register_outbox,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_register_outbox,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	// Processing metadata (in-process worker / push consumer).
	IsProcessed      bool       `gorm:"index;not null" json:"is_processed"`
	LastProcessError *string    `gorm:"type:text" json:"last_process_error"`
	ProcessedAt      *time.Time `gorm:"index" json:"processed_at"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	// Actor attribution, taken from the request context at write time.
	CreatedById   int       `gorm:"not null;default:0" json:"created_by_id"`
	CreatedByName string    `gorm:"size:100" json:"created_by_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToRegisterMessage(record RegisterEventRecord) config.RegisterMessage {
	return config.RegisterMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		OccurredAt:    record.OccurredAt,
		RegisterId:    record.RegisterId,
		Action:        string(record.Action),
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

// PublishRegisterEvent writes the outbox row inside the caller's transaction.
// The payload is the register snapshot at the moment of the state change.
func PublishRegisterEvent(ctx context.Context, tx *gorm.DB, register *Register, action RegisterEventAction, occurredAt time.Time) (*RegisterEventRecord, error) {

	payload, err := json.Marshal(register)
	if err != nil {
		return nil, err
	}

	record := RegisterEventRecord{
		BusinessId:    register.BusinessId,
		RegisterId:    register.ID,
		OccurredAt:    occurredAt,
		Action:        action,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		IsProcessed:   false,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		record.CreatedById = userId
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok {
		record.CreatedByName = userName
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
