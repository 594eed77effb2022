package models

import "errors"

// ReportState is stored as a plain integer because its ordinal matters:
// the "latest report for a day" tie-break prefers the lowest state value,
// so an in-progress report always wins over closed snapshots.
type ReportState int

const (
	ReportStateOpen   ReportState = 0
	ReportStateClosed ReportState = 1
)

func (s ReportState) String() string {
	switch s {
	case ReportStateOpen:
		return "Open"
	case ReportStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type RegisterEventAction string

const (
	RegisterEventActionOpened RegisterEventAction = "O"
	RegisterEventActionClosed RegisterEventAction = "C"
)

func ParseRegisterEventAction(s string) (RegisterEventAction, error) {
	switch s {
	case "O":
		return RegisterEventActionOpened, nil
	case "C":
		return RegisterEventActionClosed, nil
	default:
		return "", errors.New("invalid register event action")
	}
}

type PaymentMethodKind string

const (
	PaymentMethodKindCash     PaymentMethodKind = "Cash"
	PaymentMethodKindCredit   PaymentMethodKind = "Credit"
	PaymentMethodKindDebit    PaymentMethodKind = "Debit"
	PaymentMethodKindGiftCard PaymentMethodKind = "GiftCard"
)

func ParsePaymentMethodKind(s string) (PaymentMethodKind, error) {
	switch s {
	case "Cash":
		return PaymentMethodKindCash, nil
	case "Credit":
		return PaymentMethodKindCredit, nil
	case "Debit":
		return PaymentMethodKindDebit, nil
	case "GiftCard":
		return PaymentMethodKindGiftCard, nil
	default:
		return "", errors.New("invalid payment method kind")
	}
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "A"
	UserRoleManager UserRole = "M"
	UserRoleCashier UserRole = "C"
)

func (r UserRole) Label() string {
	switch r {
	case UserRoleAdmin:
		return "Admin"
	case UserRoleManager:
		return "Manager"
	case UserRoleCashier:
		return "Cashier"
	default:
		return string(r)
	}
}

// Outbox publish states (dispatcher-side).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
