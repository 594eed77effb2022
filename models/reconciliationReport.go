package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationReport is one end-of-day declared-values row for a register.
// Identity is (business_id, register_id, date, version_timestamp):
// version_timestamp 0 marks the single live open row for the day, and every
// closed snapshot carries a non-zero time-of-day stamp. State stays an integer
// so the latest-report tie-break can order open rows before closed ones.
type ReconciliationReport struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;uniqueIndex:uq_report_version,priority:1" json:"business_id"`
	RegisterId int    `gorm:"not null;uniqueIndex:uq_report_version,priority:2" json:"register_id"`
	// Date is the business day truncated to midnight (in the business timezone).
	Date             time.Time    `gorm:"not null;index;uniqueIndex:uq_report_version,priority:3" json:"date"`
	Data             []byte       `gorm:"type:blob" json:"-"`
	State            ReportState  `gorm:"not null;default:0" json:"state"`
	OpenTimestamp    int64        `gorm:"not null;default:0" json:"open_timestamp"`
	VersionTimestamp int64        `gorm:"not null;default:0;uniqueIndex:uq_report_version,priority:4" json:"version_timestamp"`
	Declared         DeclaredData `gorm:"-" json:"declared"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// DeclaredEntry holds the counted amount for one tender type. CashDeposit is
// only present for tenders that collect a drawer deposit.
type DeclaredEntry struct {
	Declared    decimal.Decimal  `json:"declared"`
	CashDeposit *decimal.Decimal `json:"cash_deposit,omitempty"`
}

// DeclaredData maps payment method key to its counted entry.
type DeclaredData map[string]DeclaredEntry

// declaredEnvelope versions the stored blob so the layout can evolve without
// guessing at old rows.
type declaredEnvelope struct {
	V       int          `json:"v"`
	Methods DeclaredData `json:"methods"`
}

const declaredEnvelopeVersion = 1

func EncodeDeclaredData(data DeclaredData) ([]byte, error) {
	if data == nil {
		data = DeclaredData{}
	}
	return json.Marshal(declaredEnvelope{V: declaredEnvelopeVersion, Methods: data})
}

func DecodeDeclaredData(blob []byte) (DeclaredData, error) {
	if len(blob) == 0 {
		return DeclaredData{}, nil
	}
	var env declaredEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, err
	}
	if env.V != declaredEnvelopeVersion {
		return nil, fmt.Errorf("unsupported declared data version %d", env.V)
	}
	if env.Methods == nil {
		env.Methods = DeclaredData{}
	}
	return env.Methods, nil
}

// RawDeclaredForm is the shape posted by the reconciliation form. The UI nests
// each value under register id and date so the amounts survive partial form
// rebuilds, so a raw entry looks like
// declared[registerId][dateKey] rather than a flat number.
type RawDeclaredForm map[string]RawDeclaredEntry

type RawDeclaredEntry struct {
	Declared    map[string]map[string]decimal.Decimal `json:"declared"`
	CashDeposit map[string]map[string]decimal.Decimal `json:"cash_deposit,omitempty"`
}

// FlattenDeclaredForm strips the registerId/dateKey nesting, keeping only the
// values addressed to the given register and date. Methods with no value for
// that address flatten to zero.
func FlattenDeclaredForm(form RawDeclaredForm, registerId int, dateKey string) DeclaredData {
	regKey := fmt.Sprint(registerId)
	out := DeclaredData{}
	for methodKey, raw := range form {
		entry := DeclaredEntry{}
		if byDate, ok := raw.Declared[regKey]; ok {
			if v, ok := byDate[dateKey]; ok {
				entry.Declared = v
			}
		}
		if raw.CashDeposit != nil {
			if byDate, ok := raw.CashDeposit[regKey]; ok {
				if v, ok := byDate[dateKey]; ok {
					deposit := v
					entry.CashDeposit = &deposit
				}
			}
		}
		out[methodKey] = entry
	}
	return out
}
