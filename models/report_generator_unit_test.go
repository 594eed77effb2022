package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestByStatePrefersOpen(t *testing.T) {
	open := &ReconciliationReport{ID: 1, State: ReportStateOpen}
	closedOld := &ReconciliationReport{ID: 2, State: ReportStateClosed, VersionTimestamp: 100}
	closedNew := &ReconciliationReport{ID: 3, State: ReportStateClosed, VersionTimestamp: 200}

	// Open wins no matter where it sits in the scan order.
	assert.Same(t, open, latestByState([]*ReconciliationReport{open, closedOld, closedNew}))
	assert.Same(t, open, latestByState([]*ReconciliationReport{closedNew, closedOld, open}))
	assert.Same(t, open, latestByState([]*ReconciliationReport{closedOld, open, closedNew}))

	// Only closed rows: first scanned wins.
	assert.Same(t, closedNew, latestByState([]*ReconciliationReport{closedNew, closedOld}))

	assert.Nil(t, latestByState(nil))
	assert.Nil(t, latestByState([]*ReconciliationReport{}))
}

func TestReportRangeLabel(t *testing.T) {
	open := time.Date(2024, 1, 10, 9, 1, 30, 0, time.Local).Unix()
	closed := time.Date(2024, 1, 10, 17, 45, 2, 0, time.Local).Unix()

	assert.Equal(t, "09:01:30 AM - 05:45:02 PM", reportRangeLabel(open, closed))
}

func TestTimeOfDayStampTruncatesToSecond(t *testing.T) {
	at := time.Date(2024, 1, 10, 14, 30, 45, 987654321, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 10, 14, 30, 45, 0, time.UTC).Unix(), timeOfDayStamp(at))
}

func TestDayBounds(t *testing.T) {
	at := time.Date(2024, 1, 10, 14, 30, 45, 0, time.Local)
	start, end := dayBounds(at)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.Local), end)
}

func TestDayBoundsNormalizesZoneOffsets(t *testing.T) {
	// A register event stamped in a fixed-offset zone and the same day
	// submitted as a locally parsed form date must share one bucket, so
	// the save path always finds the live row the open event created.
	yangon := time.FixedZone("UTC+0630", 6*3600+30*60)
	event := time.Date(2024, 1, 10, 9, 0, 0, 0, yangon)

	rowDate, _ := dayBounds(event)
	parsed, err := time.ParseInLocation("2006-01-02", rowDate.Format("2006-01-02"), time.Local)
	require.NoError(t, err)

	start, end := dayBounds(parsed)
	assert.True(t, rowDate.Equal(start))
	assert.True(t, !rowDate.Before(start) && rowDate.Before(end))
}

func TestDeclaredDataRoundTrip(t *testing.T) {
	deposit := decimal.RequireFromString("5.25")
	in := DeclaredData{
		"pos_cash":   {Declared: decimal.RequireFromString("10.50"), CashDeposit: &deposit},
		"pos_credit": {Declared: decimal.RequireFromString("99.99")},
	}

	blob, err := EncodeDeclaredData(in)
	require.NoError(t, err)

	out, err := DecodeDeclaredData(blob)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.True(t, in["pos_cash"].Declared.Equal(out["pos_cash"].Declared))
	require.NotNil(t, out["pos_cash"].CashDeposit)
	assert.True(t, deposit.Equal(*out["pos_cash"].CashDeposit))
	assert.True(t, in["pos_credit"].Declared.Equal(out["pos_credit"].Declared))
	assert.Nil(t, out["pos_credit"].CashDeposit)
}

func TestDecodeDeclaredDataEmptyBlob(t *testing.T) {
	out, err := DecodeDeclaredData(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeDeclaredDataUnsupportedVersion(t *testing.T) {
	_, err := DecodeDeclaredData([]byte(`{"v":99,"methods":{}}`))
	assert.Error(t, err)
}

func TestEncodeDeclaredDataNilMap(t *testing.T) {
	blob, err := EncodeDeclaredData(nil)
	require.NoError(t, err)

	out, err := DecodeDeclaredData(blob)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFlattenDeclaredForm(t *testing.T) {
	form := RawDeclaredForm{
		"pos_cash": {
			Declared: map[string]map[string]decimal.Decimal{
				"42": {"2024-01-10": decimal.RequireFromString("10")},
			},
			CashDeposit: map[string]map[string]decimal.Decimal{
				"42": {"2024-01-10": decimal.RequireFromString("2")},
			},
		},
		"pos_credit": {
			Declared: map[string]map[string]decimal.Decimal{
				"42": {"2024-01-10": decimal.RequireFromString("55")},
			},
		},
		// Addressed to another register: must flatten to zero for register 42.
		"pos_debit": {
			Declared: map[string]map[string]decimal.Decimal{
				"7": {"2024-01-10": decimal.RequireFromString("33")},
			},
		},
	}

	out := FlattenDeclaredForm(form, 42, "2024-01-10")
	require.Len(t, out, 3)

	assert.True(t, out["pos_cash"].Declared.Equal(decimal.RequireFromString("10")))
	require.NotNil(t, out["pos_cash"].CashDeposit)
	assert.True(t, out["pos_cash"].CashDeposit.Equal(decimal.RequireFromString("2")))

	assert.True(t, out["pos_credit"].Declared.Equal(decimal.RequireFromString("55")))
	assert.Nil(t, out["pos_credit"].CashDeposit)

	assert.True(t, out["pos_debit"].Declared.IsZero())
}
