package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// timeLabelLayout renders a timestamp as a 12-hour clock reading,
// e.g. "03:04:05 PM".
const timeLabelLayout = "03:04:05 PM"

// ErrClosedReportImmutable is returned by SaveReport in strict mode when the
// day's latest report is already closed.
var ErrClosedReportImmutable = errors.New("latest report for this day is closed")

// Notifier receives user-facing status messages emitted while saving declared
// values. The HTTP layer collects them into the response; background workers
// use NopNotifier.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, message string) {}

// ReportGenerator reads and writes end-of-day reconciliation reports. All
// collaborators are injected so tests can pin the clock and capture
// notifications.
type ReportGenerator struct {
	db       *gorm.DB
	logger   *logrus.Logger
	now      func() time.Time
	notifier Notifier
}

type ReportGeneratorOption func(*ReportGenerator)

// WithClock overrides the generator's clock.
func WithClock(now func() time.Time) ReportGeneratorOption {
	return func(g *ReportGenerator) {
		g.now = now
	}
}

func NewReportGenerator(db *gorm.DB, logger *logrus.Logger, notifier Notifier, opts ...ReportGeneratorOption) *ReportGenerator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	g := &ReportGenerator{
		db:       db,
		logger:   logger,
		now:      time.Now,
		notifier: notifier,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// timeOfDayStamp truncates t to whole seconds. Closed report versions are
// keyed by this stamp.
func timeOfDayStamp(t time.Time) int64 {
	return t.Truncate(time.Second).Unix()
}

// reportRangeLabel renders the open-to-close span of a closed report,
// e.g. "09:01:30 AM - 05:45:02 PM".
func reportRangeLabel(openTimestamp int64, versionTimestamp int64) string {
	open := time.Unix(openTimestamp, 0).Format(timeLabelLayout)
	closed := time.Unix(versionTimestamp, 0).Format(timeLabelLayout)
	return open + " - " + closed
}

// latestByState picks the row with the lowest state ordinal, so an in-progress
// open report beats any closed snapshot. Ties keep the first row scanned.
func latestByState(rows []*ReconciliationReport) *ReconciliationReport {
	var latest *ReconciliationReport
	for _, row := range rows {
		if latest == nil || row.State < latest.State {
			latest = row
		}
	}
	return latest
}

// dayBounds returns the half-open [midnight, next midnight) range of the
// business day containing date. The instant is converted to server local time
// first, so an event timestamp carrying a zone offset and a form date parsed
// locally always bucket into the same day and produce the same stored Date.
func dayBounds(date time.Time) (time.Time, time.Time) {
	local := date.In(time.Local)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
	return start, start.AddDate(0, 0, 1)
}

func (g *ReportGenerator) businessId(ctx context.Context) (string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errors.New("business id is required")
	}
	return businessId, nil
}

// ReportExists reports whether any row exists for the register on that day.
func (g *ReportGenerator) ReportExists(ctx context.Context, date time.Time, registerId int) (bool, error) {
	businessId, err := g.businessId(ctx)
	if err != nil {
		return false, err
	}

	start, end := dayBounds(date)
	var count int64
	err = g.db.WithContext(ctx).Model(&ReconciliationReport{}).
		Where("business_id = ? AND register_id = ? AND date >= ? AND date < ?", businessId, registerId, start, end).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetLatestReportForDay returns the day's most relevant report: the open row
// if one exists, otherwise one of the closed snapshots. Nil when the day has
// no rows at all.
func (g *ReportGenerator) GetLatestReportForDay(ctx context.Context, date time.Time, registerId int) (*ReconciliationReport, error) {
	businessId, err := g.businessId(ctx)
	if err != nil {
		return nil, err
	}

	start, end := dayBounds(date)
	var rows []*ReconciliationReport
	err = g.db.WithContext(ctx).Model(&ReconciliationReport{}).
		Where("business_id = ? AND register_id = ? AND date >= ? AND date < ?", businessId, registerId, start, end).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	latest := latestByState(rows)
	if latest == nil {
		return nil, nil
	}
	declared, err := DecodeDeclaredData(latest.Data)
	if err != nil {
		return nil, err
	}
	latest.Declared = declared
	return latest, nil
}

// GetReportsByDay lists the day's versioned (closed) reports keyed by version
// timestamp, each labelled with its open-to-close time range. Nil when the day
// has no closed versions.
func (g *ReportGenerator) GetReportsByDay(ctx context.Context, date time.Time, registerId int) (map[int64]string, error) {
	businessId, err := g.businessId(ctx)
	if err != nil {
		return nil, err
	}

	start, end := dayBounds(date)
	var rows []*ReconciliationReport
	err = g.db.WithContext(ctx).Model(&ReconciliationReport{}).
		Where("business_id = ? AND register_id = ? AND date >= ? AND date < ?", businessId, registerId, start, end).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	reports := map[int64]string{}
	for _, row := range rows {
		if row.VersionTimestamp != 0 {
			reports[row.VersionTimestamp] = reportRangeLabel(row.OpenTimestamp, row.VersionTimestamp)
		}
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return reports, nil
}

// GetReportsByVersionTimestamp fetches one report by its exact version stamp.
// Nil when no such version exists.
func (g *ReportGenerator) GetReportsByVersionTimestamp(ctx context.Context, versionTimestamp int64, registerId int) (*ReconciliationReport, error) {
	businessId, err := g.businessId(ctx)
	if err != nil {
		return nil, err
	}

	var row ReconciliationReport
	err = g.db.WithContext(ctx).Model(&ReconciliationReport{}).
		Where("business_id = ? AND register_id = ? AND version_timestamp = ?", businessId, registerId, versionTimestamp).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	declared, err := DecodeDeclaredData(row.Data)
	if err != nil {
		return nil, err
	}
	row.Declared = declared
	return &row, nil
}

// GetClosedReports returns every closed snapshot for the day, decoded, oldest
// version first.
func (g *ReportGenerator) GetClosedReports(ctx context.Context, date time.Time, registerId int) ([]*ReconciliationReport, error) {
	businessId, err := g.businessId(ctx)
	if err != nil {
		return nil, err
	}

	start, end := dayBounds(date)
	var rows []*ReconciliationReport
	err = g.db.WithContext(ctx).Model(&ReconciliationReport{}).
		Where("business_id = ? AND register_id = ? AND date >= ? AND date < ? AND state = ?",
			businessId, registerId, start, end, ReportStateClosed).
		Order("version_timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		declared, err := DecodeDeclaredData(row.Data)
		if err != nil {
			return nil, err
		}
		row.Declared = declared
	}
	return rows, nil
}

// GetReportVersions maps each closed version stamp to its clock label.
func (g *ReportGenerator) GetReportVersions(ctx context.Context, date time.Time, registerId int) (map[int64]string, error) {
	rows, err := g.GetClosedReports(ctx, date, registerId)
	if err != nil {
		return nil, err
	}

	versions := map[int64]string{}
	for _, row := range rows {
		versions[row.VersionTimestamp] = time.Unix(row.VersionTimestamp, 0).Format(timeLabelLayout)
	}
	return versions, nil
}

// CreateReport inserts a new report row. A closed insert with no explicit
// version stamp gets one from the clock. Storage errors are logged and
// swallowed to false so form submission flows never abort on a report write.
func (g *ReportGenerator) CreateReport(ctx context.Context, date time.Time, registerId int, declared DeclaredData, state ReportState, versionTimestamp int64) bool {
	businessId, err := g.businessId(ctx)
	if err != nil {
		config.LogError(g.logger, "models", "CreateReport", "businessId", registerId, err)
		return false
	}

	blob, err := EncodeDeclaredData(declared)
	if err != nil {
		config.LogError(g.logger, "models", "CreateReport", "encode", registerId, err)
		return false
	}

	openTimestamp := timeOfDayStamp(g.now())
	if state == ReportStateClosed && versionTimestamp == 0 {
		versionTimestamp = timeOfDayStamp(g.now())
	}

	start, _ := dayBounds(date)
	row := ReconciliationReport{
		BusinessId:       businessId,
		RegisterId:       registerId,
		Date:             start,
		Data:             blob,
		State:            state,
		OpenTimestamp:    openTimestamp,
		VersionTimestamp: versionTimestamp,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		config.LogError(g.logger, "models", "CreateReport", "insert", registerId, err)
		return false
	}
	return true
}

// UpdateReport writes declared data onto the day's live open row (the
// version_timestamp = 0 row). Closing flips the state and stamps a fresh
// version; with CloseCreatesNewReportRow set, closing instead inserts a
// closed snapshot and removes the live row, preserving every prior version.
// Storage errors are logged and swallowed to false.
func (g *ReportGenerator) UpdateReport(ctx context.Context, date time.Time, registerId int, declared DeclaredData, state ReportState, versionTimestamp int64) bool {
	businessId, err := g.businessId(ctx)
	if err != nil {
		config.LogError(g.logger, "models", "UpdateReport", "businessId", registerId, err)
		return false
	}

	blob, err := EncodeDeclaredData(declared)
	if err != nil {
		config.LogError(g.logger, "models", "UpdateReport", "encode", registerId, err)
		return false
	}

	start, end := dayBounds(date)
	liveRow := g.db.WithContext(ctx).Model(&ReconciliationReport{}).
		Where("business_id = ? AND register_id = ? AND date >= ? AND date < ? AND version_timestamp = 0",
			businessId, registerId, start, end)

	if state == ReportStateClosed {
		if versionTimestamp == 0 {
			versionTimestamp = timeOfDayStamp(g.now())
		}

		if config.CloseCreatesNewReportRow() {
			err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var live ReconciliationReport
				err := tx.Where("business_id = ? AND register_id = ? AND date >= ? AND date < ? AND version_timestamp = 0",
					businessId, registerId, start, end).
					Take(&live).Error
				if err != nil {
					return err
				}

				snapshot := ReconciliationReport{
					BusinessId:       businessId,
					RegisterId:       registerId,
					Date:             live.Date,
					Data:             blob,
					State:            ReportStateClosed,
					OpenTimestamp:    live.OpenTimestamp,
					VersionTimestamp: versionTimestamp,
				}
				if err := tx.Create(&snapshot).Error; err != nil {
					return err
				}
				return tx.Delete(&ReconciliationReport{}, live.ID).Error
			})
			if err != nil {
				config.LogError(g.logger, "models", "UpdateReport", "closeNewRow", registerId, err)
				return false
			}
			return true
		}

		err = liveRow.Updates(map[string]interface{}{
			"data":              blob,
			"state":             ReportStateClosed,
			"version_timestamp": versionTimestamp,
		}).Error
	} else {
		err = liveRow.Updates(map[string]interface{}{
			"data": blob,
		}).Error
	}
	if err != nil {
		config.LogError(g.logger, "models", "UpdateReport", "update", registerId, err)
		return false
	}
	return true
}

// SaveReport persists the declared values posted from the reconciliation form.
// It flattens the form's register/date nesting, decides insert versus update
// from what the day already holds, and closes the report when the register is
// closed. The redis lock narrows the read-then-write race between two staff
// saving the same day at once; when the lock cannot be obtained the save
// proceeds best-effort, matching the historical last-write-wins behavior.
func (g *ReportGenerator) SaveReport(ctx context.Context, register *Register, date time.Time, form RawDeclaredForm) error {
	if register == nil {
		return errors.New("register is required")
	}

	dateKey := date.Format("2006-01-02")
	declared := FlattenDeclaredForm(form, register.ID, dateKey)

	lockKey := fmt.Sprintf("ReportSave:%s:%d:%s", register.BusinessId, register.ID, dateKey)
	lock, err := utils.ObtainRedisLock(ctx, lockKey, 10*time.Second)
	if err != nil && err != redislock.ErrNotObtained {
		return err
	}
	if lock != nil {
		defer lock.Release(context.Background())
	}

	state := ReportStateOpen
	versionTimestamp := int64(0)
	if !register.IsOpen {
		state = ReportStateClosed
		versionTimestamp = timeOfDayStamp(g.now())
	}

	exists, err := g.ReportExists(ctx, date, register.ID)
	if err != nil {
		return err
	}
	latest, err := g.GetLatestReportForDay(ctx, date, register.ID)
	if err != nil {
		return err
	}

	latestIsOpen := latest == nil || latest.State == ReportStateOpen
	if !latestIsOpen && config.StrictClosedReportImmutability() {
		return ErrClosedReportImmutable
	}

	if exists && latestIsOpen {
		g.UpdateReport(ctx, date, register.ID, declared, state, versionTimestamp)
	} else {
		g.CreateReport(ctx, date, register.ID, declared, state, versionTimestamp)
	}

	g.notifier.Notify(ctx, fmt.Sprintf("Successfully saved the declared values for register %s.", register.Name))
	return nil
}
