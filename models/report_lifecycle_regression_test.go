package models_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "pos_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

func setupTenant(t *testing.T, ctx context.Context, name string) (context.Context, *models.Register) {
	t.Helper()
	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  name,
		Email: strings.ToLower(strings.ReplaceAll(name, " ", "")) + "@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())

	register, err := models.CreateRegister(ctx, &models.NewRegister{
		StoreId:      biz.PrimaryStoreId,
		Name:         "Front Register",
		DefaultFloat: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("CreateRegister: %v", err)
	}
	return ctx, register
}

func cashForm(registerId int, dateKey string, declared string, deposit string) models.RawDeclaredForm {
	regKey := fmt.Sprint(registerId)
	return models.RawDeclaredForm{
		"pos_cash": {
			Declared: map[string]map[string]decimal.Decimal{
				regKey: {dateKey: decimal.RequireFromString(declared)},
			},
			CashDeposit: map[string]map[string]decimal.Decimal{
				regKey: {dateKey: decimal.RequireFromString(deposit)},
			},
		},
	}
}

// latestOutboxRecord fetches the most recent register event row for a register.
func latestOutboxRecord(t *testing.T, ctx context.Context, registerId int, action models.RegisterEventAction) models.RegisterEventRecord {
	t.Helper()
	db := config.GetDB()
	var rec models.RegisterEventRecord
	if err := db.WithContext(ctx).
		Where("register_id = ? AND action = ?", registerId, action).
		Order("id DESC").
		First(&rec).Error; err != nil {
		t.Fatalf("expected outbox record for register %d action %s: %v", registerId, action, err)
	}
	return rec
}

func processOutboxRecord(t *testing.T, rec models.RegisterEventRecord) {
	t.Helper()
	procCtx := utils.SetBusinessIdInContext(context.Background(), rec.BusinessId)
	procCtx = utils.SetUserIdInContext(procCtx, 0)
	procCtx = utils.SetUserNameInContext(procCtx, "System")
	procCtx = utils.SetCorrelationIdInContext(procCtx, rec.CorrelationId)
	if err := workflow.ProcessRegisterMessage(procCtx, logrus.New(), models.ConvertToRegisterMessage(rec)); err != nil {
		t.Fatalf("ProcessRegisterMessage: %v", err)
	}
}

// Full register day: open, save declared values, close, save again after close.
func TestReportLifecycle_OpenSaveCloseResave(t *testing.T) {
	ctx := setupIntegration(t)
	ctx, register := setupTenant(t, ctx, "Lifecycle Co")

	logger := logrus.New()
	gen := models.NewReportGenerator(config.GetDB(), logger, models.NopNotifier{})

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dateKey := today.Format("2006-01-02")

	// No rows yet: every getter reports absence, not an error.
	latest, err := gen.GetLatestReportForDay(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay (empty): %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil latest report before any row, got %+v", latest)
	}
	byDay, err := gen.GetReportsByDay(ctx, today, register.ID)
	if err != nil || byDay != nil {
		t.Fatalf("expected nil day listing before any row, got %v, err %v", byDay, err)
	}
	byVersion, err := gen.GetReportsByVersionTimestamp(ctx, 12345, register.ID)
	if err != nil || byVersion != nil {
		t.Fatalf("expected nil version lookup before any row, got %v, err %v", byVersion, err)
	}

	// Open the register; the committed outbox row drives report creation.
	opened, err := models.OpenRegister(ctx, register.ID, nil)
	if err != nil {
		t.Fatalf("OpenRegister: %v", err)
	}
	if !opened.IsOpen {
		t.Fatalf("register should be open")
	}
	if !opened.OpeningFloat.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("opening float should fall back to default float, got %s", opened.OpeningFloat)
	}
	if _, err := models.OpenRegister(ctx, register.ID, nil); err == nil {
		t.Fatalf("expected invalid state error on double open")
	}

	processOutboxRecord(t, latestOutboxRecord(t, ctx, register.ID, models.RegisterEventActionOpened))

	latest, err = gen.GetLatestReportForDay(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay after open: %v", err)
	}
	if latest == nil || latest.State != models.ReportStateOpen || latest.VersionTimestamp != 0 {
		t.Fatalf("expected live open report after register open, got %+v", latest)
	}

	// Save while open: updates the live row in place.
	if err := gen.SaveReport(ctx, opened, today, cashForm(register.ID, dateKey, "10", "2")); err != nil {
		t.Fatalf("SaveReport (open, first): %v", err)
	}
	if err := gen.SaveReport(ctx, opened, today, cashForm(register.ID, dateKey, "20", "2")); err != nil {
		t.Fatalf("SaveReport (open, second): %v", err)
	}

	var dayRows []*models.ReconciliationReport
	if err := config.GetDB().WithContext(ctx).
		Where("register_id = ?", register.ID).Find(&dayRows).Error; err != nil {
		t.Fatalf("raw report rows: %v", err)
	}
	if len(dayRows) != 1 {
		t.Fatalf("saving an open day twice must keep one row, got %d", len(dayRows))
	}
	latest, err = gen.GetLatestReportForDay(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay after saves: %v", err)
	}
	if got := latest.Declared["pos_cash"].Declared; !got.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("second save must win, declared = %s", got)
	}

	// Close the register; the close event stamps the live row closed.
	closed, err := models.CloseRegister(ctx, register.ID)
	if err != nil {
		t.Fatalf("CloseRegister: %v", err)
	}
	if closed.IsOpen {
		t.Fatalf("register should be closed")
	}
	if !closed.OpeningFloat.IsZero() {
		t.Fatalf("closing must clear the opening float, got %s", closed.OpeningFloat)
	}
	var reloaded models.Register
	if err := config.GetDB().WithContext(ctx).First(&reloaded, register.ID).Error; err != nil {
		t.Fatalf("reload register: %v", err)
	}
	if !reloaded.OpeningFloat.IsZero() {
		t.Fatalf("opening float column must be cleared on close, got %s", reloaded.OpeningFloat)
	}
	if _, err := models.CloseRegister(ctx, register.ID); err == nil {
		t.Fatalf("expected invalid state error on double close")
	}

	processOutboxRecord(t, latestOutboxRecord(t, ctx, register.ID, models.RegisterEventActionClosed))

	latest, err = gen.GetLatestReportForDay(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay after close: %v", err)
	}
	if latest.State != models.ReportStateClosed || latest.VersionTimestamp == 0 {
		t.Fatalf("closing must stamp a non-zero version, got %+v", latest)
	}
	firstVersion := latest.VersionTimestamp

	versions, err := gen.GetReportVersions(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetReportVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected exactly 1 closed version, got %d", len(versions))
	}
	if _, ok := versions[firstVersion]; !ok {
		t.Fatalf("versions must list the close stamp %d, got %v", firstVersion, versions)
	}

	// Save against the closed day: inserts a fresh closed snapshot. Pin the
	// clock past the first close so the version stamps cannot collide.
	laterClock := func() time.Time { return time.Unix(firstVersion, 0).Add(30 * time.Minute) }
	genLater := models.NewReportGenerator(config.GetDB(), logger, models.NopNotifier{}, models.WithClock(laterClock))
	if err := genLater.SaveReport(ctx, closed, today, cashForm(register.ID, dateKey, "22", "2")); err != nil {
		t.Fatalf("SaveReport (closed day): %v", err)
	}

	versions, err = gen.GetReportVersions(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetReportVersions after reclose: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 closed versions after re-save, got %d: %v", len(versions), versions)
	}

	byDay, err = gen.GetReportsByDay(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetReportsByDay: %v", err)
	}
	if len(byDay) != 2 {
		t.Fatalf("day listing must show the 2 versioned rows, got %v", byDay)
	}
	for vt, label := range byDay {
		if !strings.Contains(label, " - ") {
			t.Fatalf("label for %d should be a time range, got %q", vt, label)
		}
	}

	report, err := gen.GetReportsByVersionTimestamp(ctx, firstVersion, register.ID)
	if err != nil {
		t.Fatalf("GetReportsByVersionTimestamp: %v", err)
	}
	if report == nil || !report.Declared["pos_cash"].Declared.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("first closed snapshot must keep the values it closed with, got %+v", report)
	}
}

// Three rows on one day: one open, two closed. Versions lists the closed pair,
// latest is the open row, and reads are stable across repeated calls.
func TestReportVersions_OpenRowWins(t *testing.T) {
	ctx := setupIntegration(t)
	ctx, register := setupTenant(t, ctx, "Versions Co")

	gen := models.NewReportGenerator(config.GetDB(), logrus.New(), models.NopNotifier{})
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	declared := models.DeclaredData{"pos_cash": {Declared: decimal.NewFromInt(10)}}
	vt1 := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC).Unix()
	vt2 := time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC).Unix()

	if ok := gen.CreateReport(ctx, day, register.ID, declared, models.ReportStateClosed, vt1); !ok {
		t.Fatalf("CreateReport closed v1 failed")
	}
	if ok := gen.CreateReport(ctx, day, register.ID, declared, models.ReportStateClosed, vt2); !ok {
		t.Fatalf("CreateReport closed v2 failed")
	}
	if ok := gen.CreateReport(ctx, day, register.ID, declared, models.ReportStateOpen, 0); !ok {
		t.Fatalf("CreateReport open failed")
	}

	exists, err := gen.ReportExists(ctx, day, register.ID)
	if err != nil || !exists {
		t.Fatalf("ReportExists should be true, got %v err %v", exists, err)
	}

	versions, err := gen.GetReportVersions(ctx, day, register.ID)
	if err != nil {
		t.Fatalf("GetReportVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 closed versions, got %v", versions)
	}
	if _, ok := versions[vt1]; !ok {
		t.Fatalf("missing version %d in %v", vt1, versions)
	}
	if _, ok := versions[vt2]; !ok {
		t.Fatalf("missing version %d in %v", vt2, versions)
	}

	latest, err := gen.GetLatestReportForDay(ctx, day, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay: %v", err)
	}
	if latest == nil || latest.State != models.ReportStateOpen {
		t.Fatalf("open row must win over closed snapshots, got %+v", latest)
	}

	// Same arguments, no intervening write: identical result.
	again, err := gen.GetLatestReportForDay(ctx, day, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay (repeat): %v", err)
	}
	if again.ID != latest.ID || again.State != latest.State || again.VersionTimestamp != latest.VersionTimestamp {
		t.Fatalf("repeated read changed: %+v vs %+v", latest, again)
	}
}

// Update round-trip: the stored blob is byte-for-byte what the encoder emits.
func TestUpdateReport_BlobRoundTrip(t *testing.T) {
	ctx := setupIntegration(t)
	ctx, register := setupTenant(t, ctx, "Roundtrip Co")

	gen := models.NewReportGenerator(config.GetDB(), logrus.New(), models.NopNotifier{})
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	first := models.DeclaredData{"pos_cash": {Declared: decimal.NewFromInt(10)}}
	if ok := gen.CreateReport(ctx, day, register.ID, first, models.ReportStateOpen, 0); !ok {
		t.Fatalf("CreateReport failed")
	}

	deposit := decimal.RequireFromString("0")
	second := models.DeclaredData{"pos_cash": {Declared: decimal.NewFromInt(20), CashDeposit: &deposit}}
	if ok := gen.UpdateReport(ctx, day, register.ID, second, models.ReportStateOpen, 0); !ok {
		t.Fatalf("UpdateReport failed")
	}

	want, err := models.EncodeDeclaredData(second)
	if err != nil {
		t.Fatalf("EncodeDeclaredData: %v", err)
	}

	var row models.ReconciliationReport
	if err := config.GetDB().WithContext(ctx).
		Where("register_id = ? AND version_timestamp = 0", register.ID).
		Take(&row).Error; err != nil {
		t.Fatalf("raw row read: %v", err)
	}
	if !bytes.Equal(row.Data, want) {
		t.Fatalf("stored blob differs from encoding:\n got %s\nwant %s", row.Data, want)
	}

	decoded, err := models.DecodeDeclaredData(row.Data)
	if err != nil {
		t.Fatalf("DecodeDeclaredData: %v", err)
	}
	if !decoded["pos_cash"].Declared.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("update must win, declared = %s", decoded["pos_cash"].Declared)
	}
}

// Saving for a closed register produces a closed row with a non-zero version.
func TestSaveReport_ClosedRegisterClosesReport(t *testing.T) {
	ctx := setupIntegration(t)
	ctx, register := setupTenant(t, ctx, "Closed Save Co")

	gen := models.NewReportGenerator(config.GetDB(), logrus.New(), models.NopNotifier{})
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dateKey := today.Format("2006-01-02")

	// register was never opened: IsOpen is false
	if err := gen.SaveReport(ctx, register, today, cashForm(register.ID, dateKey, "15", "5")); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	latest, err := gen.GetLatestReportForDay(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay: %v", err)
	}
	if latest == nil || latest.State != models.ReportStateClosed || latest.VersionTimestamp == 0 {
		t.Fatalf("save against closed register must produce a closed versioned row, got %+v", latest)
	}
	if !latest.Declared["pos_cash"].Declared.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("declared value lost, got %s", latest.Declared["pos_cash"].Declared)
	}
}

// With REPORT_CLOSE_NEW_ROW set, closing inserts a fresh closed snapshot and
// retires the live row, so every prior close of the day stays readable.
func TestCloseCreatesNewRow_PreservesVersions(t *testing.T) {
	ctx := setupIntegration(t)
	t.Setenv("REPORT_CLOSE_NEW_ROW", "1")
	ctx, register := setupTenant(t, ctx, "Snapshot Close Co")

	gen := models.NewReportGenerator(config.GetDB(), logrus.New(), models.NopNotifier{})
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dateKey := today.Format("2006-01-02")

	// First session: open, save, close.
	opened, err := models.OpenRegister(ctx, register.ID, nil)
	if err != nil {
		t.Fatalf("OpenRegister: %v", err)
	}
	processOutboxRecord(t, latestOutboxRecord(t, ctx, register.ID, models.RegisterEventActionOpened))

	live, err := gen.GetLatestReportForDay(ctx, today, register.ID)
	if err != nil || live == nil {
		t.Fatalf("expected live report after open, got %v err %v", live, err)
	}
	liveOpenStamp := live.OpenTimestamp

	if err := gen.SaveReport(ctx, opened, today, cashForm(register.ID, dateKey, "10", "2")); err != nil {
		t.Fatalf("SaveReport (first session): %v", err)
	}
	if _, err := models.CloseRegister(ctx, register.ID); err != nil {
		t.Fatalf("CloseRegister (first session): %v", err)
	}
	processOutboxRecord(t, latestOutboxRecord(t, ctx, register.ID, models.RegisterEventActionClosed))

	var rows []*models.ReconciliationReport
	if err := config.GetDB().WithContext(ctx).
		Where("register_id = ?", register.ID).Find(&rows).Error; err != nil {
		t.Fatalf("raw report rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("snapshot close must leave one row, got %d", len(rows))
	}
	snapshot := rows[0]
	if snapshot.State != models.ReportStateClosed || snapshot.VersionTimestamp == 0 {
		t.Fatalf("expected a closed versioned snapshot, got %+v", snapshot)
	}
	if snapshot.OpenTimestamp != liveOpenStamp {
		t.Fatalf("snapshot must keep the live row's open stamp, got %d want %d", snapshot.OpenTimestamp, liveOpenStamp)
	}
	firstVersion := snapshot.VersionTimestamp

	// Second session on the same day. The close stamp is truncated to the
	// second, so step past it before closing again.
	if _, err := models.OpenRegister(ctx, register.ID, nil); err != nil {
		t.Fatalf("OpenRegister (second session): %v", err)
	}
	processOutboxRecord(t, latestOutboxRecord(t, ctx, register.ID, models.RegisterEventActionOpened))
	if err := gen.SaveReport(ctx, opened, today, cashForm(register.ID, dateKey, "20", "5")); err != nil {
		t.Fatalf("SaveReport (second session): %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := models.CloseRegister(ctx, register.ID); err != nil {
		t.Fatalf("CloseRegister (second session): %v", err)
	}
	processOutboxRecord(t, latestOutboxRecord(t, ctx, register.ID, models.RegisterEventActionClosed))

	versions, err := gen.GetReportVersions(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetReportVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("both closed sessions must survive as versions, got %v", versions)
	}

	var liveCount int64
	if err := config.GetDB().WithContext(ctx).Model(&models.ReconciliationReport{}).
		Where("register_id = ? AND version_timestamp = 0", register.ID).
		Count(&liveCount).Error; err != nil {
		t.Fatalf("live row count: %v", err)
	}
	if liveCount != 0 {
		t.Fatalf("no live row may remain after snapshot close, got %d", liveCount)
	}

	first, err := gen.GetReportsByVersionTimestamp(ctx, firstVersion, register.ID)
	if err != nil {
		t.Fatalf("GetReportsByVersionTimestamp: %v", err)
	}
	if first == nil || !first.Declared["pos_cash"].Declared.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("first snapshot must keep the values it closed with, got %+v", first)
	}
}

// With STRICT_CLOSED_REPORT_IMMUTABLE set, a save against a day whose latest
// report is closed is rejected instead of inserting a new version.
func TestSaveReport_StrictClosedReportImmutable(t *testing.T) {
	ctx := setupIntegration(t)
	t.Setenv("STRICT_CLOSED_REPORT_IMMUTABLE", "1")
	ctx, register := setupTenant(t, ctx, "Strict Close Co")

	gen := models.NewReportGenerator(config.GetDB(), logrus.New(), models.NopNotifier{})
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dateKey := today.Format("2006-01-02")

	// The register was never opened, so the first save lands as a closed row.
	if err := gen.SaveReport(ctx, register, today, cashForm(register.ID, dateKey, "15", "5")); err != nil {
		t.Fatalf("SaveReport (first): %v", err)
	}

	err := gen.SaveReport(ctx, register, today, cashForm(register.ID, dateKey, "99", "0"))
	if !errors.Is(err, models.ErrClosedReportImmutable) {
		t.Fatalf("expected ErrClosedReportImmutable, got %v", err)
	}

	versions, err := gen.GetReportVersions(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetReportVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("rejected save must not add a version, got %v", versions)
	}
	latest, err := gen.GetLatestReportForDay(ctx, today, register.ID)
	if err != nil {
		t.Fatalf("GetLatestReportForDay: %v", err)
	}
	if !latest.Declared["pos_cash"].Declared.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("rejected save must not touch the closed values, got %s", latest.Declared["pos_cash"].Declared)
	}
}

// SaveReport emits the success notice even when nothing rejected the save.
func TestSaveReport_NotifiesSuccess(t *testing.T) {
	ctx := setupIntegration(t)
	ctx, register := setupTenant(t, ctx, "Notify Co")

	notifier := &captureNotifier{}
	gen := models.NewReportGenerator(config.GetDB(), logrus.New(), notifier)
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if err := gen.SaveReport(ctx, register, today, models.RawDeclaredForm{}); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], register.Name) {
		t.Fatalf("expected one success notice naming the register, got %v", notifier.messages)
	}
}

type captureNotifier struct {
	messages []string
}

func (n *captureNotifier) Notify(ctx context.Context, message string) {
	n.messages = append(n.messages, message)
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=pos_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
