package workflow

import (
	"context"
	"fmt"
	"strconv"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const registerEventHandlerName = "RegisterEvent"

// ProcessRegisterMessage applies one register lifecycle event to the day's
// reconciliation report: an open creates the day's live report row, a close
// stamps the live row closed. Runs inside one DB transaction with DB-backed
// idempotency, so at-least-once delivery is safe.
func ProcessRegisterMessage(ctx context.Context, logger *logrus.Logger, m config.RegisterMessage) error {
	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		messageId := strconv.Itoa(m.ID)

		skip, err := BeginIdempotency(tx.WithContext(ctx), m.BusinessId, registerEventHandlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		if err := processRegisterWorkflow(ctx, tx, logger, m); err != nil {
			_ = MarkIdempotencyFailed(tx.WithContext(ctx), m.BusinessId, registerEventHandlerName, messageId, err)
			return err
		}
		return MarkIdempotencySucceeded(tx.WithContext(ctx), m.BusinessId, registerEventHandlerName, messageId)
	})
}

func processRegisterWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, m config.RegisterMessage) error {
	gen := models.NewReportGenerator(tx, logger, models.NopNotifier{})
	date := m.OccurredAt

	action, err := models.ParseRegisterEventAction(m.Action)
	if err != nil {
		return fmt.Errorf("register event %d: %w", m.ID, err)
	}

	switch action {
	case models.RegisterEventActionOpened:
		// Create the day's live report row unless one already exists. The
		// unique (register, date, version 0) index blocks a duplicate insert;
		// CreateReport logs and swallows it, which keeps re-opens harmless.
		latest, err := gen.GetLatestReportForDay(ctx, date, m.RegisterId)
		if err != nil {
			return err
		}
		if latest == nil || latest.State == models.ReportStateClosed {
			gen.CreateReport(ctx, date, m.RegisterId, nil, models.ReportStateOpen, 0)
		}
		return nil

	case models.RegisterEventActionClosed:
		latest, err := gen.GetLatestReportForDay(ctx, date, m.RegisterId)
		if err != nil {
			return err
		}
		// Nothing to close when the day has no live report.
		if latest == nil || latest.State != models.ReportStateOpen {
			return nil
		}
		gen.UpdateReport(ctx, date, m.RegisterId, latest.Declared, models.ReportStateClosed, 0)
		return nil
	}
	return nil
}
