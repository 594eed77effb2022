package config

import (
	"os"
	"strings"
)

// CloseCreatesNewReportRow switches the register-close path from mutating the
// day's open report row in place (legacy behavior) to inserting a fresh closed
// snapshot row and retiring the live open row.
//
// Set via env:
// - REPORT_CLOSE_NEW_ROW=true
func CloseCreatesNewReportRow() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REPORT_CLOSE_NEW_ROW")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// StrictClosedReportImmutability rejects declared-value saves against a day
// whose latest report is already closed, instead of silently inserting a new
// version. Elevated-permission report edits must then go through the versions
// endpoint explicitly.
//
// Set via env:
// - STRICT_CLOSED_REPORT_IMMUTABLE=true
func StrictClosedReportImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_CLOSED_REPORT_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
