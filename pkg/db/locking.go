package db

import "gorm.io/gorm"

// RowLockSuffix returns the exclusive row-lock clause for the active
// dialect. SQLite has a single writer and no FOR UPDATE syntax, so the
// clause is omitted there.
func RowLockSuffix(conn *gorm.DB) string {
	switch conn.Dialector.Name() {
	case "sqlite", "sqlite3":
		return ""
	default:
		return " FOR UPDATE"
	}
}

// ClaimLockSuffix returns the work-claim clause used by batch scans:
// locked rows are skipped instead of waited on, so overlapping scans
// divide the work rather than serialize behind each other.
func ClaimLockSuffix(conn *gorm.DB) string {
	switch conn.Dialector.Name() {
	case "sqlite", "sqlite3":
		return ""
	default:
		return " FOR UPDATE SKIP LOCKED"
	}
}
