// Command requeue_confirms moves dead-lettered payment confirmations
// back into the retry queue after manual reconciliation. Failed rows
// are listed first; pass -apply to actually flip them.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		dbPath    = flag.String("db", "./data/courtflow.db", "path to sqlite db")
		paymentID = flag.String("payment", "", "requeue only this payment id")
		apply     = flag.Bool("apply", false, "apply changes instead of listing")
	)
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath+"?_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	query := `SELECT id, payment_id, booking_id, session_id, retry_count, last_error
	          FROM payment_confirm_queue WHERE status = 'failed'`
	args := []any{}
	if *paymentID != "" {
		query += " AND payment_id = ?"
		args = append(args, *paymentID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("list failed tasks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var (
			id         int64
			payID      string
			bookingID  string
			sessionID  string
			retryCount int
			lastError  sql.NullString
		)
		if err := rows.Scan(&id, &payID, &bookingID, &sessionID, &retryCount, &lastError); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		logger.Info().
			Int64("task_id", id).
			Str("payment_id", payID).
			Str("booking_id", bookingID).
			Str("session_id", sessionID).
			Int("retry_count", retryCount).
			Str("last_error", lastError.String).
			Msg("failed confirmation")
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(ids) == 0 {
		logger.Info().Msg("no failed confirmations")
		return nil
	}
	if !*apply {
		logger.Info().Int("count", len(ids)).Msg("dry run, pass -apply to requeue")
		return nil
	}

	now := time.Now().UTC()
	for _, id := range ids {
		_, err := db.Exec(`UPDATE payment_confirm_queue
		                   SET status = 'retry', retry_count = 0, next_retry_at = ?, processed_at = NULL
		                   WHERE id = ?`, now, id)
		if err != nil {
			return fmt.Errorf("requeue task %d: %w", id, err)
		}
	}
	logger.Info().Int("count", len(ids)).Msg("confirmations requeued")
	return nil
}
