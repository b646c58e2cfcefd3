// Package journal appends change records to a MySQL table.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
)

const createTable = `CREATE TABLE IF NOT EXISTS change_events (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	scan_id VARCHAR(64) NOT NULL,
	type VARCHAR(32) NOT NULL,
	table_id VARCHAR(64) NOT NULL,
	table_name VARCHAR(255) NOT NULL,
	watched_user_id BIGINT NULL,
	participant_id VARCHAR(64) NULL,
	occurred_at DATETIME NOT NULL,
	record JSON NOT NULL,
	INDEX idx_table_id (table_id),
	INDEX idx_scan_id (scan_id)
)`

const insertRecord = `INSERT INTO change_events
	(scan_id, type, table_id, table_name, watched_user_id, participant_id, occurred_at, record)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Journal writes records to MySQL.
type Journal struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open connects to dsn, verifies the server is reachable and creates the
// change_events table if needed.
func Open(ctx context.Context, dsn string, logger *logrus.Logger) (*Journal, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL server at %s: %w", cfg.Addr, err)
	}
	logger.Infof("Successfully connected to MySQL server at %s", cfg.Addr)

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create change_events table: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Publish inserts rec.
func (j *Journal) Publish(ctx context.Context, rec *models.Record) error {
	args, err := insertArgs(rec)
	if err != nil {
		return err
	}
	if _, err := j.db.ExecContext(ctx, insertRecord, args...); err != nil {
		return fmt.Errorf("failed to insert %s record for table %s: %w", rec.Type, rec.TableID, err)
	}
	j.logger.Debugf("Journaled %s record for table %s", rec.Type, rec.TableID)
	return nil
}

// Close closes the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

func insertArgs(rec *models.Record) ([]any, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	var watched sql.NullInt64
	if rec.WatchedUserID != 0 {
		watched = sql.NullInt64{Int64: rec.WatchedUserID, Valid: true}
	}
	var participant sql.NullString
	if rec.ParticipantID != "" {
		participant = sql.NullString{String: rec.ParticipantID, Valid: true}
	}

	return []any{
		rec.ScanID,
		string(rec.Type),
		rec.TableID,
		rec.TableName,
		watched,
		participant,
		time.Unix(rec.Timestamp, 0).UTC(),
		string(body),
	}, nil
}
