package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS medical_documents (
  id CHAR(36) NOT NULL PRIMARY KEY,
  user_id VARCHAR(128) NOT NULL,
  file_name VARCHAR(255) NOT NULL,
  media_type VARCHAR(64) NOT NULL DEFAULT '',
  page_count INT NOT NULL DEFAULT 0,
  icd_parent_codes JSON NOT NULL,
  icd_specified_codes JSON NOT NULL,
  cpt_codes JSON NOT NULL,
  modifiers JSON NOT NULL,
  hcpcs_codes JSON NOT NULL,
  artifact_url VARCHAR(1024) NOT NULL DEFAULT '',
  created_at DATETIME(6) NOT NULL,
  updated_at DATETIME(6) NOT NULL,
  KEY idx_medical_documents_user_created (user_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS processing_failures (
  id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  user_id VARCHAR(128) NOT NULL,
  file_name VARCHAR(255) NOT NULL,
  stage VARCHAR(32) NOT NULL,
  kind VARCHAR(32) NOT NULL,
  message TEXT NOT NULL,
  details_json JSON NOT NULL,
  created_at DATETIME(6) NOT NULL,
  KEY idx_processing_failures_user_created (user_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates tables if they don't exist
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
