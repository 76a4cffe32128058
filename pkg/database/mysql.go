package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
)

// MySQLStore implements Store on top of MySQL
type MySQLStore struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       *logrus.Logger
}

// NewMySQLStore opens a MySQL connection pool and ensures the schema exists
func NewMySQLStore(cfg config.DatabaseConfig, logger *logrus.Logger) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MySQLStore{
		db:           db,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Database,
	}).Info("Connected to MySQL database")

	return store, nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database health
func (s *MySQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// migrate creates the schema when missing
func (s *MySQLStore) migrate() error {
	migrations := []string{
		createCallRecordsTable,
		createAgentAggregatesTable,
	}

	for i, migration := range migrations {
		s.logger.WithField("migration", i+1).Debug("Running migration")

		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	s.logger.Info("Database migrations completed successfully")
	return nil
}

// getContext returns a context bounded by the configured query timeout
func (s *MySQLStore) getContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Database schema definitions
const createCallRecordsTable = `
CREATE TABLE IF NOT EXISTS call_records (
    id VARCHAR(36) PRIMARY KEY,
    call_id VARCHAR(100) NOT NULL UNIQUE,
    agent_id VARCHAR(100) NOT NULL,
    customer_id VARCHAR(100) NOT NULL,
    language VARCHAR(10) NOT NULL DEFAULT 'en',
    start_time TIMESTAMP NOT NULL,
    duration_seconds INT NOT NULL,
    transcript MEDIUMTEXT NOT NULL,
    agent_talk_ratio DOUBLE NOT NULL DEFAULT 0.5,
    customer_sentiment_score DOUBLE NOT NULL DEFAULT 0,
    embedding MEDIUMBLOB NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    INDEX idx_agent_id (agent_id),
    INDEX idx_start_time (start_time),
    INDEX idx_sentiment (customer_sentiment_score),
    INDEX idx_agent_start_time (agent_id, start_time),
    INDEX idx_agent_sentiment (agent_id, customer_sentiment_score)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createAgentAggregatesTable = `
CREATE TABLE IF NOT EXISTS agent_aggregates (
    agent_id VARCHAR(100) PRIMARY KEY,
    avg_sentiment DOUBLE NOT NULL DEFAULT 0,
    avg_talk_ratio DOUBLE NOT NULL DEFAULT 0,
    call_count INT NOT NULL DEFAULT 0,
    computed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`
