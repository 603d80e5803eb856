package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/library-chat/backend/internal/storage/models"
	"github.com/library-chat/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		collection TEXT NOT NULL,
		sources TEXT,
		history TEXT,
		client_hash TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answers_client ON answers(client_hash);
	CREATE INDEX IF NOT EXISTS idx_answers_created ON answers(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertAnswer appends one record. Records are never updated after this.
func (c *Client) InsertAnswer(record *models.AnswerRecord) error {
	sourcesJSON, err := json.Marshal(record.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	historyJSON, err := json.Marshal(record.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	query := `
		INSERT INTO answers (id, question, answer, collection, sources, history, client_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.Exec(
		query,
		record.ID,
		record.Question,
		record.Answer,
		record.Collection,
		string(sourcesJSON),
		string(historyJSON),
		record.ClientHash,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}

	logger.Info("Answer recorded",
		zap.String("answer_id", record.ID),
		zap.String("collection", record.Collection),
	)

	return nil
}

func (c *Client) GetAnswerHistory(clientHash string, limit int) ([]models.AnswerRecord, error) {
	query := `
		SELECT id, question, answer, collection, sources, created_at
		FROM answers
		WHERE client_hash = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, clientHash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get answer history: %w", err)
	}
	defer rows.Close()

	var records []models.AnswerRecord
	for rows.Next() {
		var r models.AnswerRecord
		var sourcesJSON string
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Question, &r.Answer, &r.Collection, &sourcesJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(sourcesJSON), &r.Sources); err != nil {
			logger.Warn("Failed to decode stored sources",
				zap.String("answer_id", r.ID),
				zap.Error(err),
			)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}
