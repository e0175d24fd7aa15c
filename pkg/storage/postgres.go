package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/xhad/docchat/internal/models"
)

type PostgresConfig struct {
	ConnString string
	TableName  string
	PublicPath string
}

// PostgresStore keeps asset bytes in a table; the HTTP server serves them.
type PostgresStore struct {
	config PostgresConfig
	pool   *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	if config.TableName == "" {
		config.TableName = "assets"
	}
	if config.PublicPath == "" {
		config.PublicPath = "/assets"
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{config: config, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initialize(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			original_id TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, filename)
		)`, pgx.Identifier{s.config.TableName}.Sanitize())

	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create assets table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, asset Asset) (models.StoredAsset, error) {
	if err := ValidateKey(sessionID, asset.Filename); err != nil {
		return models.StoredAsset{}, err
	}

	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = InferMimeType("", asset.Filename)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (session_id, filename, original_id, mime_type, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, filename) DO UPDATE SET
			original_id = EXCLUDED.original_id,
			mime_type = EXCLUDED.mime_type,
			data = EXCLUDED.data`,
		pgx.Identifier{s.config.TableName}.Sanitize())

	if _, err := s.pool.Exec(ctx, stmt, sessionID, asset.Filename, asset.OriginalID, mimeType, asset.Data); err != nil {
		return models.StoredAsset{}, fmt.Errorf("failed to insert asset: %w", err)
	}

	log.WithFields(logrus.Fields{
		"session": sessionID,
		"file":    asset.Filename,
	}).Debug("Stored asset in postgres")

	asset.MimeType = mimeType
	return storedAsset(asset, publicURL(s.config.PublicPath, sessionID, asset.Filename)), nil
}

func (s *PostgresStore) Open(ctx context.Context, sessionID, filename string) ([]byte, string, error) {
	if err := ValidateKey(sessionID, filename); err != nil {
		return nil, "", err
	}

	query := fmt.Sprintf(`SELECT data, mime_type FROM %s WHERE session_id = $1 AND filename = $2`,
		pgx.Identifier{s.config.TableName}.Sanitize())

	var data []byte
	var mimeType string
	err := s.pool.QueryRow(ctx, query, sessionID, filename).Scan(&data, &mimeType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read asset: %w", err)
	}
	return data, mimeType, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
