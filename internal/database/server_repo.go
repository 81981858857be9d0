package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/velmark/mailsearch/pkg/models"
)

// CreateServer creates a new mail server credential record. A second
// record for the same host and username returns ErrAlreadyExists.
func (db *DB) CreateServer(ctx context.Context, srv *models.MailServer) error {
	query := `
		INSERT INTO mail_servers (host, port, username, password, folders, pool, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		srv.Host,
		srv.Port,
		srv.Username,
		srv.Password,
		srv.Folders,
		srv.Pool,
		srv.IsActive,
		now,
		now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create server: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	srv.ID = id
	srv.CreatedAt = now
	srv.UpdatedAt = now
	return nil
}

// GetServerByID returns a mail server by ID.
func (db *DB) GetServerByID(ctx context.Context, id int64) (*models.MailServer, error) {
	var srv models.MailServer
	query := `SELECT * FROM mail_servers WHERE id = ?`
	err := db.GetContext(ctx, &srv, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return &srv, nil
}

// GetActiveServers returns all active mail servers in a credential pool.
func (db *DB) GetActiveServers(ctx context.Context, pool string) ([]*models.MailServer, error) {
	var servers []*models.MailServer
	query := `SELECT * FROM mail_servers WHERE pool = ? AND is_active = true ORDER BY id`
	err := db.SelectContext(ctx, &servers, query, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get active servers: %w", err)
	}
	return servers, nil
}

// SetServerActive sets the active status of a mail server.
func (db *DB) SetServerActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE mail_servers SET is_active = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set server active: %w", err)
	}
	return nil
}

// DeleteServer deletes a mail server.
func (db *DB) DeleteServer(ctx context.Context, id int64) error {
	query := `DELETE FROM mail_servers WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	return nil
}
