package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/velmark/mailsearch/pkg/models"
)

// GetUserByID returns a user with allow-lists and sub-user propagation
// sets loaded.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE id = ?`
	err := db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := db.loadUserRules(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername returns a user by username with allow-lists loaded.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE username = ?`
	err := db.GetContext(ctx, &user, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := db.loadUserRules(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *DB) loadUserRules(ctx context.Context, user *models.User) error {
	var err error
	if user.FilterIDs, err = db.joinIDs(ctx, `SELECT filter_id FROM user_filters WHERE user_id = ?`, user.ID); err != nil {
		return err
	}
	if user.RegexIDs, err = db.joinIDs(ctx, `SELECT regex_id FROM user_regexes WHERE user_id = ?`, user.ID); err != nil {
		return err
	}
	if user.SubuserFilterIDs, err = db.joinIDs(ctx, `SELECT filter_id FROM subuser_default_filters WHERE user_id = ?`, user.ID); err != nil {
		return err
	}
	if user.SubuserRegexIDs, err = db.joinIDs(ctx, `SELECT regex_id FROM subuser_default_regexes WHERE user_id = ?`, user.ID); err != nil {
		return err
	}
	return nil
}

func (db *DB) joinIDs(ctx context.Context, query string, userID int64) ([]int64, error) {
	var ids []int64
	if err := db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load user rule ids: %w", err)
	}
	return ids, nil
}
