package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wafferli-chat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads marketplace accounts. The handshake uses Exists to
// reject user ids that do not resolve to a known, verified account; the
// profile lookups enrich conversation and message responses.
type UserRepository interface {
	Exists(ctx context.Context, userID int64) (bool, error)
	GetProfile(ctx context.Context, userID int64) (models.UserProfile, error)
	GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.UserProfile, error)
}

// UserRepo is a sqlx implementation of UserRepository against the shared
// marketplace users table.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id=$1 AND verified = TRUE)`, userID)
	return exists, err
}

func (r *UserRepo) GetProfile(ctx context.Context, userID int64) (models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.GetContext(ctx, &profile,
		`SELECT id, username, COALESCE(avatar_url, '') AS avatar_url FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrUserNotFound
	}
	return profile, err
}

func (r *UserRepo) GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.UserProfile, error) {
	result := make(map[int64]models.UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var profiles []models.UserProfile
	err := r.db.SelectContext(ctx, &profiles,
		`SELECT id, username, COALESCE(avatar_url, '') AS avatar_url FROM users WHERE id = ANY($1)`,
		pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}
