package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/db"
)

// UserRepository resolves usernames and user ids against the users table.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Create inserts a new user row. ID is filled in on success.
func (r *UserRepository) Create(ctx context.Context, user *db.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Delete removes the user row. Graph cleanup is the engine's job.
func (r *UserRepository) Delete(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Delete(&db.User{}, userID).Error
}

// ExistsTx reports whether the user row exists, reading through tx.
func (r *UserRepository) ExistsTx(ctx context.Context, tx *gorm.DB, userID uint64) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

// DeleteTx removes the user row inside tx and reports whether it existed.
func (r *UserRepository) DeleteTx(ctx context.Context, tx *gorm.DB, userID uint64) (bool, error) {
	res := tx.WithContext(ctx).Delete(&db.User{}, userID)
	return res.RowsAffected == 1, res.Error
}

// ResolveByUsername returns the id for username or gorm.ErrRecordNotFound.
func (r *UserRepository) ResolveByUsername(ctx context.Context, username string) (uint64, error) {
	var user db.User
	err := r.db.WithContext(ctx).
		Select("id").
		Where("username = ?", username).
		First(&user).Error
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// ResolveByID returns the username for id or gorm.ErrRecordNotFound.
func (r *UserRepository) ResolveByID(ctx context.Context, userID uint64) (string, error) {
	var user db.User
	err := r.db.WithContext(ctx).
		Select("id", "username").
		First(&user, userID).Error
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// Usernames maps ids to usernames in a single query.
// Ids that do not resolve are simply absent from the result.
func (r *UserRepository) Usernames(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []db.User
	err := r.db.WithContext(ctx).
		Select("id", "username").
		Where("id IN ?", ids).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out, nil
}
