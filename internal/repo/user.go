package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/models"
)

var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrNotFound          = errors.New("user not found")
)

// UserRepo is the single source of truth for user rows and their
// refresh-token state. Every mutation runs in one transaction.
type UserRepo struct {
	DB *gorm.DB
}

// UserUpdate carries the optional fields of a partial update. Nil means
// "leave unchanged".
type UserUpdate struct {
	FullName *string
	Role     *string
	IsActive *bool
}

func (r *UserRepo) Create(ctx context.Context, username, passwordHash, fullName, role string) (*models.User, error) {
	user := models.User{
		Username:     username,
		PasswordHash: passwordHash,
		FullName:     fullName,
		Role:         role,
		IsActive:     true,
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateUsername
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int, isActive *bool) ([]models.User, error) {
	q := r.DB.WithContext(ctx).Model(&models.User{})
	if isActive != nil {
		q = q.Where("is_active = ?", *isActive)
	}

	var users []models.User
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepo) ListByRole(ctx context.Context, role string, isActive bool) ([]models.User, error) {
	var users []models.User
	err := r.DB.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, isActive).
		Order("created_at DESC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepo) Update(ctx context.Context, id uuid.UUID, upd UserUpdate) (*models.User, error) {
	fields := map[string]any{}
	if upd.FullName != nil {
		fields["full_name"] = *upd.FullName
	}
	if upd.Role != nil {
		fields["role"] = *upd.Role
	}
	if upd.IsActive != nil {
		fields["is_active"] = *upd.IsActive
	}
	if len(fields) == 0 {
		return r.FindByID(ctx, id)
	}
	fields["updated_at"] = time.Now()

	return r.applyUpdate(ctx, id, fields)
}

func (r *UserRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.User, error) {
	return r.applyUpdate(ctx, id, map[string]any{
		"is_active":  active,
		"updated_at": time.Now(),
	})
}

func (r *UserRepo) SetPasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) (*models.User, error) {
	return r.applyUpdate(ctx, id, map[string]any{
		"password_hash": passwordHash,
		"updated_at":    time.Now(),
	})
}

func (r *UserRepo) StoreRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) (bool, error) {
	return r.updateRows(ctx, id, map[string]any{
		"refresh_token":            token,
		"refresh_token_expires_at": expiresAt,
		"updated_at":               time.Now(),
	})
}

func (r *UserRepo) ClearRefreshToken(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.updateRows(ctx, id, map[string]any{
		"refresh_token":            nil,
		"refresh_token_expires_at": nil,
		"updated_at":               time.Now(),
	})
}

// FindByValidRefreshToken matches the stored token value, its expiry and
// the active flag in one query. A token that fails any of the three is as
// good as absent.
func (r *UserRepo) FindByValidRefreshToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).
		Where("refresh_token = ? AND refresh_token_expires_at > ? AND is_active = ?", token, time.Now(), true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.DB.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *UserRepo) applyUpdate(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) updateRows(ctx context.Context, id uuid.UUID, fields map[string]any) (bool, error) {
	var affected int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
