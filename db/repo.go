package db

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"lendshelf/lending"
	"lendshelf/models"
)

// Repo serves members, credentials and items. It is the identity provider and
// item catalog the lending service consults.
type Repo struct{ DB *gorm.DB }

var (
	_ lending.ProfileDirectory = (*Repo)(nil)
	_ lending.ItemCatalog      = (*Repo)(nil)
)

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

var ErrUsernameTaken = errors.New("username already taken")

// Users

func (r *Repo) TouchUserLogin(ctx context.Context, userID, ip, ua string) error {
	// NOW() and an in-place increment keep concurrent logins from overwriting each other.
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": gorm.Expr("NOW()"),
			"last_seen_at":  gorm.Expr("NOW()"),
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
			"last_login_ip": ip,
			"last_login_ua": ua,
		}).Error
}

func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", gorm.Expr("NOW()")).Error
}

func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", strings.ToLower(username)).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser registers a member. Usernames are stored lower-cased.
func (r *Repo) CreateUser(ctx context.Context, id, username, displayName string) (*models.User, error) {
	u := newMember(id, username, displayName)
	if err := r.DB.WithContext(ctx).Create(&u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &u, nil
}

// RegisterMember creates a member together with their first passkey. Either
// both rows exist afterwards or neither does.
func (r *Repo) RegisterMember(ctx context.Context, id, username, displayName string, cred *models.Credential) (*models.User, error) {
	u := newMember(id, username, displayName)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrUsernameTaken
			}
			return err
		}
		cred.UserID = u.ID
		return tx.Create(cred).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func newMember(id, username, displayName string) models.User {
	username = strings.ToLower(strings.TrimSpace(username))
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}
	return models.User{ID: id, Username: username, DisplayName: displayName}
}

func (r *Repo) ProfileExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		err = classify("db.ProfileExists", err)
		if errors.Is(err, lending.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) LookupProfiles(ctx context.Context, ids []string) (map[string]lending.ProfileSnapshot, error) {
	out := make(map[string]lending.ProfileSnapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := r.DB.WithContext(ctx).Select("id", "username", "display_name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, classify("db.LookupProfiles", err)
	}
	for _, u := range users {
		out[u.ID] = lending.ProfileSnapshot{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
	}
	return out, nil
}

// Credentials

func (r *Repo) LoadUserCredentials(ctx context.Context, userID string) ([]models.Credential, error) {
	var cs []models.Credential
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&cs).Error; err != nil {
		return nil, err
	}
	return cs, nil
}

func (r *Repo) AddCredential(ctx context.Context, c *models.Credential) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *Repo) UpdateCredentialCounter(ctx context.Context, credID []byte, newCount uint32, cloneWarn bool) error {
	return r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("credential_id = ?", credID).
		Updates(map[string]any{
			"sign_count":    newCount,
			"clone_warning": cloneWarn,
			"last_used_at":  gorm.Expr("NOW()"),
		}).Error
}

func (r *Repo) FindUserByCredentialID(ctx context.Context, credID []byte) (*models.User, *models.Credential, error) {
	var c models.Credential
	if err := r.DB.WithContext(ctx).Where("credential_id = ?", credID).First(&c).Error; err != nil {
		return nil, nil, err
	}
	var u models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", c.UserID).First(&u).Error; err != nil {
		return nil, nil, err
	}
	return &u, &c, nil
}
