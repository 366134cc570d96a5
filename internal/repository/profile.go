package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/stanley-fork/variant-go-server/internal/apperror"
	"github.com/stanley-fork/variant-go-server/internal/entity"
)

type ProfileRepository interface {
	Save(ctx context.Context, profile *entity.Profile) error
	GetByToken(ctx context.Context, token string) (*entity.Profile, error)
	GetByUserID(ctx context.Context, userID uint64) (*entity.Profile, error)
}

type dbProfile struct {
	client *redis.Client
}

func NewProfileRepository(client *redis.Client) ProfileRepository {
	return &dbProfile{
		client: client,
	}
}

func profileKey(userID uint64) string {
	return "user:profile:" + strconv.FormatUint(userID, 10)
}

func tokenKey(token string) string {
	return "user:token:" + token
}

// Save stores the profile and the token index pointing at it.
func (that *dbProfile) Save(ctx context.Context, profile *entity.Profile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err = that.client.Set(ctx, profileKey(profile.UserID), profileJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}

	userID := strconv.FormatUint(profile.UserID, 10)
	if err = that.client.Set(ctx, tokenKey(profile.Token), userID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set token index: %w", err)
	}

	return nil
}

func (that *dbProfile) GetByToken(ctx context.Context, token string) (*entity.Profile, error) {
	response, err := that.client.Get(ctx, tokenKey(token)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrProfileNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get token index: %w", err)
	}

	userID, err := strconv.ParseUint(response, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}

	return that.GetByUserID(ctx, userID)
}

func (that *dbProfile) GetByUserID(ctx context.Context, userID uint64) (*entity.Profile, error) {
	response, err := that.client.Get(ctx, profileKey(userID)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrProfileNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get profile by id: %w", err)
	}

	var profile entity.Profile
	if err = json.Unmarshal([]byte(response), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	return &profile, nil
}
