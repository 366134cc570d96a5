package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/stanley-fork/variant-go-server/internal/apperror"
	"github.com/stanley-fork/variant-go-server/internal/entity"
)

type ProfileService interface {
	// Identify resolves a durable token to a profile, minting a fresh
	// identity when the token is absent or malformed. A syntactically valid
	// but unknown token is adopted as-is so clients keep the token they
	// already stored. A non-empty nick updates the profile.
	Identify(ctx context.Context, token, nick string) (*entity.Profile, error)

	GetByUserID(ctx context.Context, userID uint64) (*entity.Profile, error)
}

type profileRepo interface {
	Save(ctx context.Context, profile *entity.Profile) error
	GetByToken(ctx context.Context, token string) (*entity.Profile, error)
	GetByUserID(ctx context.Context, userID uint64) (*entity.Profile, error)
}

type profileService struct {
	profileRepo profileRepo
}

func NewProfileService(profileRepo profileRepo) ProfileService {
	return &profileService{
		profileRepo: profileRepo,
	}
}

func (that *profileService) Identify(ctx context.Context, token, nick string) (*entity.Profile, error) {
	if uuid.Validate(token) != nil {
		token = uuid.NewString()
	}

	profile, err := that.profileRepo.GetByToken(ctx, token)

	if errors.Is(err, apperror.ErrProfileNotFound) {
		profile = &entity.Profile{
			UserID: newUserID(),
			Token:  token,
		}
		err = nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get profile by token: %w", err)
	}

	if nick != "" {
		profile.Nick = nick
	}

	if err = that.profileRepo.Save(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	return profile, nil
}

func (that *profileService) GetByUserID(ctx context.Context, userID uint64) (*entity.Profile, error) {
	profile, err := that.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile by id: %w", err)
	}

	return profile, nil
}

func newUserID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 { //nolint: gosec // ids are not secrets
			return id
		}
	}
}
