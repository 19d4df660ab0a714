package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"tlu-support/internal/models"
)

const (
	DefaultRosterSize = 10
	MaxRosterSize     = 100
)

type AvatarUpload struct {
	Filename string
	Reader   io.Reader
}

type UpdateProfileInput struct {
	Phone   *string       `form:"phone" validate:"omitempty,max=15,phone"`
	Address *string       `form:"address" validate:"omitempty,max=255"`
	Avatar  *AvatarUpload `validate:"-"`
}

// StudentService serves profiles (cached) and the privileged student roster.
type StudentService struct {
	users    UserRepository
	students StudentRepository
	media    *MediaService
	cache    Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

func NewStudentService(users UserRepository, students StudentRepository, media *MediaService, cache Cache, cacheTTL time.Duration, log zerolog.Logger) *StudentService {
	return &StudentService{
		users:    users,
		students: students,
		media:    media,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log.With().Str("component", "students").Logger(),
	}
}

func profileCacheKey(userID string) string {
	return fmt.Sprintf("user_profile:%s", userID)
}

// GetProfile returns the user joined with its student record, if any.
func (s *StudentService) GetProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	key := profileCacheKey(userID)

	var cached models.StudentProfile
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	student, err := s.students.GetStudent(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	profile := models.NewStudentProfile(user, student)
	if err := s.cache.Set(ctx, key, profile, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache user profile")
	}
	return profile, nil
}

func (s *StudentService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*models.StudentProfile, error) {
	upd := models.UserUpdate{Phone: in.Phone, Address: in.Address}

	if in.Avatar != nil {
		res, err := s.media.Upload(ctx, UploadAvatar, in.Avatar.Filename, in.Avatar.Reader)
		if err != nil {
			return nil, err
		}
		upd.Avatar = &res.URL
	}

	if !upd.Empty() {
		if err := s.users.UpdateUser(ctx, userID, upd); err != nil {
			return nil, err
		}
		_ = s.cache.Delete(ctx, profileCacheKey(userID))
	}

	return s.GetProfile(ctx, userID)
}

func (s *StudentService) ListStudents(ctx context.Context, filter models.StudentFilter) (*models.StudentPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Size < 1 {
		filter.Size = DefaultRosterSize
	}
	if filter.Size > MaxRosterSize {
		return nil, fmt.Errorf("%w: size must be at most %d", models.ErrValidation, MaxRosterSize)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown academic status %q", models.ErrValidation, filter.Status)
	}

	page, err := s.students.SearchStudents(ctx, filter)
	if err != nil {
		s.log.Error().Err(err).Msg("student search failed")
		return nil, fmt.Errorf("%w: failed to search students", models.ErrPersistence)
	}
	return page, nil
}

// GetStudent returns the profile of a user that has a student record.
func (s *StudentService) GetStudent(ctx context.Context, userID string) (*models.StudentProfile, error) {
	if _, err := s.students.GetStudent(ctx, userID); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}
