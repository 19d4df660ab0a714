package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tlu-support/internal/models"
	"tlu-support/internal/utils"
)

type RegisterStudentInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	FullName    string `json:"full_name" validate:"required,max=255"`
	StudentCode string `json:"student_code" validate:"required,max=50"`
	ClassName   string `json:"class_name" validate:"omitempty,max=100"`
	Faculty     string `json:"faculty" validate:"omitempty,max=255"`
}

type CreateLecturerInput struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	FullName   string `json:"full_name" validate:"required,max=255"`
	Department string `json:"department" validate:"omitempty,max=255"`
}

type LoginResult struct {
	AccessToken   string      `json:"access_token"`
	TokenType     string      `json:"token_type"`
	Role          models.Role `json:"role"`
	UserID        string      `json:"user_id"`
	FullName      string      `json:"full_name"`
	ResetRequired bool        `json:"reset_required"`
}

type AuthService struct {
	tx       Transactor
	users    UserRepository
	students StudentRepository
	jwtUtil  *utils.JWTUtil
	cache    Cache
	email    EmailService
	log      zerolog.Logger
}

func NewAuthService(tx Transactor, users UserRepository, students StudentRepository, jwtUtil *utils.JWTUtil,
	cache Cache, email EmailService, log zerolog.Logger) *AuthService {
	return &AuthService{
		tx:       tx,
		users:    users,
		students: students,
		jwtUtil:  jwtUtil,
		cache:    cache,
		email:    email,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// RegisterStudent creates the user and its student record together.
func (s *AuthService) RegisterStudent(ctx context.Context, in RegisterStudentInput) (*models.User, error) {
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(in.Email),
		Password:  in.Password,
		FullName:  in.FullName,
		Role:      models.RoleStudent,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := user.HashPassword(); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.FindUserByEmail(ctx, user.Email); err == nil {
			return fmt.Errorf("%w: email already registered", models.ErrDuplicate)
		}
		if _, err := s.students.FindStudentByCode(ctx, in.StudentCode); err == nil {
			return fmt.Errorf("%w: student code already registered", models.ErrDuplicate)
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return err
		}
		return s.students.CreateStudent(ctx, &models.Student{
			UserID:         user.ID,
			StudentCode:    in.StudentCode,
			ClassName:      in.ClassName,
			Faculty:        in.Faculty,
			AcademicStatus: models.AcademicActive,
		})
	})
	if err != nil {
		return nil, s.storageError(err, "failed to register student")
	}
	return user, nil
}

// CreateLecturer provisions an agent account. Callers are restricted to admins at the router.
func (s *AuthService) CreateLecturer(ctx context.Context, in CreateLecturerInput) (*models.User, error) {
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(in.Email),
		Password:  in.Password,
		FullName:  in.FullName,
		Role:      models.RoleLecturer,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := user.HashPassword(); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.FindUserByEmail(ctx, user.Email); err == nil {
			return fmt.Errorf("%w: email already registered", models.ErrDuplicate)
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return err
		}
		return s.students.CreateAgent(ctx, &models.Agent{
			UserID:     user.ID,
			Department: in.Department,
			Status:     models.AgentOffline,
		})
	})
	if err != nil {
		return nil, s.storageError(err, "failed to create lecturer")
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	invalid := fmt.Errorf("%w: incorrect email or password", models.ErrUnauthorized)

	user, err := s.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, invalid
		}
		return nil, s.storageError(err, "failed to sign in")
	}
	if err := user.ComparePassword(password); err != nil {
		s.log.Debug().Str("email", email).Msg("password mismatch")
		return nil, invalid
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", models.ErrForbidden)
	}

	token, err := s.jwtUtil.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   token,
		TokenType:     "bearer",
		Role:          user.Role,
		UserID:        user.ID,
		FullName:      user.FullName,
		ResetRequired: user.ResetRequired,
	}, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := user.ComparePassword(oldPassword); err != nil {
		return fmt.Errorf("%w: invalid old password", models.ErrValidation)
	}

	user.Password = newPassword
	if err := user.HashPassword(); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	reset := false
	return s.users.UpdateUser(ctx, userID, models.UserUpdate{Password: &user.Password, ResetRequired: &reset})
}

// ForgotPassword mails a temporary password. Unknown emails are not reported to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return s.storageError(err, "failed to reset password")
	}

	tempPass := utils.GenerateCode(10)
	user.Password = tempPass
	if err := user.HashPassword(); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	reset := true
	if err := s.users.UpdateUser(ctx, user.ID, models.UserUpdate{Password: &user.Password, ResetRequired: &reset}); err != nil {
		return s.storageError(err, "failed to reset password")
	}

	if err := s.email.SendTemporaryPassword(user.Email, tempPass); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send temporary password")
		return errors.New("failed to send email with temporary password")
	}
	return nil
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *utils.Claims) error {
	if claims == nil || claims.JTI == "" {
		return fmt.Errorf("%w: token has no id", models.ErrValidation)
	}
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, utils.BlacklistKey(claims.JTI), true, ttl)
}

func (s *AuthService) storageError(err error, msg string) error {
	if errors.Is(err, models.ErrDuplicate) || errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) {
		return err
	}
	s.log.Error().Err(err).Msg(msg)
	return fmt.Errorf("%w: %s", models.ErrPersistence, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
