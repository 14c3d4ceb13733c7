package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/lib/jwt"
	"github.com/ayosleepy/polls/internal/repo"
)

const (
	MinPasswordLength = 8
	MaxUsernameLength = 150
)

var validate = validator.New()

//go:generate mockgen -source=auth.go -destination=../mocks/auth.go -package=mocks

type Auth struct {
	log             *slog.Logger
	userSaver       UserSaver
	userProvider    UserProvider
	tokenStorage    TokenStorage
	secret          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

type TokenStorage interface {
	SaveToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	IsRefreshTokenValid(ctx context.Context, userID int64, token string, now time.Time) (bool, error)
	DeleteRefreshToken(ctx context.Context, userID int64, token string) error
}

type UserSaver interface {
	SaveUser(ctx context.Context, username, email string, passHash []byte) (uid int64, err error)
}

type UserProvider interface {
	User(ctx context.Context, email string) (entity.User, error)
	UserByID(ctx context.Context, userID int64) (entity.User, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	SetUserAdminStatus(ctx context.Context, userID int64, admin bool) error
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
)

// NewAuth returns a new instance of the Auth service.
func NewAuth(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenStorage TokenStorage,
	secret string,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
) *Auth {
	return &Auth{
		log:             log,
		userSaver:       userSaver,
		userProvider:    userProvider,
		tokenStorage:    tokenStorage,
		secret:          secret,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// ValidateCredentials checks the account fields shared by registration and
// profile updates.
func ValidateCredentials(username, email string) error {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return fmt.Errorf("%w: username must be 1..%d characters", ErrInvalidInput, MaxUsernameLength)
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return nil
}

// Login checks the credentials and issues an access/refresh token pair.
// Unknown emails and wrong passwords are reported the same way.
func (auth *Auth) Login(ctx context.Context, email, password string) (jwt.TokenPair, int64, error) {
	const op = "auth.Login"

	log := auth.log.With(slog.String("op", op))

	log.Info("attempting to login user")

	user, err := auth.userProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return jwt.TokenPair{}, 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		log.Error("failed to get user", sl.Err(err))
		return jwt.TokenPair{}, 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return jwt.TokenPair{}, 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := auth.issue(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return jwt.TokenPair{}, 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("successfully logged in", slog.Int64("userID", user.ID))

	return pair, user.ID, nil
}

// RegisterNewUser registers a new user and returns its ID.
func (auth *Auth) RegisterNewUser(ctx context.Context, username, email, pass string) (int64, error) {
	const op = "auth.RegisterNewUser"

	log := auth.log.With(slog.String("op", op), slog.String("username", username))

	if err := ValidateCredentials(username, email); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if utf8.RuneCountInString(pass) < MinPasswordLength {
		return 0, fmt.Errorf("%s: %w: password must be at least %d characters", op, ErrInvalidInput, MinPasswordLength)
	}

	log.Info("registering user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate hash password", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := auth.userSaver.SaveUser(ctx, strings.TrimSpace(username), email, passHash)
	if err != nil {
		if errors.Is(err, repo.ErrUserExists) {
			log.Warn("user already exists", sl.Err(err))
			return 0, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered successfully", slog.Int64("userID", id))
	return id, nil
}

// IsAdmin checks if user is admin.
func (auth *Auth) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	const op = "auth.IsAdmin"

	isAdmin, err := auth.userProvider.IsAdmin(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return false, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return isAdmin, nil
}

func (auth *Auth) SetUserAdminStatus(ctx context.Context, userID int64, admin bool) error {
	const op = "auth.SetUserAdminStatus"

	if err := auth.userProvider.SetUserAdminStatus(ctx, userID, admin); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	auth.log.Info("user role switched", slog.String("op", op), slog.Int64("userID", userID), slog.Bool("admin", admin))
	return nil
}

// RefreshTokens rotates a refresh token: the presented one is consumed and a
// new pair is issued.
func (auth *Auth) RefreshTokens(ctx context.Context, refreshToken string) (jwt.TokenPair, error) {
	const op = "auth.RefreshTokens"

	log := auth.log.With(slog.String("op", op))

	user, err := auth.consumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return jwt.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := auth.issue(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return jwt.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("successfully refreshed tokens", slog.Int64("userID", user.ID))

	return pair, nil
}

func (auth *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	user, err := auth.consumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	auth.log.Info("successfully logged out user", slog.String("op", op), slog.Int64("userID", user.ID))
	return nil
}

// ValidateToken validates an access token and returns the user it was issued
// to. Tokens of deleted accounts are rejected even before they expire.
func (auth *Auth) ValidateToken(ctx context.Context, accessToken string) (int64, string, error) {
	const op = "auth.ValidateToken"

	claims, err := jwt.Parse(accessToken, auth.secret, jwt.TypeAccess)
	if err != nil {
		return 0, "", fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	user, err := auth.userProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return 0, "", fmt.Errorf("%s: %w: user is gone", op, ErrInvalidToken)
		}
		return 0, "", fmt.Errorf("%s: %w", op, err)
	}

	return user.ID, user.Email, nil
}

func (auth *Auth) issue(ctx context.Context, user entity.User) (jwt.TokenPair, error) {
	pair, err := jwt.NewTokenPair(user, auth.secret, auth.accessTokenTTL, auth.refreshTokenTTL)
	if err != nil {
		return jwt.TokenPair{}, fmt.Errorf("failed to generate token pair: %w", err)
	}

	if err := auth.tokenStorage.SaveToken(ctx, user.ID, pair.RefreshToken, time.Now().Add(auth.refreshTokenTTL)); err != nil {
		return jwt.TokenPair{}, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return pair, nil
}

func (auth *Auth) consumeRefreshToken(ctx context.Context, refreshToken string) (entity.User, error) {
	claims, err := jwt.Parse(refreshToken, auth.secret, jwt.TypeRefresh)
	if err != nil {
		return entity.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	valid, err := auth.tokenStorage.IsRefreshTokenValid(ctx, claims.UserID, refreshToken, time.Now())
	if err != nil {
		return entity.User{}, fmt.Errorf("failed to validate refresh token: %w", err)
	}
	if !valid {
		return entity.User{}, fmt.Errorf("%w: refresh token is revoked", ErrInvalidToken)
	}

	user, err := auth.userProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return entity.User{}, fmt.Errorf("%w: user is gone", ErrInvalidToken)
		}
		return entity.User{}, err
	}

	if err := auth.tokenStorage.DeleteRefreshToken(ctx, user.ID, refreshToken); err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			// Lost a race with a concurrent rotation of the same token.
			return entity.User{}, fmt.Errorf("%w: refresh token is revoked", ErrInvalidToken)
		}
		return entity.User{}, fmt.Errorf("failed to delete refresh token: %w", err)
	}

	return user, nil
}
