package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
)

// SaveUser creates the user together with an empty profile.
func (s *Storage) SaveUser(ctx context.Context, username, email string, passHash []byte) (int64, error) {
	const op = "storage.postgres.SaveUser"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO users(username, email, pass_hash) VALUES($1, $2, $3) RETURNING id",
		username, email, passHash,
	).Scan(&id)
	if err != nil {
		if pqCode(err) == codeUniqueViolation {
			return 0, fmt.Errorf("%s: %w", op, repo.ErrUserExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO profiles(user_id) VALUES($1)", id); err != nil {
		return 0, fmt.Errorf("%s: profile: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) User(ctx context.Context, email string) (entity.User, error) {
	const op = "storage.postgres.User"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, pass_hash, is_admin, created_at FROM users WHERE email = $1 AND deleted_at IS NULL",
		email,
	)

	var user entity.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PassHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
		}
		return entity.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (entity.User, error) {
	const op = "storage.postgres.UserByID"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, pass_hash, is_admin, created_at FROM users WHERE id = $1 AND deleted_at IS NULL",
		userID,
	)

	var user entity.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PassHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
		}
		return entity.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (s *Storage) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.postgres.IsAdmin"

	var isAdmin bool
	err := s.db.QueryRowContext(ctx, "SELECT is_admin FROM users WHERE id = $1 AND deleted_at IS NULL", userID).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return isAdmin, nil
}

func (s *Storage) SetUserAdminStatus(ctx context.Context, userID int64, admin bool) error {
	const op = "storage.postgres.SetUserAdminStatus"

	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_admin = $1 WHERE id = $2 AND deleted_at IS NULL", admin, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	return nil
}

func (s *Storage) SaveToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	const op = "storage.postgres.SaveToken"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens(user_id, token, expires_at) VALUES($1, $2, $3)",
		userID, token, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to save refresh token: %w", op, err)
	}

	return nil
}

func (s *Storage) IsRefreshTokenValid(ctx context.Context, userID int64, token string, now time.Time) (bool, error) {
	const op = "storage.postgres.IsRefreshTokenValid"

	var isValid bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM refresh_tokens
			WHERE token = $1
			AND user_id = $2
			AND expires_at > $3
		)`, token, userID, now).Scan(&isValid)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return isValid, nil
}

func (s *Storage) DeleteRefreshToken(ctx context.Context, userID int64, token string) error {
	const op = "storage.postgres.DeleteRefreshToken"

	res, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token = $1 AND user_id = $2", token, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, repo.ErrTokenNotFound)
	}

	return nil
}

const profileQuery = `SELECT u.id, u.username, u.email, p.avatar, p.bio, p.birth_date, p.updated_at
	FROM profiles p JOIN users u ON u.id = p.user_id
	WHERE u.deleted_at IS NULL`

func scanProfile(row scanner) (entity.Profile, error) {
	var (
		profile   entity.Profile
		birthDate sql.NullTime
	)
	err := row.Scan(&profile.UserID, &profile.Username, &profile.Email, &profile.Avatar, &profile.Bio, &birthDate, &profile.UpdatedAt)
	if err != nil {
		return entity.Profile{}, err
	}
	if birthDate.Valid {
		profile.BirthDate = &birthDate.Time
	}
	return profile, nil
}

func (s *Storage) Profile(ctx context.Context, userID int64) (entity.Profile, error) {
	const op = "storage.postgres.Profile"

	profile, err := scanProfile(s.db.QueryRowContext(ctx, profileQuery+" AND u.id = $1", userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Profile{}, fmt.Errorf("%s: %w", op, repo.ErrProfileNotFound)
		}
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	return profile, nil
}

// CreateProfile adds an empty profile for the user. It is a no-op when the
// profile already exists.
func (s *Storage) CreateProfile(ctx context.Context, userID int64) error {
	const op = "storage.postgres.CreateProfile"

	_, err := s.db.ExecContext(ctx, `INSERT INTO profiles(user_id)
		SELECT id FROM users WHERE id = $1 AND deleted_at IS NULL
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateProfile writes the account fields and the profile fields together.
func (s *Storage) UpdateProfile(ctx context.Context, profile entity.Profile) error {
	const op = "storage.postgres.UpdateProfile"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET username = $1, email = $2 WHERE id = $3 AND deleted_at IS NULL",
		profile.Username, profile.Email, profile.UserID,
	)
	if err != nil {
		if pqCode(err) == codeUniqueViolation {
			return fmt.Errorf("%s: %w", op, repo.ErrUserExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE profiles SET avatar = $1, bio = $2, birth_date = $3, updated_at = NOW() WHERE user_id = $4",
		profile.Avatar, profile.Bio, profile.BirthDate, profile.UserID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repo.ErrProfileNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteUser removes the profile and refresh tokens and marks the user as
// deleted. Personal fields are scrubbed; votes are kept.
func (s *Storage) DeleteUser(ctx context.Context, userID int64) error {
	const op = "storage.postgres.DeleteUser"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE users SET
		deleted_at = NOW(),
		username = 'deleted-' || id,
		email = 'deleted-' || id || '@invalid',
		pass_hash = ''::bytea,
		is_admin = FALSE
		WHERE id = $1 AND deleted_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("%s: tokens: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM profiles WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("%s: profile: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListProfiles returns profiles whose username contains search, ignoring case.
func (s *Storage) ListProfiles(ctx context.Context, search string, page repo.Page) ([]entity.Profile, error) {
	const op = "storage.postgres.ListProfiles"

	rows, err := s.db.QueryContext(ctx,
		profileQuery+" AND u.username ILIKE '%' || $1 || '%' ORDER BY u.id LIMIT $2 OFFSET $3",
		search, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var profiles []entity.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return profiles, nil
}
