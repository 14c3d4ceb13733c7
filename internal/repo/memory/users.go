package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
)

type refreshToken struct {
	userID    int64
	expiresAt time.Time
}

func (s *Storage) SaveUser(ctx context.Context, username, email string, passHash []byte) (int64, error) {
	const op = "storage.memory.SaveUser"

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	if s.takenLocked(username, email, 0) {
		return 0, fmt.Errorf("%s: %w", op, repo.ErrUserExists)
	}

	now := time.Now()
	id := s.userSeq.Add(1)
	s.users[id] = &entity.User{
		ID:        id,
		Username:  username,
		Email:     email,
		PassHash:  passHash,
		CreatedAt: now,
	}
	s.profiles[id] = &entity.Profile{UserID: id, UpdatedAt: now}

	return id, nil
}

// takenLocked reports whether username or email belongs to a user other than
// except. Deleted users are scrubbed and never collide.
func (s *Storage) takenLocked(username, email string, except int64) bool {
	for _, u := range s.users {
		if u.ID == except {
			continue
		}
		if u.Username == username || u.Email == email {
			return true
		}
	}
	return false
}

func (s *Storage) activeUserLocked(userID int64) (*entity.User, bool) {
	u, ok := s.users[userID]
	if !ok || u.DeletedAt != nil {
		return nil, false
	}
	return u, true
}

func (s *Storage) User(ctx context.Context, email string) (entity.User, error) {
	const op = "storage.memory.User"

	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	for _, u := range s.users {
		if u.Email == email && u.DeletedAt == nil {
			return *u, nil
		}
	}
	return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (entity.User, error) {
	const op = "storage.memory.UserByID"

	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	u, ok := s.activeUserLocked(userID)
	if !ok {
		return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	return *u, nil
}

func (s *Storage) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.memory.IsAdmin"

	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	u, ok := s.activeUserLocked(userID)
	if !ok {
		return false, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	return u.IsAdmin, nil
}

func (s *Storage) SetUserAdminStatus(ctx context.Context, userID int64, admin bool) error {
	const op = "storage.memory.SetUserAdminStatus"

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	u, ok := s.activeUserLocked(userID)
	if !ok {
		return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	u.IsAdmin = admin
	return nil
}

func (s *Storage) SaveToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	s.tokens[token] = refreshToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *Storage) IsRefreshTokenValid(ctx context.Context, userID int64, token string, now time.Time) (bool, error) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	t, ok := s.tokens[token]
	return ok && t.userID == userID && t.expiresAt.After(now), nil
}

func (s *Storage) DeleteRefreshToken(ctx context.Context, userID int64, token string) error {
	const op = "storage.memory.DeleteRefreshToken"

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	t, ok := s.tokens[token]
	if !ok || t.userID != userID {
		return fmt.Errorf("%s: %w", op, repo.ErrTokenNotFound)
	}
	delete(s.tokens, token)
	return nil
}

func (s *Storage) profileLocked(userID int64) (entity.Profile, bool) {
	u, ok := s.activeUserLocked(userID)
	if !ok {
		return entity.Profile{}, false
	}
	p, ok := s.profiles[userID]
	if !ok {
		return entity.Profile{}, false
	}
	out := *p
	out.Username = u.Username
	out.Email = u.Email
	return out, true
}

func (s *Storage) Profile(ctx context.Context, userID int64) (entity.Profile, error) {
	const op = "storage.memory.Profile"

	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	p, ok := s.profileLocked(userID)
	if !ok {
		return entity.Profile{}, fmt.Errorf("%s: %w", op, repo.ErrProfileNotFound)
	}
	return p, nil
}

func (s *Storage) CreateProfile(ctx context.Context, userID int64) error {
	const op = "storage.memory.CreateProfile"

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	if _, ok := s.activeUserLocked(userID); !ok {
		return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	if _, ok := s.profiles[userID]; !ok {
		s.profiles[userID] = &entity.Profile{UserID: userID, UpdatedAt: time.Now()}
	}
	return nil
}

func (s *Storage) UpdateProfile(ctx context.Context, profile entity.Profile) error {
	const op = "storage.memory.UpdateProfile"

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	u, ok := s.activeUserLocked(profile.UserID)
	if !ok {
		return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	p, ok := s.profiles[profile.UserID]
	if !ok {
		return fmt.Errorf("%s: %w", op, repo.ErrProfileNotFound)
	}
	if s.takenLocked(profile.Username, profile.Email, u.ID) {
		return fmt.Errorf("%s: %w", op, repo.ErrUserExists)
	}

	u.Username = profile.Username
	u.Email = profile.Email
	p.Avatar = profile.Avatar
	p.Bio = profile.Bio
	p.BirthDate = profile.BirthDate
	p.UpdatedAt = time.Now()

	return nil
}

func (s *Storage) DeleteUser(ctx context.Context, userID int64) error {
	const op = "storage.memory.DeleteUser"

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	u, ok := s.activeUserLocked(userID)
	if !ok {
		return fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}

	now := time.Now()
	u.DeletedAt = &now
	u.Username = fmt.Sprintf("deleted-%d", u.ID)
	u.Email = fmt.Sprintf("deleted-%d@invalid", u.ID)
	u.PassHash = nil
	u.IsAdmin = false

	delete(s.profiles, userID)
	for token, t := range s.tokens {
		if t.userID == userID {
			delete(s.tokens, token)
		}
	}

	return nil
}

func (s *Storage) ListProfiles(ctx context.Context, search string, page repo.Page) ([]entity.Profile, error) {
	s.accountsMu.RLock()
	search = strings.ToLower(search)
	profiles := make([]entity.Profile, 0, len(s.profiles))
	for id := range s.profiles {
		p, ok := s.profileLocked(id)
		if ok && strings.Contains(strings.ToLower(p.Username), search) {
			profiles = append(profiles, p)
		}
	}
	s.accountsMu.RUnlock()

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].UserID < profiles[j].UserID })

	return paginate(profiles, page), nil
}
