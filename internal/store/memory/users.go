package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"resturant.app/internal/auth"
	"resturant.app/internal/ids"
)

type userStore struct{ r runner }

func (s userStore) Create(_ context.Context, u *auth.User) error {
	return s.r.run(func(st *state) error {
		if u.ID == "" {
			u.ID = ids.New()
		}
		u.NormalizedEmail = auth.NormalizeName(u.Email)
		if _, ok := st.users[u.ID]; ok {
			return fmt.Errorf("%w: user %s exists", auth.ErrConflict, u.ID)
		}
		for _, other := range st.users {
			if other.NormalizedEmail == u.NormalizedEmail {
				return fmt.Errorf("%w: email already registered", auth.ErrConflict)
			}
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (s userStore) Find(_ context.Context, id string) (*auth.User, error) {
	var out auth.User
	err := s.r.run(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	key := auth.NormalizeName(email)
	var out auth.User
	err := s.r.run(func(st *state) error {
		for _, u := range st.users {
			if u.NormalizedEmail == key {
				out = u
				return nil
			}
		}
		return auth.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s userStore) Update(_ context.Context, u *auth.User) error {
	return s.r.run(func(st *state) error {
		cur, ok := st.users[u.ID]
		if !ok {
			return auth.ErrNotFound
		}
		cur.FullName = u.FullName
		cur.PhoneNumber = u.PhoneNumber
		cur.AvatarURL = u.AvatarURL
		cur.EmailConfirmed = u.EmailConfirmed
		cur.IsDeleted = u.IsDeleted
		cur.AccessFailedCount = u.AccessFailedCount
		cur.LockoutEnd = u.LockoutEnd
		cur.UpdatedAt = u.UpdatedAt
		st.users[u.ID] = cur
		return nil
	})
}

func (s userStore) UpdatePassword(_ context.Context, userID, hash string) error {
	return s.r.run(func(st *state) error {
		cur, ok := st.users[userID]
		if !ok {
			return auth.ErrNotFound
		}
		cur.PasswordHash = hash
		st.users[userID] = cur
		return nil
	})
}

func (s userStore) IncrementTokenVersion(_ context.Context, userID string) (int, error) {
	var version int
	err := s.r.run(func(st *state) error {
		cur, ok := st.users[userID]
		if !ok {
			return auth.ErrNotFound
		}
		cur.TokenVersion++
		st.users[userID] = cur
		version = cur.TokenVersion
		return nil
	})
	return version, err
}

// List pages live users ordered by creation time. Search matches email and
// full name case-insensitively.
func (s userStore) List(_ context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	var (
		page  []auth.User
		total int
	)
	needle := strings.ToLower(q.Search)
	err := s.r.run(func(st *state) error {
		matched := make([]auth.User, 0, len(st.users))
		for _, u := range st.users {
			if u.IsDeleted {
				continue
			}
			if needle != "" && !strings.Contains(strings.ToLower(u.Email), needle) && !strings.Contains(strings.ToLower(u.FullName), needle) {
				continue
			}
			matched = append(matched, u)
		}
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].ID < matched[j].ID
			}
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		})
		total = len(matched)
		start := (q.Page - 1) * q.PageSize
		if start < 0 || start >= total {
			page = []auth.User{}
			return nil
		}
		end := start + q.PageSize
		if end > total || q.PageSize <= 0 {
			end = total
		}
		page = append([]auth.User(nil), matched[start:end]...)
		return nil
	})
	return page, total, err
}

func (s userStore) AddRole(_ context.Context, userID, roleID string) error {
	return s.r.run(func(st *state) error {
		if _, ok := st.users[userID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := st.roles[roleID]; !ok {
			return auth.ErrNotFound
		}
		set, ok := st.userRoles[userID]
		if !ok {
			set = make(map[string]struct{})
			st.userRoles[userID] = set
		}
		set[roleID] = struct{}{}
		return nil
	})
}

func (s userStore) RemoveRole(_ context.Context, userID, roleID string) error {
	return s.r.run(func(st *state) error {
		set := st.userRoles[userID]
		if _, ok := set[roleID]; !ok {
			return auth.ErrNotFound
		}
		delete(set, roleID)
		return nil
	})
}

func (s userStore) RoleNames(_ context.Context, userID string) ([]string, error) {
	var names []string
	err := s.r.run(func(st *state) error {
		for roleID := range st.userRoles[userID] {
			if role, ok := st.roles[roleID]; ok {
				names = append(names, role.Name)
			}
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}
