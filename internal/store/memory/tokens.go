package memory

import (
	"context"
	"fmt"
	"time"

	"resturant.app/internal/auth"
)

type refreshStore struct{ r runner }

func (s refreshStore) Create(_ context.Context, t *auth.RefreshToken) error {
	return s.r.run(func(st *state) error {
		if _, ok := st.refresh[t.ID]; ok {
			return fmt.Errorf("%w: refresh token %s exists", auth.ErrConflict, t.ID)
		}
		for _, other := range st.refresh {
			if other.TokenHash == t.TokenHash {
				return fmt.Errorf("%w: refresh token hash exists", auth.ErrConflict)
			}
		}
		st.refresh[t.ID] = *t
		return nil
	})
}

func (s refreshStore) Find(_ context.Context, id string) (*auth.RefreshToken, error) {
	var out auth.RefreshToken
	err := s.r.run(func(st *state) error {
		t, ok := st.refresh[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s refreshStore) FindByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	var out auth.RefreshToken
	err := s.r.run(func(st *state) error {
		for _, t := range st.refresh {
			if t.TokenHash == hash {
				out = t
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

func (s refreshStore) Revoke(_ context.Context, id string, at time.Time, by, replacedBy string) (bool, error) {
	var ok bool
	err := s.r.run(func(st *state) error {
		t, found := st.refresh[id]
		if !found || t.RevokedOn != nil {
			return nil
		}
		revokedOn := at
		t.RevokedOn = &revokedOn
		t.RevokedByIP = by
		t.ReplacedByTokenID = replacedBy
		st.refresh[id] = t
		ok = true
		return nil
	})
	return ok, err
}

func (s refreshStore) RevokeAllForUser(_ context.Context, userID string, at time.Time, reason string) (int64, error) {
	var n int64
	err := s.r.run(func(st *state) error {
		for id, t := range st.refresh {
			if t.UserID != userID || !t.IsActive(at) {
				continue
			}
			revokedOn := at
			t.RevokedOn = &revokedOn
			t.RevokedByIP = reason
			st.refresh[id] = t
			n++
		}
		return nil
	})
	return n, err
}

func (s refreshStore) LatestActive(_ context.Context, userID, excludeID string, now time.Time) (*auth.RefreshToken, error) {
	var (
		out   auth.RefreshToken
		found bool
	)
	err := s.r.run(func(st *state) error {
		for id, t := range st.refresh {
			if id == excludeID || t.UserID != userID || !t.IsActive(now) {
				continue
			}
			if !found || t.CreatedOn.After(out.CreatedOn) {
				out = t
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, auth.ErrNotFound
	}
	return &out, nil
}

type loginStore struct{ r runner }

func loginKey(provider, key string) string { return provider + "\x00" + key }

func (s loginStore) Find(_ context.Context, provider, providerKey string) (*auth.ExternalLogin, error) {
	var out auth.ExternalLogin
	err := s.r.run(func(st *state) error {
		l, ok := st.logins[loginKey(provider, providerKey)]
		if !ok {
			return auth.ErrNotFound
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s loginStore) Create(_ context.Context, l *auth.ExternalLogin) (bool, error) {
	var created bool
	err := s.r.run(func(st *state) error {
		key := loginKey(l.Provider, l.ProviderKey)
		if _, ok := st.logins[key]; ok {
			return nil
		}
		if _, ok := st.users[l.UserID]; !ok {
			return auth.ErrNotFound
		}
		st.logins[key] = *l
		created = true
		return nil
	})
	return created, err
}

type userTokenStore struct{ r runner }

func (s userTokenStore) Create(_ context.Context, t *auth.UserToken) error {
	return s.r.run(func(st *state) error {
		if _, ok := st.userTokens[t.ID]; ok {
			return fmt.Errorf("%w: user token %s exists", auth.ErrConflict, t.ID)
		}
		st.userTokens[t.ID] = *t
		return nil
	})
}

func (s userTokenStore) Consume(_ context.Context, userID, purpose, hash string, now time.Time) (bool, error) {
	var ok bool
	err := s.r.run(func(st *state) error {
		for id, t := range st.userTokens {
			if t.UserID != userID || t.Purpose != purpose || t.TokenHash != hash {
				continue
			}
			if t.UsedAt != nil || !now.Before(t.ExpiresAt) {
				return nil
			}
			used := now
			t.UsedAt = &used
			st.userTokens[id] = t
			ok = true
			return nil
		}
		return nil
	})
	return ok, err
}
