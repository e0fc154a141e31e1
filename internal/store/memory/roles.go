package memory

import (
	"context"
	"fmt"
	"sort"

	"resturant.app/internal/auth"
	"resturant.app/internal/ids"
)

type roleStore struct{ r runner }

func (s roleStore) Create(_ context.Context, role *auth.Role) error {
	return s.r.run(func(st *state) error {
		if role.ID == "" {
			role.ID = ids.New()
		}
		role.NormalizedName = auth.NormalizeName(role.Name)
		for _, other := range st.roles {
			if other.NormalizedName == role.NormalizedName || other.ID == role.ID {
				return fmt.Errorf("%w: role %q exists", auth.ErrConflict, role.Name)
			}
		}
		st.roles[role.ID] = *role
		return nil
	})
}

func (s roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	var out auth.Role
	err := s.r.run(func(st *state) error {
		role, ok := st.roles[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s roleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	key := auth.NormalizeName(name)
	var out auth.Role
	err := s.r.run(func(st *state) error {
		for _, role := range st.roles {
			if role.NormalizedName == key {
				out = role
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

func (s roleStore) FindByNames(_ context.Context, normalized []string) ([]auth.Role, error) {
	want := make(map[string]struct{}, len(normalized))
	for _, n := range normalized {
		want[n] = struct{}{}
	}
	var out []auth.Role
	err := s.r.run(func(st *state) error {
		for _, role := range st.roles {
			if _, ok := want[role.NormalizedName]; ok {
				out = append(out, role)
			}
		}
		return nil
	})
	sortRoles(out)
	return out, err
}

func (s roleStore) List(_ context.Context) ([]auth.Role, error) {
	var out []auth.Role
	err := s.r.run(func(st *state) error {
		out = make([]auth.Role, 0, len(st.roles))
		for _, role := range st.roles {
			out = append(out, role)
		}
		return nil
	})
	sortRoles(out)
	return out, err
}

func (s roleStore) Update(_ context.Context, role *auth.Role) error {
	return s.r.run(func(st *state) error {
		cur, ok := st.roles[role.ID]
		if !ok {
			return auth.ErrNotFound
		}
		normalized := auth.NormalizeName(role.Name)
		for id, other := range st.roles {
			if id != role.ID && other.NormalizedName == normalized {
				return fmt.Errorf("%w: role %q exists", auth.ErrConflict, role.Name)
			}
		}
		cur.Name = role.Name
		cur.NormalizedName = normalized
		cur.Description = role.Description
		st.roles[role.ID] = cur
		return nil
	})
}

// Delete removes the role and cascades to its links.
func (s roleStore) Delete(_ context.Context, id string) error {
	return s.r.run(func(st *state) error {
		if _, ok := st.roles[id]; !ok {
			return auth.ErrNotFound
		}
		delete(st.roles, id)
		delete(st.rolePerms, id)
		for _, set := range st.userRoles {
			delete(set, id)
		}
		return nil
	})
}

func sortRoles(roles []auth.Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].NormalizedName < roles[j].NormalizedName })
}
