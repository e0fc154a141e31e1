package memory

import (
	"context"
	"fmt"
	"sort"

	"resturant.app/internal/auth"
)

type permissionStore struct{ r runner }

func (s permissionStore) Create(_ context.Context, p *auth.Permission) error {
	return s.r.run(func(st *state) error {
		p.Code = auth.NormalizeName(p.Code)
		for _, other := range st.perms {
			if other.Code == p.Code {
				return fmt.Errorf("%w: permission %q exists", auth.ErrConflict, p.Code)
			}
		}
		st.nextPermID++
		p.ID = st.nextPermID
		st.perms[p.ID] = *p
		return nil
	})
}

func (s permissionStore) Find(_ context.Context, id int64) (*auth.Permission, error) {
	var out auth.Permission
	err := s.r.run(func(st *state) error {
		p, ok := st.perms[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s permissionStore) FindByIDs(_ context.Context, ids []int64) ([]auth.Permission, error) {
	var out []auth.Permission
	err := s.r.run(func(st *state) error {
		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if p, ok := st.perms[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	sortPerms(out)
	return out, err
}

func (s permissionStore) List(_ context.Context) ([]auth.Permission, error) {
	var out []auth.Permission
	err := s.r.run(func(st *state) error {
		out = make([]auth.Permission, 0, len(st.perms))
		for _, p := range st.perms {
			out = append(out, p)
		}
		return nil
	})
	sortPerms(out)
	return out, err
}

func (s permissionStore) Update(_ context.Context, p *auth.Permission) error {
	return s.r.run(func(st *state) error {
		cur, ok := st.perms[p.ID]
		if !ok {
			return auth.ErrNotFound
		}
		code := auth.NormalizeName(p.Code)
		for id, other := range st.perms {
			if id != p.ID && other.Code == code {
				return fmt.Errorf("%w: permission %q exists", auth.ErrConflict, code)
			}
		}
		cur.Code = code
		cur.Description = p.Description
		st.perms[p.ID] = cur
		return nil
	})
}

// Delete refuses while role links reference the permission.
func (s permissionStore) Delete(_ context.Context, id int64) error {
	return s.r.run(func(st *state) error {
		if _, ok := st.perms[id]; !ok {
			return auth.ErrNotFound
		}
		for _, set := range st.rolePerms {
			if _, ok := set[id]; ok {
				return fmt.Errorf("%w: permission is referenced by a role", auth.ErrConflict)
			}
		}
		delete(st.perms, id)
		return nil
	})
}

func (s permissionStore) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	var out []auth.Permission
	err := s.r.run(func(st *state) error {
		out = []auth.Permission{}
		for id := range st.rolePerms[roleID] {
			if p, ok := st.perms[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	sortPerms(out)
	return out, err
}

func (s permissionStore) IDsForRoles(_ context.Context, roleIDs []string) ([]int64, error) {
	var out []int64
	err := s.r.run(func(st *state) error {
		seen := make(map[int64]struct{})
		for _, roleID := range roleIDs {
			for id := range st.rolePerms[roleID] {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

func (s permissionStore) Link(_ context.Context, roleID string, permissionID int64) error {
	return s.r.run(func(st *state) error {
		if _, ok := st.roles[roleID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := st.perms[permissionID]; !ok {
			return auth.ErrNotFound
		}
		set, ok := st.rolePerms[roleID]
		if !ok {
			set = make(map[int64]struct{})
			st.rolePerms[roleID] = set
		}
		set[permissionID] = struct{}{}
		return nil
	})
}

func (s permissionStore) Unlink(_ context.Context, roleID string, permissionID int64) (bool, error) {
	var removed bool
	err := s.r.run(func(st *state) error {
		set := st.rolePerms[roleID]
		if _, ok := set[permissionID]; ok {
			delete(set, permissionID)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (s permissionStore) UnlinkAll(_ context.Context, roleID string) (int64, error) {
	var n int64
	err := s.r.run(func(st *state) error {
		n = int64(len(st.rolePerms[roleID]))
		delete(st.rolePerms, roleID)
		return nil
	})
	return n, err
}

func (s permissionStore) CountRoleLinks(_ context.Context, permissionID int64) (int, error) {
	var n int
	err := s.r.run(func(st *state) error {
		for _, set := range st.rolePerms {
			if _, ok := set[permissionID]; ok {
				n++
			}
		}
		return nil
	})
	return n, err
}

func sortPerms(perms []auth.Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Code < perms[j].Code })
}
