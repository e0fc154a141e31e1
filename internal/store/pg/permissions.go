package pg

import (
	"context"

	"resturant.app/internal/auth"
)

const permissionColumns = `id, code, description, created_at`

type permissionStore struct{ q querier }

func scanPermission(row scanner) (*auth.Permission, error) {
	var p auth.Permission
	if err := row.Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s permissionStore) Create(ctx context.Context, p *auth.Permission) error {
	p.Code = auth.NormalizeName(p.Code)
	err := s.q.QueryRowContext(ctx, `
		insert into permissions (code, description, created_at) values ($1, $2, $3) returning id
	`, p.Code, p.Description, p.CreatedAt).Scan(&p.ID)
	return mapErr(err)
}

func (s permissionStore) Find(ctx context.Context, id int64) (*auth.Permission, error) {
	return scanPermission(s.q.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where id = $1`, id))
}

func (s permissionStore) FindByIDs(ctx context.Context, ids []int64) ([]auth.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx, `select `+permissionColumns+` from permissions where id = any($1) order by code`, ids)
}

func (s permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	return s.query(ctx, `select `+permissionColumns+` from permissions order by code`)
}

func (s permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	return s.query(ctx, `
		select p.id, p.code, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.code
	`, roleID)
}

func (s permissionStore) query(ctx context.Context, query string, args ...any) ([]auth.Permission, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

func (s permissionStore) Update(ctx context.Context, p *auth.Permission) error {
	p.Code = auth.NormalizeName(p.Code)
	res, err := s.q.ExecContext(ctx,
		`update permissions set code = $2, description = $3 where id = $1`, p.ID, p.Code, p.Description)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// Delete fails with ErrConflict while role_permissions references the row.
func (s permissionStore) Delete(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return mapDeleteErr(err)
	}
	return requireRow(res)
}

func (s permissionStore) IDsForRoles(ctx context.Context, roleIDs []string) ([]int64, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.q.QueryContext(ctx, `
		select distinct permission_id from role_permissions where role_id = any($1) order by permission_id
	`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s permissionStore) Link(ctx context.Context, roleID string, permissionID int64) error {
	_, err := s.q.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id) values ($1, $2) on conflict do nothing
	`, roleID, permissionID)
	return mapErr(err)
}

func (s permissionStore) Unlink(ctx context.Context, roleID string, permissionID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`delete from role_permissions where role_id = $1 and permission_id = $2`, roleID, permissionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s permissionStore) UnlinkAll(ctx context.Context, roleID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s permissionStore) CountRoleLinks(ctx context.Context, permissionID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`select count(*) from role_permissions where permission_id = $1`, permissionID).Scan(&n)
	return n, err
}
