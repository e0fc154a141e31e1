package pg

import (
	"context"

	"resturant.app/internal/auth"
	"resturant.app/internal/ids"
)

const roleColumns = `id, name, normalized_name, description, created_at`

type roleStore struct{ q querier }

func scanRole(row scanner) (*auth.Role, error) {
	var r auth.Role
	if err := row.Scan(&r.ID, &r.Name, &r.NormalizedName, &r.Description, &r.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	role.NormalizedName = auth.NormalizeName(role.Name)
	_, err := s.q.ExecContext(ctx, `
		insert into roles (id, name, normalized_name, description, created_at)
		values ($1, $2, $3, $4, $5)
	`, role.ID, role.Name, role.NormalizedName, role.Description, role.CreatedAt)
	return mapErr(err)
}

func (s roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return scanRole(s.q.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id))
}

func (s roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return scanRole(s.q.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where normalized_name = $1`, auth.NormalizeName(name)))
}

func (s roleStore) FindByNames(ctx context.Context, normalized []string) ([]auth.Role, error) {
	if len(normalized) == 0 {
		return nil, nil
	}
	return s.query(ctx, `select `+roleColumns+` from roles where normalized_name = any($1) order by normalized_name`, normalized)
}

func (s roleStore) List(ctx context.Context) ([]auth.Role, error) {
	return s.query(ctx, `select `+roleColumns+` from roles order by normalized_name`)
}

func (s roleStore) query(ctx context.Context, query string, args ...any) ([]auth.Role, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []auth.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *r)
	}
	return roles, rows.Err()
}

func (s roleStore) Update(ctx context.Context, role *auth.Role) error {
	role.NormalizedName = auth.NormalizeName(role.Name)
	res, err := s.q.ExecContext(ctx, `
		update roles set name = $2, normalized_name = $3, description = $4 where id = $1
	`, role.ID, role.Name, role.NormalizedName, role.Description)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// Delete cascades to role_permissions and user_roles.
func (s roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapDeleteErr(err)
	}
	return requireRow(res)
}
