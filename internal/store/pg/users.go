package pg

import (
	"context"
	"database/sql"
	"strings"

	"resturant.app/internal/auth"
	"resturant.app/internal/ids"
)

const userColumns = `id, email, normalized_email, password_hash, full_name, phone_number, avatar_url,
	email_confirmed, is_deleted, token_version, access_failed_count, lockout_end, created_at, updated_at`

type userStore struct{ q querier }

func scanUser(row scanner) (*auth.User, error) {
	var (
		u       auth.User
		lockout sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.NormalizedEmail, &u.PasswordHash, &u.FullName, &u.PhoneNumber, &u.AvatarURL,
		&u.EmailConfirmed, &u.IsDeleted, &u.TokenVersion, &u.AccessFailedCount, &lockout, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if lockout.Valid {
		t := lockout.Time
		u.LockoutEnd = &t
	}
	return &u, nil
}

func (s userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.NormalizedEmail = auth.NormalizeName(u.Email)
	_, err := s.q.ExecContext(ctx, `
		insert into users (id, email, normalized_email, password_hash, full_name, phone_number, avatar_url,
			email_confirmed, is_deleted, token_version, access_failed_count, lockout_end, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, u.ID, u.Email, u.NormalizedEmail, u.PasswordHash, u.FullName, u.PhoneNumber, u.AvatarURL,
		u.EmailConfirmed, u.IsDeleted, u.TokenVersion, u.AccessFailedCount, u.LockoutEnd, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (s userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where normalized_email = $1`, auth.NormalizeName(email)))
}

func (s userStore) Update(ctx context.Context, u *auth.User) error {
	res, err := s.q.ExecContext(ctx, `
		update users
		set full_name = $2, phone_number = $3, avatar_url = $4, email_confirmed = $5, is_deleted = $6,
			access_failed_count = $7, lockout_end = $8, updated_at = $9
		where id = $1
	`, u.ID, u.FullName, u.PhoneNumber, u.AvatarURL, u.EmailConfirmed, u.IsDeleted,
		u.AccessFailedCount, u.LockoutEnd, u.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s userStore) UpdatePassword(ctx context.Context, userID, hash string) error {
	res, err := s.q.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`, userID, hash)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s userStore) IncrementTokenVersion(ctx context.Context, userID string) (int, error) {
	var version int
	err := s.q.QueryRowContext(ctx,
		`update users set token_version = token_version + 1 where id = $1 returning token_version`, userID).Scan(&version)
	return version, mapErr(err)
}

func (s userStore) List(ctx context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	pattern := ""
	if q.Search != "" {
		pattern = "%" + escapeLike(q.Search) + "%"
	}
	const filter = `where is_deleted = false and ($1 = '' or email ilike $1 or full_name ilike $1)`

	var total int
	if err := s.q.QueryRowContext(ctx, `select count(*) from users `+filter, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.q.QueryContext(ctx,
		`select `+userColumns+` from users `+filter+` order by created_at, id limit $2 offset $3`,
		pattern, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (s userStore) AddRole(ctx context.Context, userID, roleID string) error {
	_, err := s.q.ExecContext(ctx,
		`insert into user_roles (user_id, role_id) values ($1, $2) on conflict do nothing`, userID, roleID)
	return mapErr(err)
}

func (s userStore) RemoveRole(ctx context.Context, userID, roleID string) error {
	res, err := s.q.ExecContext(ctx, `delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s userStore) RoleNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
