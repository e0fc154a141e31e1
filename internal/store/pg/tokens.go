package pg

import (
	"context"
	"database/sql"
	"time"

	"resturant.app/internal/auth"
)

const refreshColumns = `id, user_id, token_hash, jwt_id, expires_on, created_on, created_by_ip, user_agent,
	revoked_on, revoked_by_ip, replaced_by_token_id`

type refreshStore struct{ q querier }

func scanRefresh(row scanner) (*auth.RefreshToken, error) {
	var (
		t          auth.RefreshToken
		revokedOn  sql.NullTime
		revokedBy  sql.NullString
		replacedBy sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.JwtID, &t.ExpiresOn, &t.CreatedOn, &t.CreatedByIP, &t.UserAgent,
		&revokedOn, &revokedBy, &replacedBy)
	if err != nil {
		return nil, mapErr(err)
	}
	if revokedOn.Valid {
		at := revokedOn.Time
		t.RevokedOn = &at
	}
	t.RevokedByIP = revokedBy.String
	t.ReplacedByTokenID = replacedBy.String
	return &t, nil
}

func (s refreshStore) Create(ctx context.Context, t *auth.RefreshToken) error {
	_, err := s.q.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, jwt_id, expires_on, created_on, created_by_ip, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, t.TokenHash, t.JwtID, t.ExpiresOn, t.CreatedOn, t.CreatedByIP, t.UserAgent)
	return mapErr(err)
}

func (s refreshStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	return scanRefresh(s.q.QueryRowContext(ctx, `select `+refreshColumns+` from refresh_tokens where id = $1`, id))
}

func (s refreshStore) FindByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	return scanRefresh(s.q.QueryRowContext(ctx, `select `+refreshColumns+` from refresh_tokens where token_hash = $1`, hash))
}

// Revoke only touches a row that is still unrevoked; concurrent callers
// racing on the same id see exactly one success.
func (s refreshStore) Revoke(ctx context.Context, id string, at time.Time, by, replacedBy string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		update refresh_tokens
		set revoked_on = $2, revoked_by_ip = $3, replaced_by_token_id = nullif($4, '')
		where id = $1 and revoked_on is null
	`, id, at, by, replacedBy)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s refreshStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time, reason string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		update refresh_tokens
		set revoked_on = $2, revoked_by_ip = $3
		where user_id = $1 and revoked_on is null and expires_on >= $2
	`, userID, at, reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s refreshStore) LatestActive(ctx context.Context, userID, excludeID string, now time.Time) (*auth.RefreshToken, error) {
	return scanRefresh(s.q.QueryRowContext(ctx, `
		select `+refreshColumns+`
		from refresh_tokens
		where user_id = $1 and id <> $2 and revoked_on is null and expires_on >= $3
		order by created_on desc
		limit 1
	`, userID, excludeID, now))
}

type loginStore struct{ q querier }

func (s loginStore) Find(ctx context.Context, provider, providerKey string) (*auth.ExternalLogin, error) {
	var l auth.ExternalLogin
	err := s.q.QueryRowContext(ctx, `
		select provider, provider_key, user_id, display_name, created_at
		from external_logins where provider = $1 and provider_key = $2
	`, provider, providerKey).Scan(&l.Provider, &l.ProviderKey, &l.UserID, &l.DisplayName, &l.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (s loginStore) Create(ctx context.Context, l *auth.ExternalLogin) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		insert into external_logins (provider, provider_key, user_id, display_name, created_at)
		values ($1, $2, $3, $4, $5)
		on conflict (provider, provider_key) do nothing
	`, l.Provider, l.ProviderKey, l.UserID, l.DisplayName, l.CreatedAt)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type userTokenStore struct{ q querier }

func (s userTokenStore) Create(ctx context.Context, t *auth.UserToken) error {
	_, err := s.q.ExecContext(ctx, `
		insert into user_tokens (id, user_id, purpose, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.UserID, t.Purpose, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	return mapErr(err)
}

func (s userTokenStore) Consume(ctx context.Context, userID, purpose, hash string, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		update user_tokens
		set used_at = $4
		where user_id = $1 and purpose = $2 and token_hash = $3 and used_at is null and expires_at > $4
	`, userID, purpose, hash, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
