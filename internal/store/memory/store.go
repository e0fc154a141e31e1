// Package memory is an in-process auth.Store. Transactions copy the state,
// run against the copy and swap it in on success, so a failed transaction
// leaves nothing behind.
package memory

import (
	"context"
	"sync"

	"resturant.app/internal/auth"
)

var _ auth.Store = (*Store)(nil)

type state struct {
	users      map[string]auth.User
	userRoles  map[string]map[string]struct{}
	roles      map[string]auth.Role
	perms      map[int64]auth.Permission
	nextPermID int64
	rolePerms  map[string]map[int64]struct{}
	refresh    map[string]auth.RefreshToken
	logins     map[string]auth.ExternalLogin
	userTokens map[string]auth.UserToken
}

func newState() *state {
	return &state{
		users:      make(map[string]auth.User),
		userRoles:  make(map[string]map[string]struct{}),
		roles:      make(map[string]auth.Role),
		perms:      make(map[int64]auth.Permission),
		rolePerms:  make(map[string]map[int64]struct{}),
		refresh:    make(map[string]auth.RefreshToken),
		logins:     make(map[string]auth.ExternalLogin),
		userTokens: make(map[string]auth.UserToken),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextPermID = s.nextPermID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, set := range s.userRoles {
		c.userRoles[k] = cloneSet(set)
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.perms {
		c.perms[k] = v
	}
	for k, set := range s.rolePerms {
		c.rolePerms[k] = cloneSet(set)
	}
	for k, v := range s.refresh {
		c.refresh[k] = v
	}
	for k, v := range s.logins {
		c.logins[k] = v
	}
	for k, v := range s.userTokens {
		c.userTokens[k] = v
	}
	return c
}

func cloneSet[K comparable](in map[K]struct{}) map[K]struct{} {
	out := make(map[K]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// runner executes f against the state it guards.
type runner interface {
	run(f func(*state) error) error
}

// Store is safe for concurrent use. Transactions are serialized.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) run(f func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.st)
}

func (s *Store) Users() auth.UserStore                   { return userStore{s} }
func (s *Store) Roles() auth.RoleStore                   { return roleStore{s} }
func (s *Store) Permissions() auth.PermissionStore       { return permissionStore{s} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore   { return refreshStore{s} }
func (s *Store) ExternalLogins() auth.ExternalLoginStore { return loginStore{s} }
func (s *Store) UserTokens() auth.UserTokenStore         { return userTokenStore{s} }

// InTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(auth.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &txStore{st: s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// txStore is the view handed to InTx callbacks. Its caller holds the
// parent's lock.
type txStore struct {
	st *state
}

func (t *txStore) run(f func(*state) error) error { return f(t.st) }

func (t *txStore) Users() auth.UserStore                   { return userStore{t} }
func (t *txStore) Roles() auth.RoleStore                   { return roleStore{t} }
func (t *txStore) Permissions() auth.PermissionStore       { return permissionStore{t} }
func (t *txStore) RefreshTokens() auth.RefreshTokenStore   { return refreshStore{t} }
func (t *txStore) ExternalLogins() auth.ExternalLoginStore { return loginStore{t} }
func (t *txStore) UserTokens() auth.UserTokenStore         { return userTokenStore{t} }

// InTx joins the running transaction.
func (t *txStore) InTx(_ context.Context, fn func(auth.Store) error) error {
	return fn(t)
}
