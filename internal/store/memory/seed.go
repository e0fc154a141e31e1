package memory

import (
	"context"
	"errors"
	"time"

	"resturant.app/internal/auth"
)

// AdminRole holds every seeded permission.
const AdminRole = "Admin"

// SeedPermissions is the permission catalog installed by Seed. It mirrors
// migrations/seeds.
var SeedPermissions = []auth.Permission{
	{Code: "VIEW_ORDERS", Description: "View orders"},
	{Code: "MANAGE_MENUS", Description: "Create and edit menus"},
	{Code: "MANAGE_RESERVATIONS", Description: "Manage table reservations"},
	{Code: "MANAGE_ROLES", Description: "Manage roles and their permissions"},
	{Code: "MANAGE_PERMISSIONS", Description: "Manage the permission catalog"},
	{Code: "MANAGE_USERS", Description: "Manage users and their roles"},
}

// Seed installs the default roles and permissions into st. Existing rows are
// left untouched, so Seed can run repeatedly.
func Seed(ctx context.Context, st auth.Store) error {
	return st.InTx(ctx, func(tx auth.Store) error {
		now := time.Now().UTC()
		roles := map[string]*auth.Role{}
		for _, def := range []auth.Role{
			{Name: auth.DefaultRole, Description: "Registered customer"},
			{Name: AdminRole, Description: "Full administrative access"},
		} {
			role, err := tx.Roles().FindByName(ctx, def.Name)
			if errors.Is(err, auth.ErrNotFound) {
				role = &auth.Role{Name: def.Name, Description: def.Description, CreatedAt: now}
				err = tx.Roles().Create(ctx, role)
			}
			if err != nil {
				return err
			}
			roles[def.Name] = role
		}

		existing, err := tx.Permissions().List(ctx)
		if err != nil {
			return err
		}
		byCode := make(map[string]int64, len(existing))
		for _, p := range existing {
			byCode[p.Code] = p.ID
		}
		for _, def := range SeedPermissions {
			id, ok := byCode[def.Code]
			if !ok {
				p := def
				p.CreatedAt = now
				if err := tx.Permissions().Create(ctx, &p); err != nil {
					return err
				}
				id = p.ID
			}
			if err := tx.Permissions().Link(ctx, roles[AdminRole].ID, id); err != nil {
				return err
			}
			if def.Code == "VIEW_ORDERS" {
				if err := tx.Permissions().Link(ctx, roles[auth.DefaultRole].ID, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
