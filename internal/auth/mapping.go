package auth

import "time"

// UserSummary is the user view returned with a session.
type UserSummary struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	FullName    string   `json:"fullName"`
	PhoneNumber string   `json:"phoneNumber"`
	Roles       []string `json:"roles"`
}

// Session is the result of every successful sign-in or refresh.
type Session struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAtUTC time.Time   `json:"expiresAtUtc"`
	User         UserSummary `json:"user"`
}

// UserDTO is the administrative view of a user.
type UserDTO struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"fullName"`
	PhoneNumber    string    `json:"phoneNumber"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	IsDeleted      bool      `json:"isDeleted"`
	CreatedAt      time.Time `json:"createdAt"`
	Roles          []string  `json:"roles,omitempty"`
}

// UserPage is one page of the user listing.
type UserPage struct {
	Items    []UserDTO `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Total    int       `json:"total"`
}

type RoleDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type PermissionDTO struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

type RoleWithPermissionsDTO struct {
	RoleDTO
	Permissions []PermissionDTO `json:"permissions"`
}

func ToUserSummary(u *User, roles []string) UserSummary {
	if roles == nil {
		roles = []string{}
	}
	return UserSummary{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		PhoneNumber: u.PhoneNumber,
		Roles:       roles,
	}
}

func ToUserDTO(u User, roles []string) UserDTO {
	return UserDTO{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		PhoneNumber:    u.PhoneNumber,
		AvatarURL:      u.AvatarURL,
		EmailConfirmed: u.EmailConfirmed,
		IsDeleted:      u.IsDeleted,
		CreatedAt:      u.CreatedAt,
		Roles:          roles,
	}
}

func ToRoleDTO(r Role) RoleDTO {
	return RoleDTO{ID: r.ID, Name: r.Name, Description: r.Description}
}

func ToPermissionDTO(p Permission) PermissionDTO {
	return PermissionDTO{ID: p.ID, Code: p.Code, Description: p.Description}
}

func ToPermissionDTOs(perms []Permission) []PermissionDTO {
	out := make([]PermissionDTO, 0, len(perms))
	for _, p := range perms {
		out = append(out, ToPermissionDTO(p))
	}
	return out
}

func ToRoleWithPermissionsDTO(r Role, perms []Permission) RoleWithPermissionsDTO {
	return RoleWithPermissionsDTO{RoleDTO: ToRoleDTO(r), Permissions: ToPermissionDTOs(perms)}
}

func ToSessionResponse(access AccessToken, refresh string, u *User, roles []string) Session {
	return Session{
		AccessToken:  access.Token,
		RefreshToken: refresh,
		ExpiresAtUTC: access.ExpiresAt.UTC(),
		User:         ToUserSummary(u, roles),
	}
}
