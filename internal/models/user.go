package models

// Role identifies the dashboard a user is entitled to.
type Role string

const (
	RoleSuperAdmin     Role = "SUPERADMIN"
	RoleAdmin          Role = "ADMIN"
	RoleStudent        Role = "STUDENT"
	RoleRepresentative Role = "REPRESENTATIVE"
)

// IsValid returns true for known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleStudent, RoleRepresentative:
		return true
	}
	return false
}

// User is the identity record held alongside the session token.
// It is owned by the session store and mutated only through explicit
// update operations, never partially in place.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	EntityID  string `json:"entity_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Clone returns a copy of the user so callers cannot mutate the
// store-owned record through a shared pointer.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}

// UserUpdate carries a partial update of profile fields. Nil fields are
// left untouched by the merge.
type UserUpdate struct {
	Name      *string
	Email     *string
	Phone     *string
	AvatarURL *string
}

// Apply merges the non-nil fields into the user record
func (p UserUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
}

// Session is the authenticated state: a bearer token and the user it
// belongs to. The user must never exist without a valid token; the
// session store enforces that invariant.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// PendingCredentials holds the email/password pair between a login call
// that signalled "second factor required" and the follow-up verification.
// Never persisted anywhere.
type PendingCredentials struct {
	Email    string
	Password string
}
