package models

type Role string

const (
	RoleAdmin Role = "admin"
	RoleBuyer Role = "buyer"
)

type User struct {
	ID          string `json:"_id,omitempty"`
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        Role   `json:"role"`
}

// Session is the authenticated identity. Token and User are always set
// together; a missing session is a nil *Session.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (s *Session) HasRole(role Role) bool {
	return s != nil && s.User.Role == role
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	Role        Role   `json:"role"`
}

// AuthResult is the body of a successful login or admin-login.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
