package models

// Roles carried in bearer tokens.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// Principal is the caller identified by a verified bearer token.
type Principal struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
