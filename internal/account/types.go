package account

import "strings"

// Role names understood by the authorization gates. Role rows are free
// text in the store, but the gates only care about these two.
const (
	RoleAdmin   = "Admin"
	RoleUsuario = "Usuario"
)

// Account is a registered user. The password hash never leaves the service.
type Account struct {
	ID           string `json:"id"`
	Nombre       string `json:"nombre"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Activo       bool   `json:"activo"`
}

// Permissions is the single coarse permission record attached to an account.
type Permissions struct {
	Escritura bool `json:"escritura"`
	Lectura   bool `json:"lectura"`
}

// RoleClaim is the wire shape of a role inside token claims and profiles.
type RoleClaim struct {
	Nombre string `json:"nombre"`
}

// ListingRow is one row of the administrative listing: account joined with
// its role and permission rows. Accounts with several roles appear once per
// role, mirroring the join.
type ListingRow struct {
	ID        string `json:"id"`
	Nombre    string `json:"nombre"`
	Email     string `json:"email"`
	Rol       string `json:"rol"`
	Escritura bool   `json:"escritura"`
	Lectura   bool   `json:"lectura"`
}

// Profile is the self-service view of a single account.
type Profile struct {
	ID       string      `json:"id"`
	Nombre   string      `json:"nombre"`
	Email    string      `json:"email"`
	Roles    []RoleClaim `json:"roles"`
	Permisos Permissions `json:"permisos"`
}

// HasRole reports whether name is present in roles, ignoring case.
func HasRole(roles []RoleClaim, name string) bool {
	for _, r := range roles {
		if strings.EqualFold(r.Nombre, name) {
			return true
		}
	}
	return false
}

// RoleClaims wraps plain role names into their claim shape.
func RoleClaims(names []string) []RoleClaim {
	claims := make([]RoleClaim, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		claims = append(claims, RoleClaim{Nombre: n})
	}
	return claims
}
