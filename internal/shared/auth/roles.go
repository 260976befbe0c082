package auth

// Role is the closed set of principal roles. Any value outside this set is
// rejected at token verification.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role claim. An empty claim maps to RolePatient for
// tokens issued before the role claim existed.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleAdmin:
		return Role(s), true
	case "":
		return RolePatient, true
	}
	return "", false
}

func (r Role) String() string {
	return string(r)
}
