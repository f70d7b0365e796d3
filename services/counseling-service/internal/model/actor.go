package model

type Role string

const (
	RoleAdmin       Role = "Administrador"
	RolePastor      Role = "Pastor"
	RoleCoordinator Role = "Coordenador"
	RoleCounselor   Role = "Conselheiro"
	RoleMember      Role = "Membro"
)

// Supervisor roles may act on any appointment of their church.
func (r Role) Supervisor() bool {
	switch r {
	case RoleAdmin, RolePastor, RoleCoordinator:
		return true
	}
	return false
}

// Actor is the acting user as reported by the identity provider.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	ChurchID string `json:"churchId"`
}

// DisplayName is what gets written into activities and meetings.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
