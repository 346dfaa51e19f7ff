package rbac

// Actor is the authenticated user acting on a request.
type Actor struct {
	ID        uint
	Username  string
	RoleID    int
	ClientIP  string
	UserAgent string
}

// UserID returns the actor id as a nullable column value; zero means system.
func (a Actor) UserID() *uint {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

// RoleName resolves the actor's role via the static role table.
func (a Actor) RoleName() string {
	return RoleName(a.RoleID)
}
