package rbac

// Role names carried in access tokens.
const (
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
	// RoleScheduler is held by the cron job that triggers sweeps. It is
	// admitted only by gates that list it.
	RoleScheduler = "scheduler"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
