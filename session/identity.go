package session

// Role is the account role assigned at registration. It never changes for
// the lifetime of an account; the identity provider enforces that.
type Role string

const (
	// RoleStudent is the buyer-facing role.
	RoleStudent Role = "student"
	// RoleStaff gets the admin dashboard.
	RoleStaff Role = "staff"
)

// ParseRole maps raw provider metadata to a Role, defaulting to student the
// same way the storefront treats accounts with no user_type.
func ParseRole(s string) Role {
	if s == string(RoleStaff) {
		return RoleStaff
	}
	return RoleStudent
}

// Identity is the signed-in account as the storefront sees it: provider
// subject plus the profile columns screens render.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	StudentID   string `json:"student_id,omitempty"`
	StaffID     string `json:"staff_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
}

// DashboardPath is the role-matched landing route.
func (i Identity) DashboardPath() string {
	if i.Role == RoleStaff {
		return "/admin-dashboard"
	}
	return "/student-dashboard"
}

// Equal compares all attributes. Used to keep SetIdentity idempotent.
func (i Identity) Equal(other Identity) bool {
	return i == other
}
