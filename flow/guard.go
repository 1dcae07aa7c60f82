package flow

import "github.com/wildshoppers/portal/session"

// Route paths the guard reasons about.
const (
	PathRoot             = "/"
	PathLogin            = "/login"
	PathSignup           = "/signup"
	PathForgotPassword   = "/forgot-password"
	PathStudentDashboard = "/student-dashboard"
	PathAdminDashboard   = "/admin-dashboard"
	PathBrowse           = "/browse"
	PathReservations     = "/reservations"
	PathProfile          = "/profile"
)

// Action is the guard's decision for a request.
type Action int

const (
	// ActionAllow renders the requested route.
	ActionAllow Action = iota
	// ActionRedirect sends the user to Verdict.Target instead.
	ActionRedirect
	// ActionWait means session restoration has not finished; show the
	// loading state and do not commit to a destination yet.
	ActionWait
)

// Verdict is the guard's answer for one path and state.
type Verdict struct {
	Action Action
	Target string
}

func allow() Verdict {
	return Verdict{Action: ActionAllow}
}

func redirect(to string) Verdict {
	return Verdict{Action: ActionRedirect, Target: to}
}

func isPublic(path string) bool {
	switch path {
	case PathLogin, PathSignup, PathForgotPassword:
		return true
	}
	return false
}

func isStaffOnly(path string) bool {
	return path == PathAdminDashboard
}

// Evaluate decides what to do with a navigation given the current session
// state. It is a pure function; all context arrives in its arguments.
//
// The recovery rule comes first on purpose: while a password recovery is in
// flight every navigation lands on the recovery screen, even for routes the
// user could otherwise access. Without that a recovery session would count
// as "authenticated" and the redirect-away-from-login rule would yank the
// user off the reset form.
func Evaluate(path string, state session.State) Verdict {
	if state.RecoveryInProgress {
		if path == PathForgotPassword {
			return allow()
		}
		return redirect(PathForgotPassword)
	}

	if state.Initializing {
		return Verdict{Action: ActionWait}
	}

	if !state.Authenticated() {
		if isPublic(path) {
			return allow()
		}
		return redirect(PathLogin)
	}

	identity := state.Identity

	if isPublic(path) || path == PathRoot {
		return redirect(identity.DashboardPath())
	}

	if isStaffOnly(path) && identity.Role != session.RoleStaff {
		return redirect(identity.DashboardPath())
	}

	if path == PathStudentDashboard && identity.Role == session.RoleStaff {
		return redirect(identity.DashboardPath())
	}

	return allow()
}
