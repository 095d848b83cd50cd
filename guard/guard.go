// Package guard decides whether a protected view renders or redirects,
// given the current session state and the role the view requires.
//
// Decide is pure: no I/O, no clock, no store access. Role gating while the
// profile is still hydrating is a distinct outcome (RenderLoading) rather
// than a role mismatch, so a freshly signed-in user is never bounced off a
// protected page by a fetch that has not finished yet.
package guard

import (
	filmila "github.com/filmila/filmila-go"
)

// Decision is the outcome of an access check.
type Decision int

const (
	// Render grants access to the requested view.
	Render Decision = iota

	// RenderLoading grants access to a loading placeholder: the caller is
	// authenticated but role verification is pending hydration.
	RenderLoading

	// RedirectLogin sends an unauthenticated caller to the login page.
	RedirectLogin

	// RedirectHome sends an authenticated caller without the required role
	// to the home page.
	RedirectHome

	// RedirectDashboard sends a filmmaker landing on the root path to their
	// dashboard.
	RedirectDashboard
)

// String returns the decision name for logs and metrics labels.
func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case RenderLoading:
		return "render_loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case RedirectDashboard:
		return "redirect_dashboard"
	default:
		return "unknown"
	}
}

// RootPath is the path that triggers the filmmaker dashboard redirect.
const RootPath = "/"

// Input carries everything Decide needs, snapshotted by the caller.
type Input struct {
	Session        *filmila.Session
	Profile        *filmila.Profile
	ProfileLoading bool

	// RequiredRole is empty for views open to any authenticated caller.
	RequiredRole filmila.Role

	// Path is the request path, used only for the root-path dashboard rule.
	Path string
}

// Decide applies the access rules in order:
//
//  1. No session: RedirectLogin.
//  2. A role is required but the profile is still hydrating: RenderLoading.
//  3. A role is required and the profile is absent or carries a different
//     role: RedirectHome.
//  4. No role required, the caller is a filmmaker, and the path is the
//     root: RedirectDashboard.
//  5. Otherwise: Render.
func Decide(in Input) Decision {
	if in.Session == nil {
		return RedirectLogin
	}

	if in.RequiredRole != "" {
		if in.ProfileLoading {
			return RenderLoading
		}
		if in.Profile == nil || in.Profile.Role != in.RequiredRole {
			return RedirectHome
		}
		return Render
	}

	if in.Profile != nil && in.Profile.Role == filmila.RoleFilmmaker && in.Path == RootPath {
		return RedirectDashboard
	}
	return Render
}
