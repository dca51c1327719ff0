package service

import "github.com/korefit/kore-payments/internal/core/domain"

// Access is the resolved purchaser access level for a checkout session.
type Access string

const (
	AccessAuthenticated Access = "authenticated"
	AccessGuest         Access = "guest"
	AccessDenied        Access = "denied"
)

// resolveAccess gates every downstream operation. A registration token only
// grants guest access when its scope matches the package currently purchased;
// a token scoped to a different package resolves to Denied.
func resolveAccess(bearerToken string, reg *domain.RegistrationToken, packageID int) Access {
	if bearerToken != "" {
		return AccessAuthenticated
	}
	if reg != nil && reg.Token != "" && reg.PackageID == packageID {
		return AccessGuest
	}
	return AccessDenied
}
