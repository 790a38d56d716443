package fabric

import "github.com/softsdn/network-service/internal/platform/apierr"

func errInvalid(msg string) error    { return apierr.New(apierr.Validation, msg) }
func errAuth(msg string) error       { return apierr.New(apierr.Authentication, msg) }
func errValidation(msg string) error { return apierr.New(apierr.Validation, msg) }
func errRouting(msg string) error    { return apierr.New(apierr.Routing, msg) }

// errAuthz reports a missing entitlement, naming the required
// permission so the caller knows what to request.
func errAuthz(permission string) error {
	return apierr.New(apierr.Authorization, "missing entitlement: "+permission)
}
