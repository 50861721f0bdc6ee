package model

// Product codes served by the gateway's version discovery endpoint.
// Discovery must yield a version for both before the client is usable.
const (
	ProductPortal  = "portal"
	ProductWidgets = "widgets"
)

// APIVersions holds the versions announced by the gateway for each
// product surface. Portal selects the path prefix for API calls.
type APIVersions struct {
	Portal  string
	Widgets string
}
