// README: Service offers produced per quote request; never persisted.
package catalog

// ServiceOffer is one bookable option for a trip. Offers are ephemeral:
// they exist only within the quote that produced them.
type ServiceOffer struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	EstimatedFareMinor  int64  `json:"estimated_fare_minor"`
	EstimatedEtaMinutes int    `json:"estimated_eta_minutes"`
	// RouteSummary is an optional human-readable route annotation
	// ("23 min, 8.4 km"). Empty when no route estimator is configured.
	RouteSummary string `json:"route_summary,omitempty"`
}
