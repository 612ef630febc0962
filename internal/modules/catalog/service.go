// README: Service catalog turns a pickup/dropoff pair into ranked bookable offers.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"caretransit/internal/provider"
	"caretransit/internal/types"
)

type Quoter interface {
	Quote(ctx context.Context, pickup, dropoff types.Point) ([]provider.Offer, error)
}

// RouteEstimator is optional; when present, offers are annotated with a
// route summary. Estimation failures never fail the listing.
type RouteEstimator interface {
	GetTravelEstimate(ctx context.Context, origin, destination string) (time.Duration, string, error)
}

type Service struct {
	quoter Quoter
	routes RouteEstimator
	log    *zap.Logger
}

func NewService(quoter Quoter, routes RouteEstimator, log *zap.Logger) *Service {
	return &Service{quoter: quoter, routes: routes, log: log}
}

// ListOffers returns the provider's offers for a trip, cheapest first with
// ties broken by shorter ETA. An unreachable provider or an empty quote
// yields an empty slice, never an error: having no offers is a valid outcome.
// Each call hits the provider fresh; results are not cached here.
func (s *Service) ListOffers(ctx context.Context, pickup, dropoff types.Location) []ServiceOffer {
	raw, err := s.quoter.Quote(ctx, pickup.Point, dropoff.Point)
	if err != nil {
		s.log.Warn("quote failed, returning no offers", zap.Error(err))
		return []ServiceOffer{}
	}

	offers := make([]ServiceOffer, 0, len(raw))
	for _, o := range raw {
		offers = append(offers, ServiceOffer{
			ID:                  o.ID,
			DisplayName:         o.DisplayName,
			EstimatedFareMinor:  o.EstimatedFareMinor,
			EstimatedEtaMinutes: o.EstimatedEtaMinutes,
		})
	}
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].EstimatedFareMinor != offers[j].EstimatedFareMinor {
			return offers[i].EstimatedFareMinor < offers[j].EstimatedFareMinor
		}
		return offers[i].EstimatedEtaMinutes < offers[j].EstimatedEtaMinutes
	})

	if s.routes != nil && len(offers) > 0 {
		origin := fmt.Sprintf("%f,%f", pickup.Point.Lat, pickup.Point.Lng)
		dest := fmt.Sprintf("%f,%f", dropoff.Point.Lat, dropoff.Point.Lng)
		if dur, dist, err := s.routes.GetTravelEstimate(ctx, origin, dest); err == nil {
			summary := fmt.Sprintf("%d min, %s", int(dur.Minutes()), dist)
			for i := range offers {
				offers[i].RouteSummary = summary
			}
		} else {
			s.log.Debug("route estimate unavailable", zap.Error(err))
		}
	}
	return offers
}
