package travel

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/compscout/compscout/internal/landscape"
)

// TravelTimes builds the full n×m matrix. Requests fan out with bounded
// concurrency; every task owns exactly one cell, so writes need no locking.
// A transport failure cancels the remaining requests and no partial matrix
// is returned. Pairs without a route stay unreachable in the result.
func (c *Client) TravelTimes(ctx context.Context, origins, destinations []landscape.Location) (*landscape.Matrix, error) {
	if err := landscape.ValidateLocations(origins, destinations); err != nil {
		return nil, err
	}

	originNames := make([]string, len(origins))
	for i, o := range origins {
		originNames[i] = o.Name
	}
	destinationNames := make([]string, len(destinations))
	for j, d := range destinations {
		destinationNames[j] = d.Name
	}
	matrix := landscape.NewMatrix(originNames, destinationNames)

	departure := nextLowTrafficDeparture(c.clock.Now()).Unix()
	c.logger.Info("building travel-time matrix",
		zap.Int("origins", len(origins)),
		zap.Int("destinations", len(destinations)),
		zap.Int64("departure_unix", departure),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.MaxConcurrent)

	for i := range origins {
		for j := range destinations {
			group.Go(func() error {
				seconds, ok, err := c.route(groupCtx, origins[i].Address, destinations[j].Address, departure)
				if err != nil {
					return fmt.Errorf("pair (%d,%d): %w", i, j, err)
				}
				if ok {
					matrix.Set(i, j, seconds)
				}
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return matrix, nil
}
