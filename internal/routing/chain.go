package routing

import (
	"context"
	"fmt"

	"backend-fieldops/internal/gps"
	"backend-fieldops/internal/shared/geo"

	"go.uber.org/zap"
)

// Calculator walks the cost-increasing strategy chain: Google Routes,
// Distance Matrix, OSRM, then local geometry. Tier failures fall through;
// local geometry cannot fail, so Route always produces a result.
type Calculator struct {
	strategies []Strategy
	local      localStrategy
	opts       Options
	logger     *zap.Logger
}

// NewCalculator wires the external clients from options. Tiers without
// credentials still sit in the chain; they degrade immediately and fall
// through, which keeps the chain shape independent of configuration.
func NewCalculator(opts Options, logger *zap.Logger) *Calculator {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		strategies: []Strategy{
			newGoogleClient(opts.GoogleAPIKey, opts.TierTimeout, opts.MaxWaypoints),
			newMatrixClient(opts.GoogleAPIKey, opts.TierTimeout, opts.InterCallDelay),
			newOSRMClient(opts.OSRMBaseURL, opts.TierTimeout),
		},
		opts:   opts,
		logger: logger,
	}
}

// NewCalculatorWithStrategies builds a calculator over an explicit chain.
// Used by tests to substitute fakes at any tier.
func NewCalculatorWithStrategies(logger *zap.Logger, strategies ...Strategy) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		strategies: strategies,
		opts:       Options{}.withDefaults(),
		logger:     logger,
	}
}

// Route analyzes the trace, decides whether external routing is worth its
// cost, and runs the chain. Never returns an error: the worst case is a
// local-geometry result carrying degradation warnings.
func (c *Calculator) Route(ctx context.Context, samples []gps.Sample, mode TravelMode) RouteResult {
	points := gps.Points(samples)
	if len(points) < 2 {
		return c.localRoute(points, nil)
	}

	pattern := gps.AnalyzeMovement(samples)
	analysis := gps.DecideRoute(pattern)
	if !analysis.ShouldUseExternalRouting {
		c.logger.Debug("external routing skipped",
			zap.String("complexity", analysis.Complexity),
			zap.Bool("static", analysis.IsStaticLocation))
		return c.localRoute(points, nil)
	}

	submission := gps.Simplify(points, gps.DefaultSimplifyEpsilon)
	if len(submission) > c.opts.MaxWaypoints {
		submission = sampleDown(submission, c.opts.MaxWaypoints)
	}

	var warnings []string
	for _, strategy := range c.strategies {
		tierCtx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
		res, err := strategy.Route(tierCtx, submission, mode)
		cancel()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s degraded: %v", strategy.Name(), err))
			c.logger.Warn("routing tier degraded",
				zap.String("tier", strategy.Name()), zap.Error(err))
			continue
		}
		res.Warnings = append(warnings, res.Warnings...)
		return res
	}

	return c.localRoute(points, warnings)
}

// Path returns a visualizable route geometry. It asks OSRM directly (the
// free tier suited to path rendering) and degrades to the raw trace
// encoded locally.
func (c *Calculator) Path(ctx context.Context, points []geo.Point, mode TravelMode) RouteResult {
	if len(points) >= 2 {
		osrm := newOSRMClient(c.opts.OSRMBaseURL, c.opts.TierTimeout)
		tierCtx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
		res, err := osrm.Route(tierCtx, points, mode)
		cancel()
		if err == nil {
			return res
		}
		c.logger.Warn("osrm path degraded", zap.Error(err))
		return c.localRoute(points, []string{fmt.Sprintf("%s degraded: %v", MethodOSRM, err)})
	}
	return c.localRoute(points, nil)
}

// LocalOnly computes a geometry-only result. It bypasses every external
// tier and is therefore available even when all routing services are down.
func (c *Calculator) LocalOnly(points []geo.Point) RouteResult {
	return c.localRoute(points, nil)
}

func (c *Calculator) localRoute(points []geo.Point, warnings []string) RouteResult {
	res, _ := c.local.Route(context.Background(), points, ModeDriving)
	res.Warnings = append(warnings, res.Warnings...)
	return res
}
