// File: internal/apps/launcher.go
package apps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/resolver"
	"github.com/xkilldash9x/droidpilot/internal/uitree"
)

// Tier identifies one launch mechanism, in the order they are tried.
type Tier int

const (
	TierOraclePackage Tier = iota + 1
	TierRegistry
	TierIconTap
)

func (t Tier) String() string {
	switch t {
	case TierOraclePackage:
		return "oracle_package"
	case TierRegistry:
		return "registry"
	case TierIconTap:
		return "icon_tap"
	}
	return "tier_" + strconv.Itoa(int(t))
}

// Tier outcomes.
const (
	StatusSkipped   = "skipped"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ReasonAllTiersFailed is the only LaunchError reason.
const ReasonAllTiersFailed = "ALL_TIERS_FAILED"

// LaunchError is returned when no tier opened the app.
type LaunchError struct {
	Reason   string
	App      string
	Attempts []schemas.LaunchAttempt
}

func (e *LaunchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s(%s)", Tier(a.Tier), a.Status, a.Reason))
	}
	return fmt.Sprintf("launch %q: %s [%s]", e.App, e.Reason, strings.Join(parts, ", "))
}

// Device is the subset of the device port the launcher drives.
type Device interface {
	LaunchByPackage(ctx context.Context, pkg string) error
	Tap(ctx context.Context, x, y int) error
}

// TierObserver receives every tier outcome; observability.Metrics satisfies it.
type TierObserver interface {
	ObserveLaunchTier(tier, status string)
}

// LaunchResult describes a successful launch.
type LaunchResult struct {
	Tier       Tier
	Package    string
	Resolution *resolver.Resolution
	Attempts   []schemas.LaunchAttempt
}

// Launcher opens apps through oracle package, registry lookup and finally an
// icon tap, stopping at the first tier that succeeds.
type Launcher struct {
	registry *Registry
	device   Device
	observer TierObserver
	logger   *zap.Logger
}

// NewLauncher builds a launcher over the given registry and device. observer may be nil.
func NewLauncher(registry *Registry, device Device, observer TierObserver, logger *zap.Logger) *Launcher {
	return &Launcher{
		registry: registry,
		device:   device,
		observer: observer,
		logger:   logger.Named("launcher"),
	}
}

// Launch runs the tiers for an open item against the current snapshot.
func (l *Launcher) Launch(ctx context.Context, item schemas.PlanItem, snap *uitree.Snapshot) (*LaunchResult, error) {
	app := item.App
	if app == "" {
		app = item.Package
	}
	var attempts []schemas.LaunchAttempt
	record := func(a schemas.LaunchAttempt) {
		a.App = app
		attempts = append(attempts, a)
		if l.observer != nil {
			l.observer.ObserveLaunchTier(strconv.Itoa(a.Tier), a.Status)
		}
		l.logger.Debug("Launch tier finished.",
			zap.String("app", app),
			zap.Stringer("tier", Tier(a.Tier)),
			zap.String("status", a.Status),
			zap.String("reason", a.Reason))
	}

	// Tier 1: package named by the oracle.
	if item.Package == "" {
		record(schemas.LaunchAttempt{Tier: int(TierOraclePackage), Status: StatusSkipped, Reason: "no package in plan"})
	} else if err := l.device.LaunchByPackage(ctx, item.Package); err != nil {
		record(schemas.LaunchAttempt{Tier: int(TierOraclePackage), Status: StatusFailed, Package: item.Package, Reason: err.Error()})
	} else {
		record(schemas.LaunchAttempt{Tier: int(TierOraclePackage), Status: StatusSucceeded, Package: item.Package})
		return &LaunchResult{Tier: TierOraclePackage, Package: item.Package, Attempts: attempts}, nil
	}

	// Tier 2: registry lookup by display name.
	if item.App == "" {
		record(schemas.LaunchAttempt{Tier: int(TierRegistry), Status: StatusSkipped, Reason: "no app name in plan"})
	} else if pkg, ok := l.registry.Lookup(item.App); !ok {
		record(schemas.LaunchAttempt{Tier: int(TierRegistry), Status: StatusSkipped, Reason: "app not registered"})
	} else if err := l.device.LaunchByPackage(ctx, pkg); err != nil {
		record(schemas.LaunchAttempt{Tier: int(TierRegistry), Status: StatusFailed, Package: pkg, Reason: err.Error()})
	} else {
		record(schemas.LaunchAttempt{Tier: int(TierRegistry), Status: StatusSucceeded, Package: pkg})
		return &LaunchResult{Tier: TierRegistry, Package: pkg, Attempts: attempts}, nil
	}

	// Tier 3: tap the icon the planner pointed at.
	target := resolver.TargetFor(item)
	if target.Empty() || snap == nil {
		record(schemas.LaunchAttempt{Tier: int(TierIconTap), Status: StatusSkipped, Reason: "no icon position in plan"})
	} else if res, err := resolver.Resolve(snap, target); err != nil {
		record(schemas.LaunchAttempt{Tier: int(TierIconTap), Status: StatusFailed, Reason: err.Error()})
	} else if err := l.device.Tap(ctx, res.Point.X(), res.Point.Y()); err != nil {
		pt := res.Point
		record(schemas.LaunchAttempt{Tier: int(TierIconTap), Status: StatusFailed, Point: &pt, Reason: err.Error()})
	} else {
		pt := res.Point
		record(schemas.LaunchAttempt{Tier: int(TierIconTap), Status: StatusSucceeded, Point: &pt})
		return &LaunchResult{Tier: TierIconTap, Resolution: &res, Attempts: attempts}, nil
	}

	l.logger.Warn("All launch tiers failed.", zap.String("app", app))
	return nil, &LaunchError{Reason: ReasonAllTiersFailed, App: app, Attempts: attempts}
}
