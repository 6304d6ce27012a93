// File: internal/agent/interfaces.go
package agent

import (
	"context"
	"time"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/apps"
	"github.com/xkilldash9x/droidpilot/internal/device"
	"github.com/xkilldash9x/droidpilot/internal/uitree"
)

// DevicePort is the device capability the executor drives. device.ADB
// implements it; it may additionally implement device.Describer and
// device.Cleaner.
type DevicePort interface {
	Capture(ctx context.Context) (*device.Capture, error)
	Tap(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	LaunchByPackage(ctx context.Context, pkg string) error
	Swipe(ctx context.Context, from, to schemas.Point, d time.Duration) error
}

// Oracle proposes the next step. Failures are reported as *OracleError.
type Oracle interface {
	Plan(ctx context.Context, req PlanRequest) (Plan, error)
}

// AppLauncher opens apps for Open items.
type AppLauncher interface {
	Launch(ctx context.Context, item schemas.PlanItem, snap *uitree.Snapshot) (*apps.LaunchResult, error)
}

// ArtifactWriter stores per-step files and returns the reference kept in the
// step record.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, episodeID, name string, data []byte) (string, error)
}
