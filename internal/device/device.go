// File: internal/device/device.go
package device

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/droidpilot/internal/uitree"
)

// Capture is one observation of the device: the parsed hierarchy together
// with the raw artifacts it came from.
type Capture struct {
	Snapshot   *uitree.Snapshot
	XML        []byte
	Screenshot []byte // PNG; may be empty when the screen could not be grabbed
}

// Info describes the attached device.
type Info struct {
	Serial  string
	Brand   string
	Model   string
	Release string
	SDK     string
	Width   int
	Height  int
}

// Phone renders the "brand model" label stored on episodes.
func (i Info) Phone() string {
	switch {
	case i.Brand != "" && i.Model != "":
		return i.Brand + " " + i.Model
	case i.Model != "":
		return i.Model
	}
	return ""
}

// OS renders the "Android <release>" label stored on episodes.
func (i Info) OS() string {
	if i.Release == "" {
		return ""
	}
	return "Android " + i.Release
}

// ActionError wraps a failed device command.
type ActionError struct {
	Op  string
	Err error
}

func (e *ActionError) Error() string { return fmt.Sprintf("device %s: %v", e.Op, e.Err) }

func (e *ActionError) Unwrap() error { return e.Err }

// Describer is implemented by ports that can report device metadata.
type Describer interface {
	Info(ctx context.Context) (Info, error)
}

// Cleaner is implemented by ports that can close the foreground app.
type Cleaner interface {
	CleanApps(ctx context.Context) error
}
