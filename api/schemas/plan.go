// File: api/schemas/plan.go
package schemas

import (
	"errors"
	"fmt"
)

// ActionType tags a plan item. Every item carries exactly one tag and the
// fields relevant to it; the executor dispatches on this value.
type ActionType string

const (
	ActionTap    ActionType = "tap"
	ActionTyping ActionType = "typing"
	ActionOpen   ActionType = "open"
	ActionEnd    ActionType = "end"
	ActionSwipe  ActionType = "swipe"
	ActionWait   ActionType = "wait"
)

// Known reports whether t is one of the supported action tags.
func (t ActionType) Known() bool {
	switch t {
	case ActionTap, ActionTyping, ActionOpen, ActionEnd, ActionSwipe, ActionWait:
		return true
	}
	return false
}

// Point is a screen coordinate serialized as [x, y].
type Point [2]int

// X returns the horizontal component.
func (p Point) X() int { return p[0] }

// Y returns the vertical component.
func (p Point) Y() int { return p[1] }

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p[0], p[1]) }

// Box is a rectangle given by its top-left and bottom-right corners,
// serialized as [[x1, y1], [x2, y2]].
type Box [2]Point

// Center returns the midpoint of the rectangle. Go integer division truncates
// toward zero on each axis.
func (b Box) Center() Point {
	return Point{(b[0][0] + b[1][0]) / 2, (b[0][1] + b[1][1]) / 2}
}

// Width returns x2 - x1.
func (b Box) Width() int { return b[1][0] - b[0][0] }

// Height returns y2 - y1.
func (b Box) Height() int { return b[1][1] - b[0][1] }

func (b Box) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b[0][0], b[0][1], b[1][0], b[1][1])
}

// PlanItem is one atomic action proposed by the plan oracle.
//
// Payload fields per tag:
//
//	tap     Position | Box | Target, Times
//	typing  Text, optional Position | Box | Target to focus first
//	open    App and/or Package, optional Position | Box | Target for the icon
//	swipe   StartPosition, StopPosition, Duration
//	wait    Duration
//	end     none
type PlanItem struct {
	Description   string     `json:"description"`
	Type          ActionType `json:"type"`
	Position      *Point     `json:"position,omitempty"`
	Box           *Box       `json:"box,omitempty"`
	Target        string     `json:"target,omitempty"` // keyword searched in text, content-desc and resource-id
	Text          string     `json:"text,omitempty"`
	App           string     `json:"app,omitempty"`
	Package       string     `json:"package,omitempty"`
	Times         int        `json:"times,omitempty"`
	StartPosition *Point     `json:"start_position,omitempty"`
	StopPosition  *Point     `json:"stop_position,omitempty"`
	Duration      int        `json:"duration,omitempty"` // milliseconds
}

// HasTarget reports whether the item names something on screen to resolve.
func (p PlanItem) HasTarget() bool {
	return p.Position != nil || p.Box != nil || p.Target != ""
}

// Validate checks the per-tag payload. The executor runs it on every item it
// receives, whichever oracle produced the plan.
func (p PlanItem) Validate() error {
	if p.Times < 0 {
		return errors.New("times must not be negative")
	}
	if p.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	switch p.Type {
	case ActionTap:
		if !p.HasTarget() {
			return errors.New("tap needs a position, box or target")
		}
	case ActionTyping:
		if p.Text == "" {
			return errors.New("typing needs text")
		}
	case ActionOpen:
		if p.App == "" && p.Package == "" {
			return errors.New("open needs an app or a package")
		}
	case ActionSwipe:
		if p.StartPosition == nil || p.StopPosition == nil {
			return errors.New("swipe needs start_position and stop_position")
		}
	case ActionEnd, ActionWait:
	default:
		return fmt.Errorf("unsupported action type %q", p.Type)
	}
	return nil
}
