// File: internal/resolver/resolver.go
package resolver

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/uitree"
)

// Reason classifies a failed resolution.
type Reason string

const (
	ReasonNotFound    Reason = "NOT_FOUND"
	ReasonOutOfBounds Reason = "OUT_OF_BOUNDS"
)

// ResolutionError is returned when a target cannot be mapped to an on-screen point.
type ResolutionError struct {
	Reason Reason
	Target Target
	Detail string
}

func (e *ResolutionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("resolve %s: %s: %s", e.Target, e.Reason, e.Detail)
	}
	return fmt.Sprintf("resolve %s: %s", e.Target, e.Reason)
}

// Source says which part of a target produced the coordinate.
type Source string

const (
	SourcePosition Source = "position"
	SourceBox      Source = "box"
	SourceKeyword  Source = "keyword"
)

// Target describes what to act on. Position and Box are explicit coordinates
// from the planner; Keyword is searched in the snapshot. Explicit coordinates
// take precedence over the keyword.
type Target struct {
	Position *schemas.Point
	Box      *schemas.Box
	Keyword  string
}

// TargetFor extracts the target of a plan item.
func TargetFor(item schemas.PlanItem) Target {
	return Target{Position: item.Position, Box: item.Box, Keyword: item.Target}
}

// Empty reports whether the target names nothing.
func (t Target) Empty() bool {
	return t.Position == nil && t.Box == nil && t.Keyword == ""
}

func (t Target) String() string {
	switch {
	case t.Position != nil:
		return "position " + t.Position.String()
	case t.Box != nil:
		return "box " + t.Box.String()
	case t.Keyword != "":
		return fmt.Sprintf("keyword %q", t.Keyword)
	}
	return "empty target"
}

// Resolution is a concrete, validated coordinate.
type Resolution struct {
	Point  schemas.Point
	Box    *schemas.Box
	Source Source
	Node   *uitree.Node // set for keyword matches
}

// Record converts the resolution into its step-record form.
func (r Resolution) Record(item int) schemas.ResolvedTarget {
	return schemas.ResolvedTarget{Item: item, Position: r.Point, Box: r.Box, Source: string(r.Source)}
}

// Resolve maps a target to a point within the snapshot's screen extent. It
// has no side effects.
func Resolve(snap *uitree.Snapshot, t Target) (Resolution, error) {
	switch {
	case t.Position != nil:
		if !snap.Contains(*t.Position) {
			return Resolution{}, outOfBounds(snap, t, fmt.Sprintf("position %s", t.Position))
		}
		if t.Box != nil && !snap.ContainsBox(*t.Box) {
			return Resolution{}, outOfBounds(snap, t, fmt.Sprintf("box %s", t.Box))
		}
		return Resolution{Point: *t.Position, Box: t.Box, Source: SourcePosition}, nil

	case t.Box != nil:
		if !snap.ContainsBox(*t.Box) {
			return Resolution{}, outOfBounds(snap, t, fmt.Sprintf("box %s", t.Box))
		}
		return Resolution{Point: t.Box.Center(), Box: t.Box, Source: SourceBox}, nil

	case t.Keyword != "":
		return resolveKeyword(snap, t)
	}
	return Resolution{}, &ResolutionError{Reason: ReasonNotFound, Target: t, Detail: "no position, box or keyword given"}
}

func outOfBounds(snap *uitree.Snapshot, t Target, what string) error {
	return &ResolutionError{
		Reason: ReasonOutOfBounds,
		Target: t,
		Detail: fmt.Sprintf("%s outside screen %dx%d", what, snap.Width(), snap.Height()),
	}
}

// Attribute ranks used to break ties between clickable matches.
const (
	rankText = iota
	rankContentDesc
	rankResourceID
	rankNone
)

func matchRank(n uitree.Node, keyword string) int {
	switch {
	case strings.Contains(n.Text, keyword):
		return rankText
	case strings.Contains(n.ContentDesc, keyword):
		return rankContentDesc
	case strings.Contains(n.ResourceID, keyword):
		return rankResourceID
	}
	return rankNone
}

// resolveKeyword prefers clickable matches, breaking ties by attribute rank and
// then document order. Without a clickable match the first match in document
// order wins. Matching is a case-sensitive substring test. Matches whose
// center is off screen are never chosen; they only decide between NOT_FOUND
// and OUT_OF_BOUNDS when nothing else matches.
func resolveKeyword(snap *uitree.Snapshot, t Target) (Resolution, error) {
	firstAny, bestClickable, firstOff := -1, -1, -1
	bestRank := rankNone

	for i := 0; i < snap.Len(); i++ {
		n := snap.Node(i)
		if !n.HasBounds {
			continue
		}
		rank := matchRank(n, t.Keyword)
		if rank == rankNone {
			continue
		}
		if !snap.Contains(n.Bounds.Center()) {
			if firstOff == -1 {
				firstOff = i
			}
			continue
		}
		if firstAny == -1 {
			firstAny = i
		}
		if n.Clickable && rank < bestRank {
			bestClickable, bestRank = i, rank
		}
	}

	chosen := bestClickable
	if chosen == -1 {
		chosen = firstAny
	}
	if chosen == -1 {
		if firstOff != -1 {
			off := snap.Node(firstOff)
			return Resolution{}, outOfBounds(snap, t, fmt.Sprintf("node %d center %s", off.Index, off.Bounds.Center()))
		}
		return Resolution{}, &ResolutionError{Reason: ReasonNotFound, Target: t}
	}

	node := snap.Node(chosen)
	box := node.Bounds
	return Resolution{Point: box.Center(), Box: &box, Source: SourceKeyword, Node: &node}, nil
}
