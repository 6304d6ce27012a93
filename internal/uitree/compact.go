// File: internal/uitree/compact.go
package uitree

import (
	"strconv"
	"strings"
)

// Compact renders the nodes worth showing to a planner, one per line:
//
//	[12] android.widget.TextView text="Search" desc="" id="com.app:id/search" clickable bounds=[96,210][984,330]
//
// A node is included when it carries text, a content description, a resource id,
// or is clickable. Nodes without bounds are skipped.
func (s *Snapshot) Compact() string {
	var b strings.Builder
	for _, n := range s.nodes {
		if !n.HasBounds {
			continue
		}
		if n.Text == "" && n.ContentDesc == "" && n.ResourceID == "" && !n.Clickable {
			continue
		}
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(n.Index))
		b.WriteString("] ")
		b.WriteString(shortClass(n.Class))
		b.WriteString(" text=")
		b.WriteString(strconv.Quote(n.Text))
		b.WriteString(" desc=")
		b.WriteString(strconv.Quote(n.ContentDesc))
		b.WriteString(" id=")
		b.WriteString(strconv.Quote(n.ResourceID))
		if n.Clickable {
			b.WriteString(" clickable")
		}
		if n.Scrollable {
			b.WriteString(" scrollable")
		}
		if n.Focused {
			b.WriteString(" focused")
		}
		b.WriteString(" bounds=")
		b.WriteString(n.Bounds.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func shortClass(class string) string {
	if class == "" {
		return "?"
	}
	return class
}
