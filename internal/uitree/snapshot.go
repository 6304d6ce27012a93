// File: internal/uitree/snapshot.go
package uitree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/xkilldash9x/droidpilot/api/schemas"
)

var boundsRegex = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// Node is one element of a uiautomator hierarchy dump.
type Node struct {
	Index         int // position in document order
	Depth         int
	Parent        int // -1 for top-level nodes
	Text          string
	ContentDesc   string
	ResourceID    string
	Class         string
	Package       string
	Clickable     bool
	LongClickable bool
	Scrollable    bool
	Enabled       bool
	Focused       bool
	Password      bool
	NAF           bool // "not accessibility friendly"
	Bounds        schemas.Box
	HasBounds     bool
}

// IsWebView reports whether the node hosts web content.
func (n Node) IsWebView() bool {
	return strings.Contains(n.Class, "WebView")
}

// Snapshot is an immutable capture of the UI hierarchy at one instant. The
// forest is flattened in document order; Depth and Parent keep the shape.
type Snapshot struct {
	nodes      []Node
	width      int
	height     int
	capturedAt time.Time
	loadingHit bool
}

// New builds a snapshot from already-parsed nodes. Index and Parent are
// taken as given; width and height are the screen extent.
func New(nodes []Node, width, height int) *Snapshot {
	cp := make([]Node, len(nodes))
	copy(cp, nodes)
	return &Snapshot{nodes: cp, width: width, height: height, capturedAt: time.Now().UTC()}
}

// Parse reads a uiautomator XML dump. When width or height is not positive the
// screen extent is inferred from the largest top-level bounds.
func Parse(data []byte, width, height int) (*Snapshot, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse ui hierarchy: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("ui hierarchy is empty")
	}

	s := &Snapshot{width: width, height: height, capturedAt: time.Now().UTC()}

	// The dump is usually rooted at <hierarchy>, but a bare <node> root is accepted.
	if root.Tag == "node" {
		s.walk(root, 0, -1)
	} else {
		for _, child := range root.SelectElements("node") {
			s.walk(child, 0, -1)
		}
	}

	if s.width <= 0 || s.height <= 0 {
		s.inferExtent()
	}

	lower := strings.ToLower(string(data))
	for _, marker := range loadingMarkers {
		if strings.Contains(lower, marker) {
			s.loadingHit = true
			break
		}
	}
	return s, nil
}

func (s *Snapshot) walk(el *etree.Element, depth, parent int) {
	n := Node{
		Index:         len(s.nodes),
		Depth:         depth,
		Parent:        parent,
		Text:          el.SelectAttrValue("text", ""),
		ContentDesc:   el.SelectAttrValue("content-desc", ""),
		ResourceID:    el.SelectAttrValue("resource-id", ""),
		Class:         el.SelectAttrValue("class", ""),
		Package:       el.SelectAttrValue("package", ""),
		Clickable:     boolAttr(el, "clickable"),
		LongClickable: boolAttr(el, "long-clickable"),
		Scrollable:    boolAttr(el, "scrollable"),
		Enabled:       boolAttr(el, "enabled"),
		Focused:       boolAttr(el, "focused"),
		Password:      boolAttr(el, "password"),
		NAF:           boolAttr(el, "NAF"),
	}
	if b, err := ParseBounds(el.SelectAttrValue("bounds", "")); err == nil {
		n.Bounds = b
		n.HasBounds = true
	}
	s.nodes = append(s.nodes, n)

	for _, child := range el.SelectElements("node") {
		s.walk(child, depth+1, n.Index)
	}
}

func boolAttr(el *etree.Element, key string) bool {
	return el.SelectAttrValue(key, "false") == "true"
}

func (s *Snapshot) inferExtent() {
	for _, n := range s.nodes {
		if n.Parent != -1 || !n.HasBounds {
			continue
		}
		if n.Bounds[1][0] > s.width {
			s.width = n.Bounds[1][0]
		}
		if n.Bounds[1][1] > s.height {
			s.height = n.Bounds[1][1]
		}
	}
}

// ParseBounds parses the uiautomator bounds format "[x1,y1][x2,y2]".
func ParseBounds(raw string) (schemas.Box, error) {
	m := boundsRegex.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return schemas.Box{}, fmt.Errorf("malformed bounds %q", raw)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return schemas.Box{}, fmt.Errorf("malformed bounds %q: %w", raw, err)
		}
		v[i] = n
	}
	return schemas.Box{{v[0], v[1]}, {v[2], v[3]}}, nil
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Node returns the node at document position i.
func (s *Snapshot) Node(i int) Node { return s.nodes[i] }

// Nodes returns a copy of all nodes in document order.
func (s *Snapshot) Nodes() []Node {
	cp := make([]Node, len(s.nodes))
	copy(cp, s.nodes)
	return cp
}

// Width is the screen width in pixels.
func (s *Snapshot) Width() int { return s.width }

// Height is the screen height in pixels.
func (s *Snapshot) Height() int { return s.height }

// CapturedAt is when the snapshot was taken.
func (s *Snapshot) CapturedAt() time.Time { return s.capturedAt }

// Contains reports whether p lies on screen. Both edges are inclusive.
func (s *Snapshot) Contains(p schemas.Point) bool {
	return p.X() >= 0 && p.X() <= s.width && p.Y() >= 0 && p.Y() <= s.height
}

// ContainsBox reports whether both corners of b lie on screen.
func (s *Snapshot) ContainsBox(b schemas.Box) bool {
	return s.Contains(b[0]) && s.Contains(b[1])
}
