// File: internal/uitree/loading.go
package uitree

// loadingMarkers are matched against the lower-cased raw dump.
var loadingMarkers = []string{"loading", "please wait", "加载中", "正在加载", "请稍候"}

// sparseTreeThreshold is the node count under which a tree hosting a WebView
// is assumed to still be rendering.
const sparseTreeThreshold = 50

// LooksLoading applies the page-load heuristics: an inaccessible node next to
// a WebView, a loading marker anywhere in the dump, or a sparse tree hosting a
// WebView.
func (s *Snapshot) LooksLoading() bool {
	if s.loadingHit {
		return true
	}
	var naf, webView bool
	for _, n := range s.nodes {
		if n.NAF {
			naf = true
		}
		if n.IsWebView() {
			webView = true
		}
	}
	if naf && webView {
		return true
	}
	return webView && len(s.nodes) < sparseTreeThreshold
}
