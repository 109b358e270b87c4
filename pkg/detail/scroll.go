package detail

// NearEndThreshold is the distance from the bottom of a results list, in
// pixels, at which the next page is requested.
const NearEndThreshold = 100

// Viewport describes the scroll position of a results list.
type Viewport struct {
	ScrollTop    float64
	ClientHeight float64
	ScrollHeight float64
}

// NearEnd reports whether the bottom of the viewport is within
// NearEndThreshold of the end of the content.
func NearEnd(v Viewport) bool {
	return v.ScrollHeight-(v.ScrollTop+v.ClientHeight) <= NearEndThreshold
}
