package models

// Zoom level bounds for the timeline view.
const (
	MinZoomLevel = 1.0
	MaxZoomLevel = 20.0
)

// ViewState is the per-session timeline view. It is owned exclusively by the
// editor session and mutated only through the timeline controllers.
type ViewState struct {
	ZoomLevel    float64 `json:"zoom_level"`
	ScrollOffset float64 `json:"scroll_offset"`
	FrameIndex   int     `json:"frame_index"`
	IsPlaying    bool    `json:"is_playing"`
}

// DefaultViewState returns the view a fresh session starts with.
func DefaultViewState() ViewState {
	return ViewState{ZoomLevel: MinZoomLevel}
}
