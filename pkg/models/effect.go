package models

// Effect mode constants.
const (
	EffectModeBlur    = "blur"
	EffectModeInpaint = "inpaint"
)

// Rect is a region of interest in source pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EffectParams describes the visual-effect rendering requested from the
// backend for a preview. Any change to these invalidates the current preview
// request and schedules a new debounced fetch.
type EffectParams struct {
	Mode        string  `json:"mode"`
	Strength    int     `json:"strength"`
	PaddingX    int     `json:"padding_x"`
	PaddingY    int     `json:"padding_y"`
	Region      Rect    `json:"region"`
	ScaleFactor float64 `json:"scale_factor"`
}
