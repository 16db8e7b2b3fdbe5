package models

// Job event types pushed by the extraction backend.
const (
	JobEventLog            = "log"
	JobEventProgress       = "progress"
	JobEventSubtitleNew    = "subtitle_new"
	JobEventSubtitleUpdate = "subtitle_update"
	JobEventFinish         = "finish"
)

// JobProgress reports extraction progress over the push channel.
type JobProgress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	ETA     float64 `json:"eta"`
}

// JobEvent is one message on the push channel, scoped to the client that
// started the extraction job. Exactly one payload field is set, matching Type.
type JobEvent struct {
	ClientID string       `json:"client_id"`
	Type     string       `json:"type"`
	Log      string       `json:"log,omitempty"`
	Progress *JobProgress `json:"progress,omitempty"`
	Subtitle *Annotation  `json:"subtitle,omitempty"`
	Success  bool         `json:"success,omitempty"`
}
