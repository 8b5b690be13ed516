package models

import (
	"image"
	"time"
)

type CommandAction string

const (
	CommandStart CommandAction = "start"
	CommandStop  CommandAction = "stop"
)

// Camera is one entry of the camera registry. Address is the stream URI;
// it is stored under "ip" to stay readable by older registry files.
type Camera struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Address string `json:"ip"`
}

// MotionEvent is emitted once per positive detection.
type MotionEvent struct {
	CameraID   int       `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	Timestamp  time.Time `json:"timestamp"`

	// Frame that triggered the detection, used for snapshots only.
	Frame *image.RGBA `json:"-"`
}

// Message renders the text sent to observers.
func (e MotionEvent) Message() string {
	return "Motion detected " + e.CameraName
}

// StreamCommand arrives on the stream command topic.
type StreamCommand struct {
	CameraID int           `json:"camera_id"`
	Action   CommandAction `json:"action"`
}
