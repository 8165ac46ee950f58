// Package detector provides body pose landmark types and the pose detection
// interface that feeds gesture recognition.
package detector

import (
	"math"
	"time"
)

// Joint identifies one tracked body joint.
type Joint int

// Body joints consumed by calibration and gesture recognition.
const (
	LeftShoulder Joint = iota
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	NumJoints
)

var jointNames = [NumJoints]string{
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// MediaPipeIndex maps each Joint to its index in the 33-point MediaPipe pose model.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
var MediaPipeIndex = [NumJoints]int{
	LeftShoulder:  11,
	RightShoulder: 12,
	LeftElbow:     13,
	RightElbow:    14,
	LeftWrist:     15,
	RightWrist:    16,
	LeftHip:       23,
	RightHip:      24,
	LeftKnee:      25,
	RightKnee:     26,
	LeftAnkle:     27,
	RightAnkle:    28,
}

// String returns the snake_case joint name.
func (j Joint) String() string {
	if j < 0 || j >= NumJoints {
		return "unknown"
	}
	return jointNames[j]
}

// Landmark is one joint's estimated position plus detection confidence.
// X and Y are normalized image coordinates in [0,1] with Y increasing downward.
// Z is relative depth; negative values are closer to the camera.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Point2D is a position in the image plane.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is an immutable snapshot of body landmarks at one instant.
// Timestamp is a monotonic offset that strictly increases between frames.
type Frame struct {
	Joints    [NumJoints]Landmark `json:"joints"`
	Timestamp time.Duration       `json:"timestamp"`
}

// Get returns the landmark for joint j.
func (f Frame) Get(j Joint) Landmark {
	return f.Joints[j]
}

// With returns a copy of the frame with joint j replaced.
func (f Frame) With(j Joint, l Landmark) Frame {
	f.Joints[j] = l
	return f
}

// At returns a copy of the frame with a different timestamp.
func (f Frame) At(ts time.Duration) Frame {
	f.Timestamp = ts
	return f
}

func midpoint(a, b Landmark) Point2D {
	return Point2D{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func distance2D(a, b Point2D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// HipCenter returns the midpoint of the left and right hips.
func (f Frame) HipCenter() Point2D {
	return midpoint(f.Joints[LeftHip], f.Joints[RightHip])
}

// ShoulderCenter returns the midpoint of the left and right shoulders.
func (f Frame) ShoulderCenter() Point2D {
	return midpoint(f.Joints[LeftShoulder], f.Joints[RightShoulder])
}

// TorsoTilt returns the angle in degrees between the hip-to-shoulder vector and
// image-up. An upright torso is 0; shoulders displaced to the left of the hips
// give a negative angle, to the right a positive one.
func (f Frame) TorsoTilt() float64 {
	hip := f.HipCenter()
	shoulder := f.ShoulderCenter()

	// Image Y grows downward, so the upward component is hip.Y - shoulder.Y.
	dx := shoulder.X - hip.X
	up := hip.Y - shoulder.Y
	return math.Atan2(dx, up) * 180 / math.Pi
}

// ShoulderWidth returns the Euclidean distance between the shoulders.
func (f Frame) ShoulderWidth() float64 {
	l, r := f.Joints[LeftShoulder], f.Joints[RightShoulder]
	return distance2D(Point2D{X: l.X, Y: l.Y}, Point2D{X: r.X, Y: r.Y})
}

// TorsoLength returns the Euclidean distance from shoulder center to hip center.
func (f Frame) TorsoLength() float64 {
	return distance2D(f.ShoulderCenter(), f.HipCenter())
}

// WristDepth returns the mean Z of both wrists.
func (f Frame) WristDepth() float64 {
	return (f.Joints[LeftWrist].Z + f.Joints[RightWrist].Z) / 2
}
