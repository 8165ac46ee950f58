package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	frames []Frame
	index  int
	err    error
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFrames sets the frames returned by successive Detect calls.
// The last frame repeats once the sequence is exhausted.
func (m *MockDetector) SetFrames(frames ...Frame) {
	m.frames = frames
	m.index = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.err = err
}

// Detect returns the next pre-configured frame or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Frame, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.frames) == 0 {
		return nil, nil
	}

	i := m.index
	if i >= len(m.frames) {
		i = len(m.frames) - 1
	} else {
		m.index++
	}

	f := m.frames[i]
	return &f, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

func lm(x, y, z float64) Landmark {
	return Landmark{X: x, Y: y, Z: z, Visibility: 1.0}
}

// NeutralPose returns a T-pose facing the camera: shoulders at y=0.3,
// hips at y=0.7, arms extended sideways at y=0.5.
func NeutralPose() Frame {
	var f Frame
	f.Joints[LeftShoulder] = lm(0.3, 0.3, 0)
	f.Joints[RightShoulder] = lm(0.7, 0.3, 0)
	f.Joints[LeftElbow] = lm(0.2, 0.5, 0)
	f.Joints[RightElbow] = lm(0.8, 0.5, 0)
	f.Joints[LeftWrist] = lm(0.1, 0.5, 0)
	f.Joints[RightWrist] = lm(0.9, 0.5, 0)
	f.Joints[LeftHip] = lm(0.35, 0.7, 0)
	f.Joints[RightHip] = lm(0.65, 0.7, 0)
	f.Joints[LeftKnee] = lm(0.35, 0.85, 0)
	f.Joints[RightKnee] = lm(0.65, 0.85, 0)
	f.Joints[LeftAnkle] = lm(0.35, 1.0, 0)
	f.Joints[RightAnkle] = lm(0.65, 1.0, 0)
	return f
}

// LeanPose returns the neutral pose with the shoulders displaced by dx while
// the hips stay put. Negative dx leans left, positive dx leans right.
func LeanPose(dx float64) Frame {
	f := NeutralPose()
	f.Joints[LeftShoulder].X += dx
	f.Joints[RightShoulder].X += dx
	return f
}

// HandsRaisedPose returns the neutral pose with both wrists above the head.
func HandsRaisedPose() Frame {
	return NeutralPose().
		With(LeftWrist, lm(0.2, 0.15, 0)).
		With(RightWrist, lm(0.8, 0.15, 0))
}

// SquatPose returns the neutral pose with the hips lowered to y=0.85,
// clearly past the squat ratio for a 0.4 torso.
func SquatPose() Frame {
	return NeutralPose().
		With(LeftHip, lm(0.35, 0.85, 0)).
		With(RightHip, lm(0.65, 0.85, 0)).
		With(LeftKnee, lm(0.35, 0.9, 0)).
		With(RightKnee, lm(0.65, 0.9, 0))
}

// CrossedArmsPose returns the neutral pose with the wrists crossed in front
// of the torso.
func CrossedArmsPose() Frame {
	return NeutralPose().
		With(LeftWrist, lm(0.65, 0.5, 0)).
		With(RightWrist, lm(0.35, 0.5, 0))
}

// PunchRightSequence returns three frames 33ms apart with the right wrist
// driving outward and toward the camera.
func PunchRightSequence() []Frame {
	step := 33 * time.Millisecond
	return []Frame{
		NeutralPose().With(RightWrist, lm(0.9, 0.5, 0)).At(0),
		NeutralPose().With(RightWrist, lm(0.95, 0.5, -0.1)).At(step),
		NeutralPose().With(RightWrist, lm(1.0, 0.5, -0.2)).At(2 * step),
	}
}

// PunchLeftSequence mirrors PunchRightSequence for the left wrist.
func PunchLeftSequence() []Frame {
	step := 33 * time.Millisecond
	return []Frame{
		NeutralPose().With(LeftWrist, lm(0.1, 0.5, 0)).At(0),
		NeutralPose().With(LeftWrist, lm(0.05, 0.5, -0.1)).At(step),
		NeutralPose().With(LeftWrist, lm(0.0, 0.5, -0.2)).At(2 * step),
	}
}
