package imu

// Channel identifies one sensor modality flowing through the pipeline.
type Channel uint8

const (
	Accel Channel = iota
	Gyro
	Mag
)

func (c Channel) String() string {
	switch c {
	case Accel:
		return "accel"
	case Gyro:
		return "gyro"
	case Mag:
		return "mag"
	}
	return "unknown"
}

// Vec3 is an X/Y/Z triple indexed 0..2.
type Vec3 [3]float64

// RawSample is a single uncorrected reading from one channel, in sensor
// counts. Consumed once per cycle.
type RawSample struct {
	Channel Channel `json:"channel"`

	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	Temperature float64 `json:"temperature"` // degrees C
}

// Vec returns the X/Y/Z part of the sample.
func (s RawSample) Vec() Vec3 {
	return Vec3{s.X, s.Y, s.Z}
}

// CorrectedSample is the calibrated, rotation-corrected output for one
// channel for one cycle.
type CorrectedSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	Temperature float64 `json:"temperature"` // degrees C
}

// Vec returns the X/Y/Z part of the sample.
func (s CorrectedSample) Vec() Vec3 {
	return Vec3{s.X, s.Y, s.Z}
}
