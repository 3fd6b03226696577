// Package homeref maintains the home magnetic reference: the expected
// geomagnetic field vector the adaptive mag bias estimator compares
// flight samples against.
package homeref

import (
	"math"
	"sync"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// FieldFromAngles builds the navigation-frame field vector from the
// declination (degrees east of true north), inclination (degrees below
// horizontal) and total strength.
func FieldFromAngles(declinationDeg, inclinationDeg, strength float64) imu.Vec3 {
	d := declinationDeg * math.Pi / 180
	i := inclinationDeg * math.Pi / 180
	return imu.Vec3{
		strength * math.Cos(i) * math.Cos(d),
		strength * math.Cos(i) * math.Sin(d),
		strength * math.Sin(i),
	}
}

// Static is the settings-backed home reference. The home counts as set
// when the settings say so or when a GPS fix marked it; the field
// itself always comes from the configured angles.
type Static struct {
	mu     sync.RWMutex
	field  imu.Vec3
	cfgSet bool
	gpsSet bool
}

func NewStatic(s config.Settings) *Static {
	h := &Static{}
	h.Apply(s)
	return h
}

// Apply refreshes the reference from a settings snapshot. A home set
// by GPS stays set across reloads.
func (h *Static) Apply(s config.Settings) {
	h.mu.Lock()
	h.field = FieldFromAngles(s.HomeDeclinationDeg, s.HomeInclinationDeg, s.HomeFieldStrength)
	h.cfgSet = s.HomeSet
	h.mu.Unlock()
}

// MarkSet records that a position fix established the home location.
func (h *Static) MarkSet() {
	h.mu.Lock()
	h.gpsSet = true
	h.mu.Unlock()
}

// Field returns the expected field and whether the home is set.
func (h *Static) Field() (imu.Vec3, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.field, h.cfgSet || h.gpsSet
}
