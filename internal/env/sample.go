package env

import "math"

// Sample is a single environmental measurement from the barometer.
type Sample struct {
	Temperature float64 `json:"temp_c"`
	Pressure    float64 `json:"pressure_pa"`
	PressureHPa float64 `json:"pressure_hpa"`
	AltitudeM   float64 `json:"altitude_m"` // pressure altitude, standard atmosphere
}

// AltitudeFromPressure converts static pressure in pascal to pressure
// altitude in meters in the ICAO standard atmosphere.
func AltitudeFromPressure(pa float64) float64 {
	return 44330 * (1 - math.Pow(pa/101325.0, 1/5.255))
}
