// Package display drives a 128x64 SSD1306 status screen over I2C,
// cycling through attitude, field, and position pages.
package display

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/publish"
)

// AttitudeSource reports the current roll/pitch/yaw in degrees.
type AttitudeSource interface {
	RPY() (roll, pitch, yaw float64)
}

// StateSource hands out the latest published values.
type StateSource interface {
	State() publish.State
}

const pageCount = 3

// Display owns the screen and repaints it on its own interval.
type Display struct {
	dev      *ssd1306.Dev
	bus      i2c.BusCloser
	clk      clock.Clock
	interval time.Duration
	att      AttitudeSource
	state    StateSource

	page        int
	ticks       int
	rotateEvery int
}

// New opens the I2C bus and initializes the screen.
func New(s config.Settings, clk clock.Clock, att AttitudeSource, state StateSource) (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", s.DisplayI2CAddr)

	rotate := 3000 / s.DisplayUpdateInterval
	if rotate < 1 {
		rotate = 1
	}
	d := &Display{
		dev:         dev,
		bus:         bus,
		clk:         clk,
		interval:    time.Duration(s.DisplayUpdateInterval) * time.Millisecond,
		att:         att,
		state:       state,
		rotateEvery: rotate,
	}
	if err := d.showSplash(); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return d, nil
}

// Run repaints until ctx is done.
func (d *Display) Run(ctx context.Context) error {
	defer d.bus.Close()

	ticker := d.clk.Ticker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		d.ticks++
		if d.ticks%d.rotateEvery == 0 {
			d.page = (d.page + 1) % pageCount
		}
		if err := d.draw(); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	for i := range img.Pix {
		img.Pix[i] = 0
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func (d *Display) draw() error {
	switch d.page {
	case 0:
		return d.drawAttitude()
	case 1:
		return d.drawField()
	default:
		return d.drawPosition()
	}
}

func (d *Display) drawAttitude() error {
	img, drawer := newFrame()

	roll, pitch, yaw := d.att.RPY()
	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("R: %6.1f", roll)))
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("P: %6.1f", pitch)))
	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("Y: %6.1f", yaw)))

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func (d *Display) drawField() error {
	img, drawer := newFrame()

	st := d.state.State()
	if st.Mag == nil {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Mag field"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("M:%6.0f %6.0f", st.Mag.X, st.Mag.Y)))
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("  %6.0f", st.Mag.Z)))
		if st.MagBias != nil {
			drawer.Dot = fixed.P(0, 39)
			drawer.DrawBytes([]byte(fmt.Sprintf("B:%6.1f %6.1f", st.MagBias.X, st.MagBias.Y)))
			drawer.Dot = fixed.P(0, 52)
			drawer.DrawBytes([]byte(fmt.Sprintf("  %6.1f", st.MagBias.Z)))
		}
	}

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func (d *Display) drawPosition() error {
	img, drawer := newFrame()

	st := d.state.State()
	if st.GPS == nil {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte("GPS Position"))
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		drawer.Dot = fixed.P(0, 13)
		latDir := "N"
		lat := st.GPS.Latitude
		if lat < 0 {
			latDir = "S"
			lat = -lat
		}
		drawer.DrawBytes([]byte(fmt.Sprintf("%.4f%s", lat, latDir)))

		drawer.Dot = fixed.P(0, 26)
		lonDir := "E"
		lon := st.GPS.Longitude
		if lon < 0 {
			lonDir = "W"
			lon = -lon
		}
		drawer.DrawBytes([]byte(fmt.Sprintf("%.4f%s", lon, lonDir)))
	}

	if st.Env != nil {
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("Alt: %.0fm", st.Env.AltitudeM)))
		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("T: %.1fC", st.Env.Temperature)))
	}

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func (d *Display) showSplash() error {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Sensor"))
	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Pipeline"))

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}
