package homeref

import (
	"bufio"
	"context"
	"io"
	"log"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
)

// Fix is one combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string  `json:"time"`
	Date       string  `json:"date"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	SpeedKnots float64 `json:"speed_knots"`
	CourseDeg  float64 `json:"course_deg"`
	Validity   string  `json:"validity"` // "A" (valid) / "V" (void)
}

// Receiver reads NMEA sentences from the GPS serial port and marks the
// home reference set on the first valid fix. Every decoded fix is also
// handed to onFix for telemetry.
type Receiver struct {
	home  *Static
	port  string
	baud  int
	onFix func(Fix)

	mu         sync.Mutex
	last       Fix
	haveFix    bool
	homeMarked bool
}

// NewReceiver wires a receiver for the configured serial port. onFix
// may be nil.
func NewReceiver(home *Static, s config.Settings, onFix func(Fix)) *Receiver {
	return &Receiver{
		home:  home,
		port:  s.GPSSerialPort,
		baud:  s.GPSBaudRate,
		onFix: onFix,
	}
}

// Run opens the serial port and consumes sentences until ctx is done
// or the port fails.
func (r *Receiver) Run(ctx context.Context) error {
	opts := serial.OpenOptions{
		PortName:        r.port,
		BaudRate:        uint(r.baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return err
	}
	log.Printf("gps: serial port %s open at %d baud", r.port, r.baud)

	// Reads block with no deadline support, so cancellation closes the
	// port out from under the reader.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	err = r.scan(port)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// scan consumes NMEA lines from one reader. Split out from Run so the
// sentence handling can be driven without a serial port.
func (r *Receiver) scan(src io.Reader) error {
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			r.handleLine(strings.TrimSpace(line))
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// handleLine parses one sentence and folds RMC fixes into the state.
func (r *Receiver) handleLine(line string) {
	if !strings.HasPrefix(line, "$") {
		return
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// Noisy receivers emit partial sentences constantly.
		return
	}
	if sentence.DataType() != nmea.TypeRMC {
		return
	}
	m := sentence.(nmea.RMC)

	fix := Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   string(m.Validity),
	}

	r.mu.Lock()
	firstValid := !r.homeMarked && fix.Validity == "A"
	if firstValid {
		r.homeMarked = true
	}
	r.last = fix
	r.haveFix = true
	r.mu.Unlock()

	if firstValid {
		r.home.MarkSet()
		log.Printf("gps: first valid fix at %.5f, %.5f, home reference set", fix.Latitude, fix.Longitude)
	}
	if r.onFix != nil {
		r.onFix(fix)
	}
}

// LastFix returns the most recent fix, valid or not.
func (r *Receiver) LastFix() (Fix, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.haveFix
}
