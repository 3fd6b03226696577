package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/sensor_pipeline/internal/attitude"
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/env"
	"github.com/relabs-tech/sensor_pipeline/internal/homeref"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
	"github.com/relabs-tech/sensor_pipeline/internal/publish"
)

const wsPushInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// AttitudeRPY reports the current attitude in degrees.
type AttitudeRPY interface {
	RPY() (roll, pitch, yaw float64)
}

// LivenessSource reports whether fresh cycles are flowing. The
// in-process watchdog satisfies it; the standalone web binary feeds it
// from the broker instead.
type LivenessSource interface {
	Healthy() bool
	Services() uint64
}

// FaultSource reports the active fault, if any.
type FaultSource interface {
	Current() (kind string, active bool)
}

// Server exposes the pipeline over HTTP: JSON state, a websocket
// stream, Prometheus metrics, and a liveness probe backed by the
// cycle watchdog.
type Server struct {
	addr     string
	latest   *publish.Latest
	att      AttitudeRPY
	watchdog LivenessSource
	faults   FaultSource
}

func NewServer(s config.Settings, latest *publish.Latest, att AttitudeRPY, watchdog LivenessSource, faults FaultSource) *Server {
	return &Server{
		addr:     s.WebListenAddr,
		latest:   latest,
		att:      att,
		watchdog: watchdog,
		faults:   faults,
	}
}

type attitudeJSON struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type stateFrame struct {
	publish.State
	Attitude attitudeJSON `json:"attitude"`
}

func (srv *Server) frame() stateFrame {
	roll, pitch, yaw := srv.att.RPY()
	return stateFrame{
		State:    srv.latest.State(),
		Attitude: attitudeJSON{Roll: roll, Pitch: pitch, Yaw: yaw},
	}
}

// Run serves until ctx is done.
func (srv *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", srv.handleState)
	mux.HandleFunc("/api/attitude", srv.handleAttitude)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/ws", srv.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{Addr: srv.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	log.Printf("web server listening on %s", srv.addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (srv *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(srv.frame()); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (srv *Server) handleAttitude(w http.ResponseWriter, r *http.Request) {
	roll, pitch, yaw := srv.att.RPY()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(attitudeJSON{Roll: roll, Pitch: pitch, Yaw: yaw}); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Healthy bool   `json:"healthy"`
		Cycles  uint64 `json:"cycles"`
		Fault   string `json:"fault,omitempty"`
	}

	h := health{Healthy: srv.watchdog.Healthy(), Cycles: srv.watchdog.Services()}
	if kind, active := srv.faults.Current(); active {
		h.Fault = kind
	}

	w.Header().Set("Content-Type", "application/json")
	if !h.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(h); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleWS streams state frames until the client hangs up.
func (srv *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(srv.frame()); err != nil {
				return
			}
		}
	}
}

// feedTimeout is how stale the broker feed may go before /healthz
// reports the pipeline down.
const feedTimeout = 2 * time.Second

// brokerFeed mirrors the pipeline's liveness and fault state from the
// MQTT topics, so the standalone web binary can serve the same
// endpoints as the in-process server.
type brokerFeed struct {
	mu     sync.Mutex
	last   time.Time
	count  uint64
	kind   string
	active bool
}

func (f *brokerFeed) touch() {
	f.mu.Lock()
	f.last = time.Now()
	f.count++
	f.mu.Unlock()
}

func (f *brokerFeed) setFault(p publish.Fault) {
	f.mu.Lock()
	f.active = p.Active
	f.kind = p.Kind
	f.mu.Unlock()
}

func (f *brokerFeed) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.last.IsZero() && time.Since(f.last) <= feedTimeout
}

func (f *brokerFeed) Services() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *brokerFeed) Current() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kind, f.active
}

// RunWeb serves the web UI from the broker topics alone, no pipeline
// in-process. A tilt compass rebuilt from the corrected accel/mag
// stream backs the attitude panel.
func RunWeb(ctx context.Context, configPath string) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.MQTTBroker).
		SetClientID(s.MQTTClientID + "-web")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", s.MQTTBroker)

	latest := publish.NewLatest()
	compass := attitude.NewTiltCompass()
	feed := &brokerFeed{}

	sub := func(topic string, handler mqtt.MessageHandler) error {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		return token.Error()
	}

	for _, ch := range []imu.Channel{imu.Accel, imu.Gyro, imu.Mag} {
		ch := ch
		topic := s.TopicPrefix + "/" + ch.String()
		if err := sub(topic, func(_ mqtt.Client, msg mqtt.Message) {
			var sample imu.CorrectedSample
			if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
				log.Printf("web: %s unmarshal error: %v", topic, err)
				return
			}
			latest.PublishSample(ch, sample)
			feed.touch()
			switch ch {
			case imu.Accel:
				compass.ObserveAccel(sample)
			case imu.Mag:
				compass.ObserveMag(sample)
			}
		}); err != nil {
			return err
		}
	}

	if err := sub(s.TopicPrefix+"/mag/bias", func(_ mqtt.Client, msg mqtt.Message) {
		var b publish.Bias
		if err := json.Unmarshal(msg.Payload(), &b); err != nil {
			return
		}
		latest.PublishMagBias(imu.Vec3{b.X, b.Y, b.Z})
	}); err != nil {
		return err
	}

	if err := sub(s.TopicPrefix+"/fault", func(_ mqtt.Client, msg mqtt.Message) {
		var f publish.Fault
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			return
		}
		feed.setFault(f)
	}); err != nil {
		return err
	}

	if err := sub(s.TopicPrefix+"/env", func(_ mqtt.Client, msg mqtt.Message) {
		var e env.Sample
		if err := json.Unmarshal(msg.Payload(), &e); err != nil {
			return
		}
		latest.SetEnv(e)
	}); err != nil {
		return err
	}

	if err := sub(s.TopicPrefix+"/gps", func(_ mqtt.Client, msg mqtt.Message) {
		var f homeref.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			return
		}
		latest.SetFix(f)
	}); err != nil {
		return err
	}

	return NewServer(s, latest, compass, feed, feed).Run(ctx)
}
