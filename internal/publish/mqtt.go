package publish

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/env"
	"github.com/relabs-tech/sensor_pipeline/internal/homeref"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// MQTT publishes every update as retained JSON under the configured
// topic prefix: <prefix>/accel, <prefix>/gyro, <prefix>/mag,
// <prefix>/mag/bias, <prefix>/fault, <prefix>/env, <prefix>/gps.
type MQTT struct {
	client mqtt.Client
	prefix string
}

// NewMQTT connects to the broker. Publish errors after that are logged
// and dropped; sensor data is not worth buffering once stale.
func NewMQTT(s config.Settings) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(s.MQTTBroker).
		SetClientID(s.MQTTClientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Printf("publish: connected to MQTT broker at %s", s.MQTTBroker)

	return &MQTT{client: client, prefix: s.TopicPrefix}, nil
}

func (m *MQTT) PublishSample(ch imu.Channel, s imu.CorrectedSample) {
	m.publishJSON(m.prefix+"/"+ch.String(), s)
}

func (m *MQTT) PublishMagBias(bias imu.Vec3) {
	m.publishJSON(m.prefix+"/mag/bias", Bias{X: bias[0], Y: bias[1], Z: bias[2]})
}

// PublishFault forwards a fault indicator transition.
func (m *MQTT) PublishFault(f Fault) {
	m.publishJSON(m.prefix+"/fault", f)
}

// PublishEnv forwards a barometer sample.
func (m *MQTT) PublishEnv(s env.Sample) {
	m.publishJSON(m.prefix+"/env", s)
}

// PublishFix forwards a GPS fix.
func (m *MQTT) PublishFix(f homeref.Fix) {
	m.publishJSON(m.prefix+"/gps", f)
}

func (m *MQTT) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("publish: marshal error (%s): %v", topic, err)
		return
	}
	if token := m.client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		log.Printf("publish: MQTT error (%s): %v", topic, token.Error())
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
