package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/env"
	"github.com/relabs-tech/sensor_pipeline/internal/homeref"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
	"github.com/relabs-tech/sensor_pipeline/internal/publish"
)

// RunConsole subscribes to the pipeline's MQTT topics and prints every
// update until interrupted.
func RunConsole(configPath string) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.MQTTBroker).
		SetClientID(s.MQTTClientID + "-console")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", s.MQTTBroker)

	sub := func(topic string, handler mqtt.MessageHandler) error {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", topic)
		return nil
	}

	labels := map[imu.Channel]string{imu.Accel: "ACC ", imu.Gyro: "GYR ", imu.Mag: "MAG "}
	for _, ch := range []imu.Channel{imu.Accel, imu.Gyro, imu.Mag} {
		label := labels[ch]
		topic := s.TopicPrefix + "/" + ch.String()
		if err := sub(topic, func(_ mqtt.Client, msg mqtt.Message) {
			var sample imu.CorrectedSample
			if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
				log.Printf("console: %s unmarshal error: %v", topic, err)
				return
			}
			fmt.Printf(
				"[%s] x=%10.3f y=%10.3f z=%10.3f t=%5.1fC\n",
				label, sample.X, sample.Y, sample.Z, sample.Temperature,
			)
		}); err != nil {
			return err
		}
	}

	if err := sub(s.TopicPrefix+"/mag/bias", func(_ mqtt.Client, msg mqtt.Message) {
		var b publish.Bias
		if err := json.Unmarshal(msg.Payload(), &b); err != nil {
			log.Printf("console: bias unmarshal error: %v", err)
			return
		}
		fmt.Printf("[BIAS] x=%10.4f y=%10.4f z=%10.4f\n", b.X, b.Y, b.Z)
	}); err != nil {
		return err
	}

	if err := sub(s.TopicPrefix+"/fault", func(_ mqtt.Client, msg mqtt.Message) {
		var f publish.Fault
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: fault unmarshal error: %v", err)
			return
		}
		if f.Active {
			fmt.Printf("[FLT ] %s channel unavailable\n", f.Kind)
		} else {
			fmt.Printf("[FLT ] cleared\n")
		}
	}); err != nil {
		return err
	}

	if err := sub(s.TopicPrefix+"/env", func(_ mqtt.Client, msg mqtt.Message) {
		var e env.Sample
		if err := json.Unmarshal(msg.Payload(), &e); err != nil {
			log.Printf("console: env unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[ENV ] temp=%5.1fC pressure=%7.1fhPa alt=%6.1fm\n",
			e.Temperature, e.PressureHPa, e.AltitudeM,
		)
	}); err != nil {
		return err
	}

	if err := sub(s.TopicPrefix+"/gps", func(_ mqtt.Client, msg mqtt.Message) {
		var f homeref.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[GPS ] time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° validity=%s\n",
			f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Validity,
		)
	}); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
