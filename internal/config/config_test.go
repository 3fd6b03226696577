package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "# empty on purpose\n\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Errorf("empty file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
# sensor
SENSOR_DRIVER=mpu9250
SPI_DEVICE=/dev/spidev0.0
IMU_ACCEL_RANGE=2
IMU_GYRO_RANGE=1
SAMPLE_INTERVAL=1

CYCLE_PERIOD=2
GYRO_WAIT=4
QUEUE_DEPTH=16

ACCEL_SCALE=0.001,0.002,0.003
ACCEL_BIAS=1,-2,3
GYRO_SCALE=0.07,0.07,0.07
MAG_SCALE=1.5,1.5,1.5
MAG_BIAS=10,20,-30
BOARD_ROTATION=9000,0,-4500
GYRO_BIAS_CORRECTION=false
MAG_BIAS_NULLING_RATE=0.01
MAG_BIAS_VARIANT=legacy

HOME_SET=false
HOME_DECLINATION_DEG=2.5
HOME_INCLINATION_DEG=63
HOME_FIELD_STRENGTH=495
GPS_SERIAL_PORT=/dev/ttyAMA0
GPS_BAUD_RATE=38400

MQTT_BROKER=tcp://broker:1883
MQTT_CLIENT_ID=bench-pipeline
TOPIC_PREFIX=bench

RECORD_PATH=/var/log/flight.db
DISPLAY_ENABLED=true
DISPLAY_I2C_ADDR=0x3D
WEB_LISTEN_ADDR=:9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mpu9250", cfg.SensorDriver)
	assert.Equal(t, "/dev/spidev0.0", cfg.SPIDevice)
	assert.Equal(t, byte(2), cfg.IMUAccelRange)
	assert.Equal(t, byte(1), cfg.IMUGyroRange)
	assert.Equal(t, 16, cfg.QueueDepth)
	assert.Equal(t, imu.Vec3{0.001, 0.002, 0.003}, cfg.AccelScale)
	assert.Equal(t, imu.Vec3{1, -2, 3}, cfg.AccelBias)
	assert.Equal(t, imu.Vec3{9000, 0, -4500}, cfg.BoardRotation)
	assert.False(t, cfg.GyroBiasCorrection)
	assert.Equal(t, 0.01, cfg.MagBiasNullingRate)
	assert.Equal(t, "legacy", cfg.MagBiasVariant)
	assert.False(t, cfg.HomeSet)
	assert.Equal(t, "/dev/ttyAMA0", cfg.GPSSerialPort)
	assert.Equal(t, 38400, cfg.GPSBaudRate)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "/var/log/flight.db", cfg.RecordPath)
	assert.True(t, cfg.DisplayEnabled)
	assert.Equal(t, uint16(0x3D), cfg.DisplayI2CAddr)
	assert.Equal(t, ":9090", cfg.WebListenAddr)

	assert.Equal(t, imu.Vec3{1.5, 1.5, 1.5}, cfg.MagScale)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.EnvSampleInterval)
	assert.Equal(t, 500, cfg.ConsoleLogInterval)
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing equals", "CYCLE_PERIOD 2\n", "invalid config line"},
		{"unknown key", "NOT_A_KEY=1\n", "unknown config key"},
		{"short triple", "ACCEL_SCALE=1,2\n", "three comma-separated values"},
		{"non numeric triple", "ACCEL_BIAS=1,x,3\n", "component 1"},
		{"bad range", "IMU_ACCEL_RANGE=9\n", "must be 0-3"},
		{"bad driver", "SENSOR_DRIVER=bmi160\n", "SENSOR_DRIVER must be"},
		{"mpu without spi", "SENSOR_DRIVER=mpu9250\n", "SPI_DEVICE is required"},
		{"negative rate", "MAG_BIAS_NULLING_RATE=-0.5\n", "must not be negative"},
		{"bad variant", "MAG_BIAS_VARIANT=kalman\n", "MAG_BIAS_VARIANT must be"},
		{"zero period", "CYCLE_PERIOD=0\n", "must be positive"},
		{"zero sample interval", "SAMPLE_INTERVAL=0\n", "SAMPLE_INTERVAL must be positive"},
		{"zero env interval", "ENV_SAMPLE_INTERVAL=0\n", "ENV_SAMPLE_INTERVAL must be positive"},
		{"zero console interval", "CONSOLE_LOG_INTERVAL=0\n", "CONSOLE_LOG_INTERVAL must be positive"},
		{"zero display interval", "DISPLAY_UPDATE_INTERVAL=0\n", "DISPLAY_UPDATE_INTERVAL must be positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open config file")
}

func TestParseTriple(t *testing.T) {
	v, err := parseTriple(" 1.5 , -2 , 3e2 ")
	require.NoError(t, err)
	assert.Equal(t, imu.Vec3{1.5, -2, 300}, v)
}
