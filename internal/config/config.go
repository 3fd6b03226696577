package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Settings holds all application configuration values. It is a value
// type: Load and Store.Get hand out copies, so a snapshot taken at the
// start of a cycle can never be mutated behind the caller's back.
type Settings struct {
	// Sensor source
	SensorDriver  string // "mpu9250" or "synthetic"
	SPIDevice     string
	IMUAccelRange byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUGyroRange  byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUDLPFConfig byte // Digital Low Pass Filter configuration (0-7)
	IMUSampleRateDiv byte
	SampleInterval   int // sensor pump period, milliseconds

	// Pipeline
	CyclePeriod int // correction cycle period, milliseconds
	GyroWait    int // bounded wait on the mandatory gyro read, milliseconds
	QueueDepth  int // per-channel sample queue capacity

	// Calibration
	AccelScale imu.Vec3
	AccelBias  imu.Vec3
	GyroScale  imu.Vec3
	MagScale   imu.Vec3
	MagBias    imu.Vec3
	// Mounting offset of the sensor board relative to the vehicle body,
	// roll/pitch/yaw in hundredths of a degree. All-zero disables the
	// rotation entirely.
	BoardRotation      imu.Vec3
	GyroBiasCorrection bool
	MagBiasNullingRate float64
	MagBiasVariant     string // "attitude" or "legacy"

	// Home magnetic reference
	HomeSet            bool    // treat home as set at startup
	HomeDeclinationDeg float64 // magnetic declination, degrees east
	HomeInclinationDeg float64 // magnetic inclination (dip), degrees down
	HomeFieldStrength  float64 // total field magnitude, scaled mag units
	GPSSerialPort      string  // empty disables the GPS receiver
	GPSBaudRate        int

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	TopicPrefix  string

	// Recorder
	RecordPath string // empty disables the flight recorder

	// Display
	DisplayEnabled        bool
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Environment sensor
	EnvSPIDevice      string // empty disables the BME280/BMP280 sampler
	EnvSampleInterval int    // milliseconds

	// Web / console
	WebListenAddr      string
	ConsoleLogInterval int // milliseconds
}

// Defaults returns the settings used when the file does not mention a
// key. Calibration defaults are the identity: unit scale, zero bias,
// no rotation, estimator off.
func Defaults() Settings {
	return Settings{
		SensorDriver:     "synthetic",
		IMUAccelRange:    3,
		IMUGyroRange:     3,
		IMUDLPFConfig:    1,
		IMUSampleRateDiv: 0,
		SampleInterval:   2,

		CyclePeriod: 2,
		GyroWait:    4,
		QueueDepth:  8,

		AccelScale: imu.Vec3{1, 1, 1},
		GyroScale:  imu.Vec3{1, 1, 1},
		MagScale:   imu.Vec3{1, 1, 1},

		GyroBiasCorrection: true,
		MagBiasVariant:     "attitude",

		HomeSet:            true,
		HomeInclinationDeg: 60,
		HomeFieldStrength:  480,
		GPSBaudRate:        9600,

		MQTTBroker:   "tcp://localhost:1883",
		MQTTClientID: "sensor-pipeline",
		TopicPrefix:  "sensors",

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 250,

		EnvSampleInterval: 1000,

		WebListenAddr:      ":8080",
		ConsoleLogInterval: 500,
	}
}

// Load reads the configuration file and returns a Settings value.
func Load(configPath string) (Settings, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return Settings{}, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return Settings{}, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return Settings{}, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Settings{}, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Settings) setValue(key, value string) error {
	switch key {
	// Sensor source
	case "SENSOR_DRIVER":
		c.SensorDriver = value
	case "SPI_DEVICE":
		c.SPIDevice = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "IMU_DLPF_CFG":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_DLPF_CFG %q: %w", value, err)
		}
		if val < 0 || val > 7 {
			return fmt.Errorf("IMU_DLPF_CFG must be 0-7, got %d", val)
		}
		c.IMUDLPFConfig = byte(val)
	case "IMU_SMPLRT_DIV":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SMPLRT_DIV %q: %w", value, err)
		}
		if val < 0 || val > 255 {
			return fmt.Errorf("IMU_SMPLRT_DIV must be 0-255, got %d", val)
		}
		c.IMUSampleRateDiv = byte(val)
	case "SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.SampleInterval = interval

	// Pipeline
	case "CYCLE_PERIOD":
		period, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CYCLE_PERIOD %q: %w", value, err)
		}
		c.CyclePeriod = period
	case "GYRO_WAIT":
		wait, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GYRO_WAIT %q: %w", value, err)
		}
		c.GyroWait = wait
	case "QUEUE_DEPTH":
		depth, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QUEUE_DEPTH %q: %w", value, err)
		}
		c.QueueDepth = depth

	// Calibration
	case "ACCEL_SCALE":
		v, err := parseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_SCALE: %w", err)
		}
		c.AccelScale = v
	case "ACCEL_BIAS":
		v, err := parseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_BIAS: %w", err)
		}
		c.AccelBias = v
	case "GYRO_SCALE":
		v, err := parseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid GYRO_SCALE: %w", err)
		}
		c.GyroScale = v
	case "MAG_SCALE":
		v, err := parseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_SCALE: %w", err)
		}
		c.MagScale = v
	case "MAG_BIAS":
		v, err := parseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_BIAS: %w", err)
		}
		c.MagBias = v
	case "BOARD_ROTATION":
		v, err := parseTriple(value)
		if err != nil {
			return fmt.Errorf("invalid BOARD_ROTATION: %w", err)
		}
		c.BoardRotation = v
	case "GYRO_BIAS_CORRECTION":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid GYRO_BIAS_CORRECTION %q: %w", value, err)
		}
		c.GyroBiasCorrection = enabled
	case "MAG_BIAS_NULLING_RATE":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAG_BIAS_NULLING_RATE %q: %w", value, err)
		}
		c.MagBiasNullingRate = rate
	case "MAG_BIAS_VARIANT":
		c.MagBiasVariant = value

	// Home magnetic reference
	case "HOME_SET":
		set, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid HOME_SET %q: %w", value, err)
		}
		c.HomeSet = set
	case "HOME_DECLINATION_DEG":
		deg, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HOME_DECLINATION_DEG %q: %w", value, err)
		}
		c.HomeDeclinationDeg = deg
	case "HOME_INCLINATION_DEG":
		deg, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HOME_INCLINATION_DEG %q: %w", value, err)
		}
		c.HomeInclinationDeg = deg
	case "HOME_FIELD_STRENGTH":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HOME_FIELD_STRENGTH %q: %w", value, err)
		}
		c.HomeFieldStrength = f
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_PREFIX":
		c.TopicPrefix = value

	// Recorder
	case "RECORD_PATH":
		c.RecordPath = value

	// Display
	case "DISPLAY_ENABLED":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = enabled
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Environment sensor
	case "ENV_SPI_DEVICE":
		c.EnvSPIDevice = value
	case "ENV_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ENV_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.EnvSampleInterval = interval

	// Web / console
	case "WEB_LISTEN_ADDR":
		c.WebListenAddr = value
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks field combinations that Load cannot reject per line.
func (c *Settings) validate() error {
	switch c.SensorDriver {
	case "mpu9250", "synthetic":
	default:
		return fmt.Errorf("SENSOR_DRIVER must be \"mpu9250\" or \"synthetic\", got %q", c.SensorDriver)
	}
	if c.SensorDriver == "mpu9250" && c.SPIDevice == "" {
		return fmt.Errorf("SPI_DEVICE is required when SENSOR_DRIVER=mpu9250")
	}
	if c.CyclePeriod <= 0 {
		return fmt.Errorf("CYCLE_PERIOD must be positive, got %d", c.CyclePeriod)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be positive, got %d", c.SampleInterval)
	}
	if c.EnvSampleInterval <= 0 {
		return fmt.Errorf("ENV_SAMPLE_INTERVAL must be positive, got %d", c.EnvSampleInterval)
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be positive, got %d", c.ConsoleLogInterval)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	if c.GyroWait < 0 {
		return fmt.Errorf("GYRO_WAIT must not be negative, got %d", c.GyroWait)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("QUEUE_DEPTH must be at least 1, got %d", c.QueueDepth)
	}
	if c.MagBiasNullingRate < 0 {
		return fmt.Errorf("MAG_BIAS_NULLING_RATE must not be negative, got %g", c.MagBiasNullingRate)
	}
	switch c.MagBiasVariant {
	case "attitude", "legacy":
	default:
		return fmt.Errorf("MAG_BIAS_VARIANT must be \"attitude\" or \"legacy\", got %q", c.MagBiasVariant)
	}
	if c.GPSSerialPort != "" && c.GPSBaudRate <= 0 {
		return fmt.Errorf("GPS_BAUD_RATE must be positive when GPS_SERIAL_PORT is set, got %d", c.GPSBaudRate)
	}
	return nil
}

// parseTriple parses "x,y,z" into a Vec3.
func parseTriple(value string) (imu.Vec3, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return imu.Vec3{}, fmt.Errorf("expected three comma-separated values, got %q", value)
	}
	var v imu.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return imu.Vec3{}, fmt.Errorf("component %d of %q: %w", i, value, err)
		}
		v[i] = f
	}
	return v, nil
}
