package config

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
)

const DefaultLogLevel = slog.LevelInfo

type Config struct {
	Zones              []ZoneConfig `json:"zones"`
	Tanks              []TankConfig `json:"tanks"`
	Flow               FlowConfig   `json:"flow"`
	System             SystemConfig `json:"system"`
	MQTT               MQTTConfig   `json:"mqtt"`
	RangeFinderCommand string       `json:"range_finder_command"`
	OriginPatterns     []string     `json:"origin_patterns"`
}

type ZoneConfig struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Enabled        bool          `json:"enabled"`
	RuntimeSeconds int           `json:"runtime_seconds"`
	Valves         []ValveConfig `json:"valves"`
}

// A ValveConfig with Pin 0 leaves the valve without a relay; operating it
// is a silent no-op.
type ValveConfig struct {
	ID  string `json:"id"`
	Pin int    `json:"pin"`
}

type TankConfig struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	SensorHeightCM float64 `json:"sensor_height_cm"`
	MinLevelCM     float64 `json:"min_level_cm"`
	TriggerPin     int     `json:"trigger_pin"`
	EchoPin        int     `json:"echo_pin"`
}

type FlowConfig struct {
	Pin               int     `json:"pin"`
	CalibrationFactor float64 `json:"calibration_factor"`
}

type SystemConfig struct {
	MaxRuntimeSeconds int `json:"max_runtime_seconds"`
	MaxActiveZones    int `json:"max_active_zones"`
}

// An MQTTConfig with an empty BrokerURL disables telemetry publishing.
type MQTTConfig struct {
	BrokerURL   string `json:"broker_url"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

func LoadConfigSettings(filename string) (Config, error) {
	var config Config
	file, err := os.Open(filename)
	if err != nil {
		return config, err
	}

	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return config, err
	}

	err = json.Unmarshal(bytes, &config)
	if err != nil {
		return config, err
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return config, err
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Flow.CalibrationFactor == 0 {
		// L/min per pulse-per-second; 1/7.5 for a YF-S201 style meter
		config.Flow.CalibrationFactor = 0.1333
	}

	if config.System.MaxRuntimeSeconds == 0 {
		config.System.MaxRuntimeSeconds = 3600
	}

	if config.System.MaxActiveZones == 0 {
		config.System.MaxActiveZones = 1
	}

	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = "irrigation-server"
	}

	if config.MQTT.TopicPrefix == "" {
		config.MQTT.TopicPrefix = "irrigation"
	}
}

func validate(config *Config) error {
	seen := make(map[string]bool)
	for _, zone := range config.Zones {
		if zone.ID == "" {
			return errors.New("zone with empty id")
		}

		if seen[zone.ID] {
			return errors.New("duplicate zone id: " + zone.ID)
		}
		seen[zone.ID] = true

		if len(zone.Valves) == 0 {
			return errors.New("zone has no valves: " + zone.ID)
		}
	}

	return nil
}
