package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds the daemon configuration read from the environment.
// Load a .env file first (godotenv) when running outside a container.
type Settings struct {
	GatewayURL   string
	GatewayToken string
	DeviceID     string
	ProfilePath  string
	PollInterval time.Duration

	// MQTTBroker enables the feature publisher when set.
	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string
	TopicPrefix  string

	APIPort int
}

// FromEnv builds Settings from environment variables, applying defaults
// for everything optional.
func FromEnv() (*Settings, error) {
	s := &Settings{
		GatewayURL:   os.Getenv("GATEWAY_URL"),
		GatewayToken: os.Getenv("GATEWAY_TOKEN"),
		DeviceID:     os.Getenv("DEVICE_ID"),
		ProfilePath:  os.Getenv("DEVICE_PROFILE"),
		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTUsername: os.Getenv("MQTT_USERNAME"),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		TopicPrefix:  os.Getenv("MQTT_TOPIC_PREFIX"),
		PollInterval: 30 * time.Second,
		APIPort:      8080,
	}

	if s.GatewayURL == "" || s.GatewayToken == "" {
		return nil, fmt.Errorf("GATEWAY_URL and GATEWAY_TOKEN must be set")
	}
	if s.DeviceID == "" {
		return nil, fmt.Errorf("DEVICE_ID must be set")
	}
	if s.ProfilePath == "" {
		s.ProfilePath = "config/device_profile.yaml"
	}
	if s.TopicPrefix == "" {
		s.TopicPrefix = "cleanbot"
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		s.PollInterval = interval
	}

	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid API_PORT %q: %w", v, err)
		}
		s.APIPort = port
	}

	return s, nil
}
