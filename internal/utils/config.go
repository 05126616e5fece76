package utils

import (
	"time"

	"github.com/smartclass/telemetry-server/internal/constants"
	"github.com/smartclass/telemetry-server/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Server struct {
		Host string `yaml:"host"` // HTTP listen address
		Port int    `yaml:"port"` // HTTP listen port
	} `yaml:"server"`

	Database struct {
		Host             string        `yaml:"host"`              // Store host
		Port             int           `yaml:"port"`              // Store port
		User             string        `yaml:"user"`              // Store user
		Password         string        `yaml:"password"`          // Store password
		Name             string        `yaml:"name"`              // Database name
		CACertificate    string        `yaml:"ca_certificate"`    // Path to the store CA certificate (empty disables TLS)
		ConnectTimeout   time.Duration `yaml:"connect_timeout"`   // Bound on a single connection attempt
		QueryTimeout     time.Duration `yaml:"query_timeout"`     // Bound on every store operation
		ReconnectBackoff time.Duration `yaml:"reconnect_backoff"` // Delay between failed connection attempts
	} `yaml:"database"`

	Telemetry struct {
		OfflineThreshold time.Duration `yaml:"offline_threshold"` // Silence before a room counts as offline
		RequireCO2       bool          `yaml:"require_co2"`       // Whether sensors must report CO2
	} `yaml:"telemetry"`

	Retention struct {
		Interval time.Duration `yaml:"interval"` // Sweep schedule
		Horizon  time.Duration `yaml:"horizon"`  // Maximum reading age
	} `yaml:"retention"`

	Hub struct {
		SendBuffer int `yaml:"send_buffer"` // Per-observer outbound event buffer
		Workers    int `yaml:"workers"`     // Broadcast worker pool size
	} `yaml:"hub"`

	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // Enable the MQTT ingestion bridge
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the broker CA certificate (empty disables TLS)
		ReadingsTopic string `yaml:"readings_topic"` // Topic sensors publish readings on
		AlarmsTopic   string `yaml:"alarms_topic"`   // Topic sensors publish alarms on
		QOS           int    `yaml:"qos"`            // MQTT QoS level for subscriptions
	} `yaml:"mqtt"`
}

// LoadConfig loads the YAML configuration from the specified file and
// fills in defaults for the tunables left unset.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = constants.DefaultConnectTimeout
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = constants.DefaultQueryTimeout
	}
	if c.Database.ReconnectBackoff == 0 {
		c.Database.ReconnectBackoff = constants.DefaultReconnectBackoff
	}
	if c.Telemetry.OfflineThreshold == 0 {
		c.Telemetry.OfflineThreshold = constants.DefaultOfflineThreshold
	}
	if c.Retention.Interval == 0 {
		c.Retention.Interval = constants.DefaultRetentionInterval
	}
	if c.Retention.Horizon == 0 {
		c.Retention.Horizon = constants.DefaultRetentionHorizon
	}
	if c.Hub.SendBuffer == 0 {
		c.Hub.SendBuffer = constants.DefaultHubSendBuffer
	}
	if c.Hub.Workers == 0 {
		c.Hub.Workers = constants.DefaultHubWorkers
	}
}
