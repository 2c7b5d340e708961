package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Switch   SwitchConfig   `yaml:"switch"`
	Queue    QueueConfig    `yaml:"queue"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type SwitchConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`

	ReconnectDelaySeconds int `yaml:"reconnect_delay_seconds"`
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`
}

type QueueConfig struct {
	Addr             string `yaml:"addr"`
	Stream           string `yaml:"stream"`
	Group            string `yaml:"group"`
	Consumer         string `yaml:"consumer"`
	DeadLetterStream string `yaml:"dead_letter_stream"`
	MaxDeliver       int    `yaml:"max_deliver"`
	AckWaitSeconds   int    `yaml:"ack_wait_seconds"`
	BatchSize        int    `yaml:"batch_size"`
	FetchWaitSeconds int    `yaml:"fetch_wait_seconds"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

func (c *SwitchConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

func (c *SwitchConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

func (c *SwitchConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

func (c *QueueConfig) AckWait() time.Duration {
	return time.Duration(c.AckWaitSeconds) * time.Second
}

func (c *QueueConfig) FetchWait() time.Duration {
	return time.Duration(c.FetchWaitSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		Switch: SwitchConfig{
			Host:                  "127.0.0.1",
			Port:                  8021,
			ReconnectDelaySeconds: 5,
			CommandTimeoutSeconds: 10,
		},
		Queue: QueueConfig{
			Addr:             "localhost:6379",
			Stream:           "calls:originate",
			Group:            "callbridge",
			Consumer:         "callbridge-1",
			DeadLetterStream: "calls:originate:dead",
			MaxDeliver:       5,
			AckWaitSeconds:   30,
			BatchSize:        10,
			FetchWaitSeconds: 5,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "callbridge",
			TopicPrefix: "voxhive",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Switch.Host == "" {
		return fmt.Errorf("switch.host is required")
	}
	if c.Switch.Port < 1 || c.Switch.Port > 65535 {
		return fmt.Errorf("switch.port must be between 1 and 65535, got %d", c.Switch.Port)
	}
	if c.Switch.Password == "" {
		return fmt.Errorf("switch.password is required")
	}
	if c.Switch.ReconnectDelaySeconds < 1 {
		return fmt.Errorf("switch.reconnect_delay_seconds must be at least 1")
	}
	if c.Queue.Addr == "" {
		return fmt.Errorf("queue.addr is required")
	}
	if c.Queue.Stream == "" {
		return fmt.Errorf("queue.stream is required")
	}
	if c.Queue.Group == "" {
		return fmt.Errorf("queue.group is required")
	}
	if c.Queue.Consumer == "" {
		return fmt.Errorf("queue.consumer is required")
	}
	if c.Queue.MaxDeliver < 1 {
		return fmt.Errorf("queue.max_deliver must be at least 1")
	}
	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("queue.batch_size must be at least 1")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt.client_id is required")
	}
	if c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt.topic_prefix is required")
	}
	return nil
}
