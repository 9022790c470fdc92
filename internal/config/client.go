package config

import "time"

const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 9999
	DefaultDialTimeout = 5 * time.Second
)

// ClientConfig is where a client connects to.
type ClientConfig struct {
	Host        string
	Port        int
	DialTimeout time.Duration
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:        DefaultHost,
		Port:        DefaultPort,
		DialTimeout: DefaultDialTimeout,
	}
}
