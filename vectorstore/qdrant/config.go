// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package qdrant

import (
	"fmt"
	"time"

	"github.com/poiesic/docsync/vectorstore"
)

// Config configures the Qdrant client.
type Config struct {
	// Host is the Qdrant server hostname. Default: "localhost"
	Host string `koanf:"host"`

	// Port is the gRPC port, not the REST one. Default: 6334
	Port int `koanf:"port"`

	// APIKey is optional.
	APIKey string `koanf:"api_key"`

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// Collection receives every point. Default: "docsync"
	Collection string `koanf:"collection"`

	// VectorSize is the dimension used when the collection is created.
	// Zero means "take it from the first upserted batch".
	VectorSize uint64 `koanf:"vector_size"`

	// MaxMessageSize bounds gRPC messages in both directions. Default: 50MB
	MaxMessageSize int `koanf:"max_message_size"`

	// RequestTimeout bounds each request. Default: 30s
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RetryAttempts is the number of retries after a transient failure. Default: 3
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryBackoff is the first backoff delay; it doubles per retry. Default: 1s
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// DefaultConfig returns defaults for a local Qdrant.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           6334,
		Collection:     "docsync",
		MaxMessageSize: 50 * 1024 * 1024,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
		RetryBackoff:   time.Second,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Collection == "" {
		c.Collection = d.Collection
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", vectorstore.ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", vectorstore.ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", vectorstore.ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: invalid max message size %d", vectorstore.ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts must be >= 0", vectorstore.ErrInvalidConfig)
	}
	return nil
}
