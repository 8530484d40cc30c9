// Package config gathers the tunables of the cmd/transcoder harness into one
// struct with a Populate method that fills in defaults, following the same
// "zero value means default" convention as the encoder and decoder Config
// types (and, before them, rquic.Conf.Populate in the retrieved reference
// fork this pattern is drawn from).
package config

import (
	"time"

	"github.com/netcode-go/netcode/decoder"
	"github.com/netcode-go/netcode/encoder"
	"github.com/netcode-go/netcode/field"
)

// Config is the top-level configuration for a transcoder process.
type Config struct {
	FieldWidth   field.Width
	Rate         uint32
	CodeType     encoder.CodeType
	Order        decoder.OrderMode
	AckInterval  time.Duration
	StatsInterval time.Duration
	MaxPacketLen int
}

// Default returns a Config populated with the harness's usual defaults.
func Default() Config {
	c := Config{}
	c.Populate()
	return c
}

// Populate fills every zero-valued field with its default.
func (c *Config) Populate() {
	if c.FieldWidth == 0 {
		c.FieldWidth = field.W8
	}
	if c.Rate == 0 {
		c.Rate = 4
	}
	if c.AckInterval == 0 {
		c.AckInterval = 100 * time.Millisecond
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = 2 * time.Second
	}
	if c.MaxPacketLen == 0 {
		c.MaxPacketLen = 2048
	}
}
