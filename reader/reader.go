package reader

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultCommand is the PC/SC pseudo-APDU GET DATA (UID) understood by most
// contactless readers.
const DefaultCommand = "FFCA000000"

// TagReader is the interface for all tag/card reader implementations.
// Implementations block until a tag is read or context is cancelled.
type TagReader interface {
	// Read blocks until a card identifier is available or context is cancelled.
	// The returned identifier has the card's status trailer removed.
	Read(ctx context.Context) ([]byte, error)

	// Close releases any resources held by the reader.
	Close() error
}

// Config holds common configuration for reader implementations.
type Config struct {
	Type    string `yaml:"type"`    // "pcsc"
	Command string `yaml:"command"` // identify APDU as hex, e.g. "FFCA000000"
}

// CommandBytes decodes the configured identify command. Spaces are allowed
// between bytes.
func (c Config) CommandBytes() ([]byte, error) {
	s := c.Command
	if s == "" {
		s = DefaultCommand
	}
	cmd, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("decode reader command %q: %w", s, err)
	}
	// CLA INS P1 P2 is the shortest valid APDU.
	if len(cmd) < 4 {
		return nil, fmt.Errorf("reader command %q is shorter than an APDU header", s)
	}
	return cmd, nil
}

// New creates a TagReader based on the provided configuration.
func New(cfg Config, log logrus.FieldLogger, obs Observer) (TagReader, error) {
	switch cfg.Type {
	case "", "pcsc":
		cmd, err := cfg.CommandBytes()
		if err != nil {
			return nil, err
		}
		hw, err := EstablishContext()
		if err != nil {
			return nil, err
		}
		return NewPCSC(hw, cmd, log, obs), nil
	default:
		return nil, fmt.Errorf("unknown reader type %q", cfg.Type)
	}
}
