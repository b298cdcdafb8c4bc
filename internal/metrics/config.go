package metrics

import (
	"net"

	"codeberg.org/mutker/lkdisplay/internal/errors"
)

const defaultPath = "/metrics"

type Config struct {
	// Addr is the listen address; empty disables the endpoint
	Addr string
	Path string
}

func DefaultConfig() Config {
	return Config{
		Path: defaultPath,
	}
}

// Enabled reports whether the endpoint should be served
func (c Config) Enabled() bool {
	return c.Addr != ""
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled() {
		return nil
	}

	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errFactory.Wrap(ErrInvalidAddr, err)
	}

	if c.Path == "" || c.Path[0] != '/' {
		return errFactory.WithData(ErrInvalidConfig, c.Path)
	}

	return nil
}
