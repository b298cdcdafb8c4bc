package config

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "LKDISPLAY"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// UDPFormat selects the datagram encoding of the network mirror.
type UDPFormat string

const (
	UDPFormatJSON UDPFormat = "json"
	UDPFormatCBOR UDPFormat = "cbor"
)

// IsValid returns whether the format is supported
func (f UDPFormat) IsValid() bool {
	switch f {
	case UDPFormatJSON, UDPFormatCBOR:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (f UDPFormat) String() string {
	return string(f)
}
