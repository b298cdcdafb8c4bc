// Package netsink mirrors telemetry snapshots to a local UDP port, one
// datagram per snapshot.
package netsink

import (
	"encoding/json"
	"net"
	"strconv"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/fxamacker/cbor/v2"
)

const (
	ErrDialFailed   = errors.ErrorCode("netsink_dial_failed")
	ErrEncodeFailed = errors.ErrorCode("netsink_encode_failed")
	ErrSendFailed   = errors.ErrorCode("netsink_send_failed")
)

func init() {
	errors.RegisterMessage(ErrDialFailed, "Failed to open UDP socket")
	errors.RegisterMessage(ErrEncodeFailed, "Failed to encode datagram")
	errors.RegisterMessage(ErrSendFailed, "Failed to send datagram")
}

// Format is the datagram encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

const host = "127.0.0.1"

// cborMode uses core deterministic encoding with RFC 3339 timestamps so the
// CBOR and JSON payloads carry the same values
var cborMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano

	var err error
	cborMode, err = opts.EncMode()
	if err != nil {
		panic("netsink: CBOR encoder initialization failed: " + err.Error())
	}
}

// payload adds derived values to the snapshot
type payload struct {
	telemetry.Snapshot
	MemUsagePct *float64 `json:"mem_usage_pct,omitempty"`
}

// Sink sends snapshots to 127.0.0.1:<port>
type Sink struct {
	conn   net.Conn
	format Format
	encode func(v any) ([]byte, error)
}

// Dial connects a UDP socket to the local port
func Dial(port int, format Format) (*Sink, error) {
	errFactory := errors.New()

	var encode func(v any) ([]byte, error)
	switch format {
	case FormatJSON, "":
		format = FormatJSON
		encode = json.Marshal
	case FormatCBOR:
		encode = cborMode.Marshal
	default:
		return nil, errFactory.WithData(errors.ErrInvalidFormat, format)
	}

	conn, err := net.Dial("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errFactory.Wrap(ErrDialFailed, err)
	}

	return &Sink{conn: conn, format: format, encode: encode}, nil
}

// Send writes one datagram for s. Delivery is not confirmed.
func (s *Sink) Send(snapshot telemetry.Snapshot) error {
	errFactory := errors.New()

	data, err := s.Encode(snapshot)
	if err != nil {
		return err
	}

	if _, err := s.conn.Write(data); err != nil {
		return errFactory.Wrap(ErrSendFailed, err)
	}

	return nil
}

// Encode returns the datagram Send would write
func (s *Sink) Encode(snapshot telemetry.Snapshot) ([]byte, error) {
	data, err := s.encode(payload{Snapshot: snapshot, MemUsagePct: snapshot.MemUsagePct()})
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFailed, err)
	}

	return data, nil
}

// Format returns the datagram encoding
func (s *Sink) Format() Format {
	return s.format
}

// Addr returns the destination address
func (s *Sink) Addr() string {
	return s.conn.RemoteAddr().String()
}

func (s *Sink) Close() error {
	return s.conn.Close()
}
