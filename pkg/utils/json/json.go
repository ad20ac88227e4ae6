// Package json selects a JSON codec once at init: sonic on amd64/arm64,
// encoding/json everywhere else. Query responses, provider payloads, and
// cached results all marshal through this package so the choice stays in
// one place.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v interface{}) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	Unmarshal func(data []byte, v interface{}) error

	// NewEncoder returns a streaming encoder writing to w.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder returns a streaming decoder reading from r.
	NewDecoder func(r io.Reader) Decoder

	usingSonic bool
)

// Encoder is the subset of the codec's encoder the callers need.
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder is the subset of the codec's decoder the callers need.
type Decoder interface {
	Decode(v interface{}) error
}

func init() {
	// sonic only builds on amd64 and arm64
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		Marshal = sonic.Marshal
		Unmarshal = sonic.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return sonic.ConfigDefault.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return sonic.ConfigDefault.NewDecoder(r)
		}
		usingSonic = true
	} else {
		Marshal = stdjson.Marshal
		Unmarshal = stdjson.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return stdjson.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return stdjson.NewDecoder(r)
		}
		usingSonic = false
	}
}

// ConfigFastestMode switches to sonic's fastest configuration, which
// skips some validation. Suitable for trusted internal payloads such as
// cached query results; do not use it for untrusted input. No-op on the
// stdlib fallback.
func ConfigFastestMode() {
	if usingSonic {
		api := sonic.ConfigFastest
		Marshal = api.Marshal
		Unmarshal = api.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return api.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return api.NewDecoder(r)
		}
	}
}

// ConfigStandardMode restores sonic's default configuration. No-op on
// the stdlib fallback.
func ConfigStandardMode() {
	if usingSonic {
		api := sonic.ConfigDefault
		Marshal = api.Marshal
		Unmarshal = api.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return api.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return api.NewDecoder(r)
		}
	}
}

// IsUsingSonic reports whether sonic was selected at init.
func IsUsingSonic() bool {
	return usingSonic
}
