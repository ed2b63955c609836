// Writer and reader configuration.
package ragfile

import (
	"math"

	"go.uber.org/zap"
)

// Defaults applied to zero Options fields.
const (
	DefaultIndexReserve = 1024
	DefaultRetries      = 3
)

// Options configures a Writer or Reader. The zero value is usable.
type Options struct {
	Endianness    Endianness  // byte order of written files (default little)
	Version       Version     // format version to write; zero means CurrentVersion
	IndexReserve  int         // bytes reserved after the header for the index table (default 1024)
	MaxRecordSize int         // largest accepted record (default 16MB)
	Retries       int         // retries for transient or short I/O (default 3, negative disables)
	Logger        *zap.Logger // default no-op
	Metrics       *Metrics    // optional Prometheus collectors
}

// withDefaults returns a copy of o with zero fields filled in.
func (o Options) withDefaults() Options {
	if o.Version.IsZero() {
		o.Version = CurrentVersion
	}
	if o.IndexReserve == 0 {
		o.IndexReserve = DefaultIndexReserve
	}
	if o.MaxRecordSize == 0 {
		o.MaxRecordSize = MaxRecordSize
	}
	switch {
	case o.Retries == 0:
		o.Retries = DefaultRetries
	case o.Retries < 0:
		o.Retries = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// validate checks writer options.
func (o Options) validate() error {
	if !o.Endianness.valid() {
		return errAt(ErrFormat, -1, "endianness %d", uint8(o.Endianness))
	}
	if !o.Version.writable() {
		return errAt(ErrUnsupportedVersion, -1, "cannot write version %s", o.Version)
	}
	if o.IndexReserve < 0 {
		return errAt(ErrCorruptIndex, -1, "negative index reserve %d", o.IndexReserve)
	}
	if o.MaxRecordSize < 0 {
		return errAt(ErrRecordFraming, -1, "negative record size limit %d", o.MaxRecordSize)
	}
	// Length prefixes are u32.
	if int64(o.MaxRecordSize) > math.MaxUint32 {
		return errAt(ErrRecordFraming, -1, "record size limit %d exceeds %d", o.MaxRecordSize, uint32(math.MaxUint32))
	}
	return nil
}
