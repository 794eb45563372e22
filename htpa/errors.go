package htpa

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when the PTAT or VDD average is still zero. It
	// only happens before both header kinds have been acquired once; the cycle
	// should be skipped, not treated as a failure.
	ErrNotReady = errors.New("htpa: PTAT/VDD averages not available yet")

	// ErrTimeout is wrapped in a *TransportError when the sensor does not
	// signal end of conversion before Opts.ReadyTimeout.
	ErrTimeout = errors.New("htpa: timed out waiting for end of conversion")
)

// TransportError reports a failed register or EEPROM access. It is never
// retried inside this package.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("htpa: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TableMismatchError is returned together with a valid *Profile when the
// table number stored in the EEPROM differs from the lookup table in use.
// Processing can continue but the temperatures are meaningless.
type TableMismatchError struct {
	EEPROM uint16
	Table  uint16
}

func (e *TableMismatchError) Error() string {
	return fmt.Sprintf("htpa: sensor expects lookup table %d but table %d is loaded; temperatures will be wrong", e.EEPROM, e.Table)
}

// ConfigError reports calibration data or a lookup table that cannot be used.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "htpa: invalid configuration: " + e.Reason
}

func configErrorf(format string, a ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, a...)}
}

// IsWarning reports whether err is a non-fatal condition after which the
// returned values are still usable.
func IsWarning(err error) bool {
	var m *TableMismatchError
	return errors.As(err, &m)
}
