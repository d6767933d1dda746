package gpu

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrResourceExhausted marks allocation failures: no compatible memory
	// type, pool exhaustion, out of device memory. Fatal at init time.
	ErrResourceExhausted = errors.New("gpu resource exhausted")
	// ErrConfiguration marks programming errors such as an unknown pipeline
	// variant or a framebuffer whose attachment count does not match its
	// render pass.
	ErrConfiguration = errors.New("renderer configuration inconsistent")
	// ErrValidation marks hazards detected by a validating backend.
	ErrValidation = errors.New("gpu validation failed")
	// ErrOutOfDate is returned by a presenter whose swap target no longer
	// matches the surface.
	ErrOutOfDate = errors.New("swap target out of date")
)

func ResourceExhaustedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrResourceExhausted)
}

func Configurationf(format string, args ...interface{}) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrConfiguration)
}

func Validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// IsFatal reports whether err must abort the renderer rather than be
// recovered from.
func IsFatal(err error) bool {
	return errors.Is(err, ErrResourceExhausted) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation)
}
