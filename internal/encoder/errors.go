package encoder

import "errors"

// Domain errors for the encoder package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, encoder.ErrConfig) {
//	    // refuse to start
//	}
var (
	// ErrConfig is returned when the encoder list is invalid (zero calibration,
	// missing name, duplicate slot). It is fatal at startup.
	ErrConfig = errors.New("encoder: invalid configuration")

	// ErrDeviceFailed marks a device that cannot be activated or has failed
	// permanently. Devices wrap it to ask the loop to stop polling them.
	ErrDeviceFailed = errors.New("encoder: device failed")

	// ErrPersistence is returned when an angle cannot be saved.
	ErrPersistence = errors.New("encoder: persistence failed")

	// ErrLoopRunning is returned by Run when the loop is already running and
	// by Zero when the control loop owns the encoders.
	ErrLoopRunning = errors.New("encoder: control loop running")

	// ErrAlreadySetup is returned when Setup is called twice on one registry.
	ErrAlreadySetup = errors.New("encoder: registry already set up")
)
