package quadrature

// Pins reads both channels of one encoder.
type Pins interface {
	Read() (a, b bool, err error)
	Close() error
}
