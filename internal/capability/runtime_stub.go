//go:build !govips || !cgo

package capability

func Startup() error {
	return nil
}

func Shutdown() {}

// NewProber returns the prober for this build: the pure-Go decoder.
func NewProber() Prober {
	return DecodeProber{}
}
