// Package telemetry accumulates per-step training curves: one KL curve per
// latent key plus the reconstruction error curve. The set of curves is fixed
// by the first recorded step so that downstream plots and archives always see
// rectangular data.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/openfluke/unravel/multitensor"
)

// ErrUnknownCurve reports a KL key that does not match the set established by
// the first recorded step.
var ErrUnknownCurve = errors.New("telemetry: key does not match the recorded curve set")

// Logger is an append-only recorder of training telemetry. It is not safe for
// concurrent use; training is a single-goroutine loop.
type Logger struct {
	keys   []multitensor.Key
	curves map[multitensor.Key][]float64
	recon  []float64
}

// NewLogger returns an empty logger. The curve set is established by the
// first call to Record.
func NewLogger() *Logger {
	return &Logger{}
}

// Record appends one step's reconstruction error and per-key KL amounts. The
// first call fixes the key set; every later call must supply exactly the same
// keys or the step is rejected with ErrUnknownCurve and nothing is appended.
func (l *Logger) Record(reconErr float64, kl map[multitensor.Key]float64) error {
	if l.keys == nil {
		l.keys = make([]multitensor.Key, 0, len(kl))
		for _, k := range multitensor.AllKeys() {
			if _, ok := kl[k]; ok {
				l.keys = append(l.keys, k)
			}
		}
		l.curves = make(map[multitensor.Key][]float64, len(l.keys))
	}
	for _, k := range multitensor.AllKeys() {
		_, incoming := kl[k]
		switch {
		case incoming && !l.known(k):
			return fmt.Errorf("%w: unexpected key %q at step %d", ErrUnknownCurve, k, l.Steps())
		case !incoming && l.known(k):
			return fmt.Errorf("%w: key %q missing at step %d", ErrUnknownCurve, k, l.Steps())
		}
	}
	for _, k := range l.keys {
		l.curves[k] = append(l.curves[k], kl[k])
	}
	l.recon = append(l.recon, reconErr)
	return nil
}

func (l *Logger) known(k multitensor.Key) bool {
	_, ok := l.curves[k]
	if ok {
		return true
	}
	for _, known := range l.keys {
		if known == k {
			return true
		}
	}
	return false
}

// Steps returns how many steps have been recorded.
func (l *Logger) Steps() int { return len(l.recon) }

// Keys returns the established curve keys in canonical order, nil before the
// first record.
func (l *Logger) Keys() []multitensor.Key {
	return append([]multitensor.Key(nil), l.keys...)
}

// KLCurve returns the recorded KL amounts for k, one value per step. The
// slice is the logger's own backing array; callers must not modify it.
func (l *Logger) KLCurve(k multitensor.Key) []float64 { return l.curves[k] }

// KLCurves returns every KL curve keyed by latent key.
func (l *Logger) KLCurves() map[multitensor.Key][]float64 {
	out := make(map[multitensor.Key][]float64, len(l.keys))
	for _, k := range l.keys {
		out[k] = l.curves[k]
	}
	return out
}

// ReconstructionErrorCurve returns the per-step reconstruction error in nats.
func (l *Logger) ReconstructionErrorCurve() []float64 { return l.recon }
