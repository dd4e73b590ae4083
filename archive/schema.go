package archive

import (
	"fmt"
	"strings"

	"github.com/openfluke/unravel/multitensor"
)

// Tensor name layout inside a task archive. Per-key tensors embed the key's
// canonical string; the axis-free key contributes an empty segment.
const (
	ReconCurveName = "reconstruction_error_curve"

	klCurvePrefix  = "kl_curve/"
	posteriorRoot  = "posterior/"
	capacityPrefix = "capacity/"
	decodeRoot     = "decode/"
)

// Metadata keys written alongside the tensors.
const (
	MetaTaskID   = "task_id"
	MetaRunID    = "run_id"
	MetaSplit    = "split"
	MetaKeyOrder = "key_order"
)

// KLCurveName returns the tensor name holding k's KL curve.
func KLCurveName(k multitensor.Key) string { return klCurvePrefix + k.String() }

// PosteriorMeanName returns the tensor name of k's posterior means.
func PosteriorMeanName(k multitensor.Key) string { return posteriorRoot + k.String() + "/mean" }

// PosteriorLogVarName returns the tensor name of k's posterior log variances.
func PosteriorLogVarName(k multitensor.Key) string { return posteriorRoot + k.String() + "/logvar" }

// CapacityName returns the tensor name of k's final information budget.
func CapacityName(k multitensor.Key) string { return capacityPrefix + k.String() }

// DecodeWeightName returns the tensor name of k's decode weight matrix.
func DecodeWeightName(k multitensor.Key) string { return decodeRoot + k.String() + "/weight" }

// DecodeBiasName returns the tensor name of k's decode bias.
func DecodeBiasName(k multitensor.Key) string { return decodeRoot + k.String() + "/bias" }

// EncodeKeyOrder renders keys as a comma-joined list of key strings for the
// key_order metadata entry.
func EncodeKeyOrder(keys []multitensor.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// DecodeKeyOrder parses a key_order metadata entry. An empty segment is the
// axis-free key; only a fully empty string means no keys.
func DecodeKeyOrder(s string) ([]multitensor.Key, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	keys := make([]multitensor.Key, len(parts))
	for i, p := range parts {
		k, err := multitensor.ParseKey(p)
		if err != nil {
			return nil, fmt.Errorf("archive: key_order entry %d: %w", i, err)
		}
		keys[i] = k
	}
	return keys, nil
}

// KLCurves extracts every KL curve, keyed by latent key, in the order named
// by the key_order metadata. All curves must exist and share one length.
func (a *Archive) KLCurves() ([]multitensor.Key, map[multitensor.Key][]float64, error) {
	keys, err := DecodeKeyOrder(a.Metadata[MetaKeyOrder])
	if err != nil {
		return nil, nil, err
	}
	if len(keys) == 0 {
		return nil, nil, fmt.Errorf("archive: no key_order metadata")
	}
	curves := make(map[multitensor.Key][]float64, len(keys))
	length := -1
	for _, k := range keys {
		t, ok := a.Tensor(KLCurveName(k))
		if !ok {
			return nil, nil, fmt.Errorf("archive: missing curve for key %q", k)
		}
		if length < 0 {
			length = len(t.Values)
		} else if len(t.Values) != length {
			return nil, nil, fmt.Errorf("archive: curve %q has %d steps, want %d", k, len(t.Values), length)
		}
		curves[k] = t.Values
	}
	return keys, curves, nil
}

// ReconstructionCurve extracts the reconstruction error curve.
func (a *Archive) ReconstructionCurve() ([]float64, error) {
	t, ok := a.Tensor(ReconCurveName)
	if !ok {
		return nil, fmt.Errorf("archive: missing %s", ReconCurveName)
	}
	return t.Values, nil
}
