package honeycomb

import (
	"fmt"
	"hash/crc32"
	"math"

	"github.com/honeycombio/dynsampler-go"
)

// TraceSampler keeps or drops whole traces. Every span of a trace gets the same decision.
type TraceSampler struct {
	// KeyFunc maps the span fields to the key the sample rate is looked up by
	KeyFunc func(map[string]interface{}) string

	Sampler dynsampler.Sampler
}

// Hook is a beeline.Config SamplerHook. Spans with meta.keep.span set are always kept.
func (s *TraceSampler) Hook(fields map[string]interface{}) (sample bool, rate int) {
	if keep, ok := fields["meta.keep.span"].(bool); ok && keep {
		return true, 1
	}

	key := ""
	if s.KeyFunc != nil {
		key = s.KeyFunc(fields)
	}
	rate = s.Sampler.GetSampleRate(key)
	if shouldSample(fmt.Sprintf("%v", fields["trace.trace_id"]), rate) {
		return true, rate
	}
	return false, 0
}

// shouldSample is deterministic on the determinant, true keeps the span.
func shouldSample(determinant string, rate int) bool {
	if rate <= 1 {
		return true
	}
	threshold := math.MaxUint32 / uint32(rate) //nolint:gosec
	return crc32.ChecksumIEEE([]byte(determinant)) < threshold
}
