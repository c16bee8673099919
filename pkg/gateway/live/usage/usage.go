// Package usage converts raw audio byte counters into elapsed-time and
// monetary cost estimates. The arithmetic is pure; rates and sample rates
// are configuration, injected by the caller.
package usage

import "math"

// Stats is a read-only snapshot of a session's audio byte counters.
type Stats struct {
	// InputBytes counts decoded client audio actually forwarded upstream.
	InputBytes int64
	// OutputBytes counts decoded model audio sent back to the client.
	OutputBytes int64
}

// Rates holds the billing parameters for one session. Byte rates derive
// from each direction's sample rate at 16-bit mono (sampleRate * 2).
type Rates struct {
	InputBytesPerSecond  int64
	OutputBytesPerSecond int64
	InputPerMinuteUSD    float64
	OutputPerMinuteUSD   float64
}

// RatesFor builds Rates from sample rates (Hz, PCM16 mono) and per-minute
// prices for the input and output channels.
func RatesFor(inputSampleRate, outputSampleRate int, inputPerMinuteUSD, outputPerMinuteUSD float64) Rates {
	return Rates{
		InputBytesPerSecond:  int64(inputSampleRate) * 2,
		OutputBytesPerSecond: int64(outputSampleRate) * 2,
		InputPerMinuteUSD:    inputPerMinuteUSD,
		OutputPerMinuteUSD:   outputPerMinuteUSD,
	}
}

// InputSeconds returns the audio-seconds represented by the input counter.
func (r Rates) InputSeconds(s Stats) float64 {
	if r.InputBytesPerSecond <= 0 {
		return 0
	}
	return float64(s.InputBytes) / float64(r.InputBytesPerSecond)
}

// OutputSeconds returns the audio-seconds represented by the output counter.
func (r Rates) OutputSeconds(s Stats) float64 {
	if r.OutputBytesPerSecond <= 0 {
		return 0
	}
	return float64(s.OutputBytes) / float64(r.OutputBytesPerSecond)
}

// Cost estimates the session cost in USD, rounded to four decimal places.
func (r Rates) Cost(s Stats) float64 {
	inputMinutes := r.InputSeconds(s) / 60
	outputMinutes := r.OutputSeconds(s) / 60
	return round4(inputMinutes*r.InputPerMinuteUSD + outputMinutes*r.OutputPerMinuteUSD)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
