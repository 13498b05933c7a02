// ABOUTME: Simple linear resampler for nudging playback rate during sync correction
// ABOUTME: Used to stretch or compress a run of audio by a small ratio using linear interpolation
package resample

// Resampler performs linear interpolation to convert between sample
// rates. The timed buffer uses it as an alternative to hard drop/insert
// corrections: nudging the ratio up to a few percent away from 1.0 corrects
// small, steady clock drift without an audible click.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastSample []float32 // one sample per channel, carried across Resample calls
}

// New creates a new resampler converting from inputRate to outputRate.
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		position:   0.0,
		lastSample: make([]float32, channels),
	}
}

// Resample converts input samples (interleaved, at inputRate) to output
// samples (interleaved, at outputRate) using linear interpolation, and
// returns the number of output samples written.
func (r *Resampler) Resample(input []float32, output []float32) int {
	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0

	for outIdx < outputFrames {
		inputPos := r.position
		inputIdx := int(inputPos)

		if inputIdx >= inputFrames-1 {
			break
		}

		frac := float32(inputPos - float64(inputIdx))

		for ch := 0; ch < r.channels; ch++ {
			sample1 := input[inputIdx*r.channels+ch]
			sample2 := input[(inputIdx+1)*r.channels+ch]

			interpolated := sample1*(1.0-frac) + sample2*frac
			output[outIdx*r.channels+ch] = interpolated

			if inputIdx == inputFrames-2 {
				r.lastSample[ch] = sample2
			}
		}

		outIdx++
		r.position += r.ratio
	}

	// Keep the fractional part for the next call; the integer part was
	// fully consumed against this call's input.
	r.position -= float64(int(r.position))

	return outIdx * r.channels
}

// SetRatio updates the input/output rate ratio directly, letting callers
// nudge playback speed by a small fraction (e.g. 1.0005) instead of
// reconstructing the resampler for a new sample rate pair.
func (r *Resampler) SetRatio(ratio float64) {
	r.ratio = ratio
}

// Reset clears interpolation state. Call after a discontinuity (a
// buffer re-anchor or a stream/clear) so the next Resample call doesn't
// interpolate across the gap.
func (r *Resampler) Reset() {
	r.position = 0.0
	for i := range r.lastSample {
		r.lastSample[i] = 0
	}
}

// OutputSamplesNeeded estimates how many output samples a run of
// inputSamples will produce at the current ratio.
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded estimates how many input samples are needed to
// produce outputSamples at the current ratio.
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
