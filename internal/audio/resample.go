package audio

// Resample converts samples from one rate to another by linear interpolation.
// A ratio of 1 returns a copy. Positions past the last source sample hold
// the last value.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	n := len(samples)
	outLen := int(int64(n) * int64(toRate) / int64(fromRate))
	out := make([]float32, outLen)
	if n == 0 {
		return out
	}

	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= n-1 {
			out[i] = samples[n-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}

	return out
}

// Remix maps channels onto outChannels. Mono output averages every source
// channel, mono input is duplicated across every output channel, and any
// other mismatch averages all sources into each output.
func Remix(channels [][]float32, outChannels int) [][]float32 {
	in := len(channels)
	if in == outChannels || in == 0 || outChannels <= 0 {
		return channels
	}

	frames := len(channels[0])

	if in == 1 {
		out := make([][]float32, outChannels)
		for ch := range out {
			dup := make([]float32, frames)
			copy(dup, channels[0])
			out[ch] = dup
		}
		return out
	}

	mix := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for _, c := range channels {
			sum += c[i]
		}
		mix[i] = sum / float32(in)
	}

	out := make([][]float32, outChannels)
	out[0] = mix
	for ch := 1; ch < outChannels; ch++ {
		dup := make([]float32, frames)
		copy(dup, mix)
		out[ch] = dup
	}
	return out
}

// Interleave merges per-channel samples frame by frame:
// f0c0, f0c1, ..., f1c0, f1c1, ...
func Interleave(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		out := make([]float32, len(channels[0]))
		copy(out, channels[0])
		return out
	}

	frames := len(channels[0])
	out := make([]float32, frames*len(channels))
	idx := 0
	for i := 0; i < frames; i++ {
		for _, c := range channels {
			out[idx] = c[i]
			idx++
		}
	}
	return out
}

// Deinterleave splits frame-interleaved samples into numChannels slices.
// Trailing samples that do not form a whole frame are ignored.
func Deinterleave(samples []float32, numChannels int) Chunk {
	if numChannels <= 0 {
		return nil
	}
	frames := len(samples) / numChannels
	out := make(Chunk, numChannels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			out[ch][i] = samples[i*numChannels+ch]
		}
	}
	return out
}
