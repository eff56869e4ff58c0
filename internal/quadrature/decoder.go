package quadrature

// transitions maps prev<<2|cur to a step. The channel state is a<<1|b and
// the forward sequence is 00, 01, 11, 10. Transitions that flip both
// channels at once are invalid and count as no motion.
var transitions = [16]int8{
	0, +1, -1, 0,
	-1, 0, 0, +1,
	+1, 0, 0, -1,
	0, -1, +1, 0,
}

// invalid marks the table entries where both channels changed.
var invalid = [16]bool{3: true, 6: true, 9: true, 12: true}

// Decoder turns successive channel samples into steps.
// It is not safe for concurrent use; a Worker owns one.
type Decoder struct {
	state   uint8
	primed  bool
	skipped uint64
}

// channelState packs the two channels.
func channelState(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// Update feeds one sample and returns -1, 0 or +1.
// The first sample only establishes the starting state.
func (d *Decoder) Update(a, b bool) int {
	cur := channelState(a, b)
	if !d.primed {
		d.state = cur
		d.primed = true
		return 0
	}
	idx := d.state<<2 | cur
	d.state = cur
	if invalid[idx] {
		d.skipped++
	}
	return int(transitions[idx])
}

// Skipped returns how many invalid transitions were seen. A growing
// count means the sample interval is too slow for the shaft speed.
func (d *Decoder) Skipped() uint64 {
	return d.skipped
}
