package encoder

import "fmt"

// pollResult is the outcome of one PollDelta call.
type pollResult struct {
	delta int64
	err   error
}

// poller runs a device's PollDelta off the loop goroutine so a slow
// device cannot hold up the encoders after it.
//
// At most one call is in flight per device. A call that outlives its tick
// keeps running; its result is buffered and consumed on a later tick, so
// steps are never dropped. Only the loop goroutine calls start/collect.
type poller struct {
	device   Device
	results  chan pollResult
	inFlight bool
	stale    bool // pending result predates a zero; its delta is dropped
	missed   int  // consecutive ticks without a result
}

func newPoller(d Device) *poller {
	return &poller{
		device:  d,
		results: make(chan pollResult, 1),
	}
}

// start launches a poll unless one is still pending.
func (p *poller) start() {
	if p.inFlight {
		return
	}
	p.inFlight = true
	go func() {
		var res pollResult
		defer func() {
			if r := recover(); r != nil {
				res = pollResult{err: fmt.Errorf("device poll panicked: %v", r)}
			}
			p.results <- res
		}()
		res.delta, res.err = p.device.PollDelta()
	}()
}

// collect returns the pending result, waiting until expired is closed.
// ok is false if the poll is still running.
func (p *poller) collect(expired <-chan struct{}) (res pollResult, ok bool) {
	select {
	case res = <-p.results:
		return p.received(res), true
	default:
	}

	select {
	case res = <-p.results:
		return p.received(res), true
	case <-expired:
		return pollResult{}, false
	}
}

func (p *poller) received(res pollResult) pollResult {
	p.inFlight = false
	if p.stale {
		p.stale = false
		res.delta = 0
	}
	return res
}

// discard drops the steps of any poll started before now. A buffered
// result is consumed immediately; a running one is marked stale.
func (p *poller) discard() {
	if !p.inFlight {
		return
	}
	select {
	case <-p.results:
		p.inFlight = false
		p.stale = false
	default:
		p.stale = true
	}
}
