package orchestrator

import "github.com/user/portage/internal/model"

// eventBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing events; delivery is best-effort and a
// slow consumer never blocks a worker.
const eventBuffer = 16

// Subscribe returns a channel of events for one job plus an
// unsubscribe function. The channel is closed on unsubscribe and when
// the job is deleted or cleaned up. Subscribing to an unknown job
// returns ErrJobNotFound.
func (o *Orchestrator) Subscribe(id string) (<-chan model.Event, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.jobs[id]; !ok {
		return nil, nil, model.ErrJobNotFound
	}
	ch := make(chan model.Event, eventBuffer)
	o.subs[id] = append(o.subs[id], ch)

	unsubscribe := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		chans := o.subs[id]
		for i, c := range chans {
			if c == ch {
				o.subs[id] = append(chans[:i], chans[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, unsubscribe, nil
}

// Output publishes a free-form log line on a job's event stream.
func (o *Orchestrator) Output(id, line string) {
	o.publish(model.Event{Kind: model.EventOutput, JobID: id, Line: line})
}

// publish fans an event out to every subscriber of the job. Full
// channels are skipped, never waited on.
func (o *Orchestrator) publish(ev model.Event) {
	o.mu.RLock()
	chans := o.subs[ev.JobID]
	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
	o.mu.RUnlock()
}

// dropSubscribers closes every channel for a job. Caller holds the
// write lock.
func (o *Orchestrator) dropSubscribers(id string) {
	for _, ch := range o.subs[id] {
		close(ch)
	}
	delete(o.subs, id)
}
