package engine

// OnLedgerChanged registers fn to run after every ledger mutation. The
// callback runs on the mutating goroutine after the engine lock is
// released, so it may call back into the engine. The returned func
// unregisters it.
func (e *Engine) OnLedgerChanged(fn func(Event)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.callbacks[id] = fn
	return func() {
		e.subMu.Lock()
		delete(e.callbacks, id)
		e.subMu.Unlock()
	}
}

// Subscribe returns a channel receiving every event. Slow subscribers drop
// events rather than block the engine. The returned func unsubscribes and
// closes the channel.
func (e *Engine) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	if e.subsClosed {
		close(ch)
	} else {
		e.subs[id] = ch
	}
	e.subMu.Unlock()

	return ch, func() {
		e.subMu.Lock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
		e.subMu.Unlock()
	}
}

func (e *Engine) publish(evs ...Event) {
	if len(evs) == 0 {
		return
	}

	e.subMu.Lock()
	callbacks := make([]func(Event), 0, len(e.callbacks))
	for _, fn := range e.callbacks {
		callbacks = append(callbacks, fn)
	}
	for i := range evs {
		e.seq++
		evs[i].Seq = e.seq
		for _, ch := range e.subs {
			select {
			case ch <- evs[i]:
			default:
			}
		}
	}
	e.subMu.Unlock()

	for _, ev := range evs {
		for _, fn := range callbacks {
			fn(ev)
		}
	}
}
