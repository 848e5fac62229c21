package batch

// gate is a counting admission gate of fixed width. A slot is held from the
// moment a record enters processing until its terminal state has been written.
type gate struct {
	slots chan struct{}
}

func newGate(width int) *gate {
	return &gate{slots: make(chan struct{}, width)}
}

// acquire blocks until a slot is free.
func (g *gate) acquire() { g.slots <- struct{}{} }

// release frees a slot held by acquire.
func (g *gate) release() { <-g.slots }

func (g *gate) inFlight() int { return len(g.slots) }

func (g *gate) width() int { return cap(g.slots) }
