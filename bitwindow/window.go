package bitwindow

// State is one of the three RollingBitWindow states.
type State int

const (
	NotFilled State = iota
	Below
	Above
)

func (s State) String() string {
	switch s {
	case NotFilled:
		return "NotFilled"
	case Below:
		return "Below"
	case Above:
		return "Above"
	default:
		return "Unknown"
	}
}

// Edge is the (from, to) state pair produced by one Insert call.
type Edge struct {
	From State
	To   State
}

// Closing reports whether this edge is an Above->Below transition: the
// anomalous run just ended.
func (e Edge) Closing() bool {
	return e.From == Above && e.To == Below
}

// BelowRoundtrip reports whether this edge is a Below->Below reset,
// which signals dimensions to rebaseline their contribution counters.
func (e Edge) BelowRoundtrip() bool {
	return e.From == Below && e.To == Below
}

// Window is the RollingBitWindow state machine: one insert at a time,
// driving a NotFilled/Below/Above state machine over an internal
// RollingBitCounter of capacity windowSize.
type Window struct {
	counter        *RollingBitCounter
	threshold      int
	windowSize     int
	state          State
	currentLength  int
	previousLength int
}

// New returns a RollingBitWindow of the given size and set-bit threshold
// for "above", starting in NotFilled.
func New(windowSize, threshold int) *Window {
	return &Window{
		counter:    NewRollingBitCounter(windowSize),
		threshold:  threshold,
		windowSize: windowSize,
		state:      NotFilled,
	}
}

// State is the window's current state.
func (w *Window) State() State {
	return w.state
}

// CurrentLength is the running length of the state the window is in.
func (w *Window) CurrentLength() int {
	return w.currentLength
}

// Insert feeds one new bit through the state machine. It returns the
// edge that fired and previous_length: the value current_length held
// immediately before this insert, which is the closed run's length when
// the edge is a closing (Above, Below) edge.
func (w *Window) Insert(b bool) (Edge, int) {
	previous := w.currentLength
	w.previousLength = previous

	w.counter.Insert(b)
	filled := w.counter.IsFilled()
	setBits := w.counter.SetBits()

	from := w.state
	var to State

	switch w.state {
	case NotFilled:
		switch {
		case !filled:
			to = NotFilled
			w.currentLength++
		case setBits < w.threshold:
			to = Below
			w.currentLength = w.windowSize
		default:
			to = Above
			w.currentLength++
		}
	case Below:
		if setBits < w.threshold {
			to = Below
			w.currentLength = w.windowSize
		} else {
			to = Above
			w.currentLength = w.windowSize
		}
	case Above:
		if setBits >= w.threshold {
			to = Above
			w.currentLength++
		} else {
			to = Below
			w.currentLength = w.windowSize
		}
	}

	w.state = to
	return Edge{From: from, To: to}, previous
}
