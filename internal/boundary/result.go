package boundary

// Every fallible boundary operation returns one of the envelopes below.
// Producers populate exactly one of {payload, not-ready flag, error}; consumers
// only need "Err != nil means failure" and "WouldBlock means retry".

// DisplayListResult is the envelope of ListDisplays. Each handle in Displays
// is owned by the caller and released through FreeDisplay; the slice itself
// carries no ownership.
type DisplayListResult struct {
	Displays []Handle
	Err      error
}

// Valid reports whether the envelope respects the exactly-one invariant.
// An empty enumeration is a valid success with zero handles.
func (r DisplayListResult) Valid() bool {
	return r.Err == nil || len(r.Displays) == 0
}

// DisplayResult is the envelope of PrimaryDisplay and DisplayAt.
type DisplayResult struct {
	Display Handle
	Err     error
}

// Valid reports whether the envelope respects the exactly-one invariant.
func (r DisplayResult) Valid() bool {
	return r.Display.IsNull() != (r.Err == nil)
}

// CapturerResult is the envelope of NewCapturer.
type CapturerResult struct {
	Capturer Handle
	Err      error
}

// Valid reports whether the envelope respects the exactly-one invariant.
func (r CapturerResult) Valid() bool {
	return r.Capturer.IsNull() != (r.Err == nil)
}

// Outcome is the tri-state result of a frame poll.
type Outcome int

const (
	OutcomeFrame Outcome = iota
	OutcomeWouldBlock
	OutcomeError
)

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFrame:
		return "frame"
	case OutcomeWouldBlock:
		return "would-block"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// FrameResult is the envelope of NextFrame.
//
// Data is borrowed from the capturer: it is valid until the next NextFrame
// or ReleaseFrame on the same handle, or until FreeCapturer. It must not be
// retained or modified.
type FrameResult struct {
	Data       []byte
	WouldBlock bool
	Err        error

	// Seq counts successful frames on the capturer, starting at 1.
	Seq uint64
	// Foreign is set when Data lives outside the Go heap.
	Foreign bool
}

// Outcome classifies the result.
func (r FrameResult) Outcome() Outcome {
	switch {
	case r.Err != nil:
		return OutcomeError
	case r.WouldBlock:
		return OutcomeWouldBlock
	default:
		return OutcomeFrame
	}
}

// Valid reports whether exactly one of {data, would-block, error} is set.
func (r FrameResult) Valid() bool {
	n := 0
	if len(r.Data) > 0 {
		n++
	}
	if r.WouldBlock {
		n++
	}
	if r.Err != nil {
		n++
	}
	return n == 1
}

func frameReady(data []byte, seq uint64, foreign bool) FrameResult {
	return FrameResult{Data: data, Seq: seq, Foreign: foreign}
}

func frameWouldBlock() FrameResult {
	return FrameResult{WouldBlock: true}
}

func frameFailed(err error) FrameResult {
	return FrameResult{Err: err}
}
