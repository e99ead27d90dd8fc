package lcrf

// writerState is the chunk currently being written.
type writerState uint8

const (
	stateNone writerState = iota
	stateLabels
	stateAttrs
	stateLabelRefs
	stateAttrRefs
	stateFeatures
	stateFinalised
)

func (s writerState) String() string {
	switch s {
	case stateNone:
		return "NONE"
	case stateLabels:
		return "LABELS"
	case stateAttrs:
		return "ATTRS"
	case stateLabelRefs:
		return "LABEL_REFS"
	case stateAttrRefs:
		return "ATTR_REFS"
	case stateFeatures:
		return "FEATURES"
	case stateFinalised:
		return "FINALISED"
	default:
		return "UNKNOWN"
	}
}

// require fails unless the writer is in state want.
func (w *Writer) require(op string, want writerState) error {
	if w.state != want {
		return &ProtocolError{Op: op, State: w.state.String()}
	}
	return nil
}

// transition moves the writer from one state to another, rejecting the call
// without changing anything when the writer is not in from.
func (w *Writer) transition(op string, from, to writerState) error {
	if err := w.require(op, from); err != nil {
		return err
	}
	w.state = to
	return nil
}

func (w *Writer) violation(op, reason string) error {
	return &ProtocolError{Op: op, State: w.state.String(), Reason: reason}
}
