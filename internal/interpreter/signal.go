package interpreter

import "github.com/lyzr/workflowengine/internal/domain"

// SignalType enumerates the asynchronous, fire-and-forget control messages
// an external caller can send into a running execution.
type SignalType int

const (
	SignalPause SignalType = iota
	SignalResume
	SignalCancel
	SignalApproval
)

// ApprovalAction is the external vocabulary for resolving an approval
// gate; it is translated to the "approve"/"reject" action domain.
// ApprovalResponse expects before being recorded.
type ApprovalAction string

const (
	Approved ApprovalAction = "approved"
	Rejected ApprovalAction = "rejected"
)

func (a ApprovalAction) responseAction() string {
	if a == Approved {
		return "approve"
	}
	return "reject"
}

// ApprovalPayload carries either a single approver's decision or a batch
// of responses (e.g. replaying responses collected out of band).
type ApprovalPayload struct {
	Action    ApprovalAction
	Approver  string
	Comment   string
	Responses []domain.ApprovalResponse
}

// Signal is an envelope for the control messages Run.Signal accepts.
type Signal struct {
	Type     SignalType
	Approval ApprovalPayload
	Reason   string
}

// Pause asks the Run to stop advancing past its current node until Resume
// is signaled. A node activity already in flight still runs to
// completion; the pause takes effect at the next step boundary.
func Pause() Signal { return Signal{Type: SignalPause} }

// Resume releases a Run previously paused with Pause.
func Resume() Signal { return Signal{Type: SignalResume} }

// Cancel asks the Run to stop at the next step boundary and finish with
// domain.StatusCanceled; no compensation runs for a cancellation, since
// nothing failed.
func Cancel(reason string) Signal { return Signal{Type: SignalCancel, Reason: reason} }

// Approve resolves a pending approval slot in the approver's favor.
func Approve(approver, comment string) Signal {
	return Signal{Type: SignalApproval, Approval: ApprovalPayload{Action: Approved, Approver: approver, Comment: comment}}
}

// Reject resolves a pending approval slot against the approver.
func Reject(approver, comment string) Signal {
	return Signal{Type: SignalApproval, Approval: ApprovalPayload{Action: Rejected, Approver: approver, Comment: comment}}
}

// ApprovalBatch delivers a full set of responses at once, letting
// any/all/majority resolution run over all of them together.
func ApprovalBatch(responses []domain.ApprovalResponse) Signal {
	return Signal{Type: SignalApproval, Approval: ApprovalPayload{Responses: responses}}
}

// Signal enqueues a control message for the running execution. It never
// blocks on the execution itself (Signal's whole point is to be
// asynchronous) but does block briefly if the internal channel is full;
// it returns nil without error once the execution has already finished,
// since a signal to a finished run is a harmless no-op rather than a
// caller bug.
func (r *Run) Signal(s Signal) error {
	select {
	case <-r.done:
		return nil
	default:
	}
	select {
	case r.sigCh <- s:
		return nil
	case <-r.done:
		return nil
	}
}
