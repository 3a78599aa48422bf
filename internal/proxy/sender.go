package proxy

import (
	"github.com/ethereum/go-ethereum/common"
)

// Call is the invocation envelope handed to every entry point. Caller is
// the transport-level invoker. When the call is relayed by the trusted
// forwarder, SenderSuffix carries the signed logical sender (20 bytes) the
// forwarder verified and appended.
type Call struct {
	Caller       common.Address
	SenderSuffix []byte
}

// SenderResolver determines the effective sender of a call. It is consulted
// exactly once per call, before any guard or accounting logic runs; the rest
// of the engine never knows which strategy is active.
type SenderResolver interface {
	Sender(call Call) (common.Address, error)
}

// DirectSender resolves the effective sender as the transport caller,
// ignoring any suffix.
func DirectSender() SenderResolver {
	return directResolver{}
}

type directResolver struct{}

func (directResolver) Sender(call Call) (common.Address, error) {
	return call.Caller, nil
}

// ForwardedSender resolves calls relayed through the given trusted
// forwarder to the sender embedded in the suffix. Calls from any other
// caller resolve directly.
func ForwardedSender(forwarder common.Address) SenderResolver {
	return forwardedResolver{forwarder: forwarder}
}

type forwardedResolver struct {
	forwarder common.Address
}

func (r forwardedResolver) Sender(call Call) (common.Address, error) {
	if call.Caller != r.forwarder {
		return call.Caller, nil
	}
	if len(call.SenderSuffix) < common.AddressLength {
		return common.Address{}, ErrMissingForwardedSender
	}
	suffix := call.SenderSuffix[len(call.SenderSuffix)-common.AddressLength:]
	return common.BytesToAddress(suffix), nil
}
