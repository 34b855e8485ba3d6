// Package contract talks to the referral contract: the user record of an
// address and the two direct children of a node id.
package contract

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kraitsura/refnet/pkg/model"
)

// Client is the read-only contract surface the viewer needs.
type Client interface {
	GetUserInfo(ctx context.Context, address string) (model.UserRecord, error)
	GetDirects(ctx context.Context, id model.NodeID) (model.DirectLinks, error)
}

var (
	// ErrNotRegistered means the contract knows the address but reports id 0.
	ErrNotRegistered = errors.New("user is not registered")

	// ErrInvalidAddress is returned for strings that are not 20-byte hex addresses.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrIDOverflow is returned when the contract reports an id that does not
	// fit a NodeID.
	ErrIDOverflow = errors.New("node id overflows uint64")

	// ErrReverted marks a call the contract rejected.
	ErrReverted = errors.New("execution reverted")

	// ErrNoContract means the call returned no data, usually a wrong
	// contract address or network.
	ErrNoContract = errors.New("no contract code at address")
)

// Registered returns ErrNotRegistered for a record with id 0.
func Registered(rec model.UserRecord) error {
	if !rec.IsRegistered() {
		return ErrNotRegistered
	}
	return nil
}

// ErrorKind groups contract errors by what the user should be told.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindNotRegistered ErrorKind = "not_registered"
	KindReverted      ErrorKind = "reverted"
	KindNetwork       ErrorKind = "network"
	KindUnknown       ErrorKind = "unknown"
)

// Message is the one-line explanation shown next to a failed load.
func (k ErrorKind) Message() string {
	switch k {
	case KindNotRegistered:
		return "Address is not registered. Register first to see your network."
	case KindReverted:
		return "The contract rejected the call. The user may not be registered."
	case KindNetwork:
		return "Network error. Check the RPC endpoint and your connection."
	case KindUnknown:
		return "Failed to load user information."
	}
	return ""
}

// Classify maps an error from a Client to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrNotRegistered) {
		return KindNotRegistered
	}
	if errors.Is(err, ErrReverted) || strings.Contains(err.Error(), "execution reverted") {
		return KindReverted
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return KindNetwork
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "no such host", "network", "eof", "timeout"} {
		if strings.Contains(msg, s) {
			return KindNetwork
		}
	}
	return KindUnknown
}

var contractCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "refnet_contract_calls_total",
	Help: "Contract calls by method and result.",
}, []string{"method", "result"})

func observe(method string, err error) {
	result := "ok"
	if err != nil {
		result = string(Classify(err))
	}
	contractCalls.WithLabelValues(method, result).Inc()
}
