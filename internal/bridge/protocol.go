package bridge

import "strings"

// Request literals and response tokens of the line protocol. Every exchange is
// one request read, zero or more writes, then close.
const (
	RequestGetPawns        = "GET_PAWNS"
	RequestGetStateUpdates = "GET_STATE_UPDATES"
	subscribePrefix        = `{"command":"SUBSCRIBE_PAWN"`

	TokenSubscribed     = "SUBSCRIBED"
	TokenEndUpdate      = "END_UPDATE"
	TokenAck            = "ACK"
	TokenError          = "ERROR"
	TokenInvalidCommand = "ERROR: Invalid command"
	TokenRateLimited    = "ERROR: Rate limited"

	// maxRequestSize bounds the single read performed per connection.
	maxRequestSize = 4096
)

type requestKind string

const (
	kindGetPawns     requestKind = "get_pawns"
	kindSubscribe    requestKind = "subscribe"
	kindStateUpdates requestKind = "get_state_updates"
	kindCommand      requestKind = "command"
	kindEmpty        requestKind = "empty"
	kindRejected     requestKind = "rejected"
)

// Request results reported to metrics.
const (
	resultOK          = "ok"
	resultError       = "error"
	resultRateLimited = "rate_limited"
	resultTransport   = "transport_error"
)

// classify picks the request form. The order matters: the first match wins.
func classify(req string) requestKind {
	switch {
	case req == RequestGetPawns:
		return kindGetPawns
	case strings.HasPrefix(req, subscribePrefix):
		return kindSubscribe
	case req == RequestGetStateUpdates:
		return kindStateUpdates
	default:
		return kindCommand
	}
}
