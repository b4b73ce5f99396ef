package pipeline

import (
	"errors"
	"fmt"
)

// State is a step in the life of one request.
type State int

// Request states. RateLimited and Unauthorized are early exits; both still
// pass through ResponseDecorated and Sent.
const (
	StateReceived State = iota
	StateRateLimitChecked
	StateAuthenticated
	StateRouted
	StateResponseDecorated
	StateSent
	StateRateLimited
	StateUnauthorized
)

var stateNames = [...]string{
	StateReceived:          "received",
	StateRateLimitChecked:  "rate_limit_checked",
	StateAuthenticated:     "authenticated",
	StateRouted:            "routed",
	StateResponseDecorated: "response_decorated",
	StateSent:              "sent",
	StateRateLimited:       "rate_limited",
	StateUnauthorized:      "unauthorized",
}

// String returns the snake case name used in logs and metric labels.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ErrInvalidTransition is returned for a transition the state machine does
// not allow.
var ErrInvalidTransition = errors.New("invalid pipeline state transition")

// ResponseDecorated is reachable from every pre-response state so that a
// handler failure at any point still gets decorated.
var transitions = map[State][]State{
	StateReceived:          {StateRateLimitChecked, StateRateLimited, StateResponseDecorated},
	StateRateLimitChecked:  {StateAuthenticated, StateUnauthorized, StateResponseDecorated},
	StateAuthenticated:     {StateRouted, StateResponseDecorated},
	StateRouted:            {StateResponseDecorated},
	StateRateLimited:       {StateResponseDecorated},
	StateUnauthorized:      {StateResponseDecorated},
	StateResponseDecorated: {StateSent},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
