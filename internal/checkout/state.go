package checkout

type State string

const (
	StateIdle                 State = "IDLE"
	StateValidating           State = "VALIDATING"
	StateSubmitting           State = "SUBMITTING"
	StateAwaitingGatewayOrder State = "AWAITING_GATEWAY_ORDER"
	StateAwaitingUserPayment  State = "AWAITING_USER_PAYMENT"
	StateVerifying            State = "VERIFYING"
	StateCompleted            State = "COMPLETED"
	StateFailed               State = "FAILED"
)

var transitions = map[State][]State{
	StateIdle:                 {StateValidating},
	StateValidating:           {StateSubmitting, StateFailed},
	StateSubmitting:           {StateCompleted, StateAwaitingGatewayOrder, StateFailed},
	StateAwaitingGatewayOrder: {StateAwaitingUserPayment, StateFailed},
	StateAwaitingUserPayment:  {StateVerifying, StateFailed},
	StateVerifying:            {StateCompleted, StateFailed},
	StateCompleted:            {StateIdle},
	StateFailed:               {StateIdle},
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) String() string {
	return string(s)
}
