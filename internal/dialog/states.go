package dialog

import "fmt"

// State 对话阶段
type State string

// 对话阶段
const (
	StateGreeting           State = "GREETING"
	StateIntroduction       State = "INTRODUCTION"
	StateQualification      State = "QUALIFICATION"
	StateAppointmentBooking State = "APPOINTMENT_BOOKING"
	StateObjectionHandling  State = "OBJECTION_HANDLING"
	StateClosing            State = "CLOSING"
	StateTransferToHuman    State = "TRANSFER_TO_HUMAN"
)

// transitions 允许的阶段跳转，停留在原阶段始终允许
var transitions = map[State][]State{
	StateGreeting:           {StateIntroduction},
	StateIntroduction:       {StateQualification},
	StateQualification:      {StateAppointmentBooking, StateObjectionHandling},
	StateAppointmentBooking: {StateClosing, StateObjectionHandling},
	StateObjectionHandling:  {StateAppointmentBooking, StateClosing},
	StateClosing:            {},
	StateTransferToHuman:    {},
}

// Valid 是否为已知阶段
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal 是否为终止阶段
func (s State) Terminal() bool {
	return s == StateClosing || s == StateTransferToHuman
}

// CanTransition 判断 from 到 to 的跳转是否合法
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	// 任意非终止阶段都可以转人工
	if to == StateTransferToHuman {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseState 解析阶段名称
func ParseState(name string) (State, error) {
	s := State(name)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	return s, nil
}
