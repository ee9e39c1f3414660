package model

// ModeName selects which lifecycle a game follows
type ModeName string

const (
	ModeStandard ModeName = "standard" // Database-only game
	ModeContract ModeName = "contract" // Entry fee verified on chain
)

// Mode describes the statuses and bounds of a lifecycle
type Mode struct {
	Name           ModeName
	ActiveStatus   GameStatus
	TerminalStatus GameStatus
	MaxCaseIndex   int

	// PaymentRequired forces an on-chain entry fee regardless of server settings
	PaymentRequired bool
}

var modes = map[ModeName]Mode{
	ModeStandard: {
		Name:           ModeStandard,
		ActiveStatus:   GameStatusPlaying,
		TerminalStatus: GameStatusFinished,
		MaxCaseIndex:   4,
	},
	ModeContract: {
		Name:           ModeContract,
		ActiveStatus:   GameStatusContractActive,
		TerminalStatus: GameStatusContractCompleted,
		MaxCaseIndex:   7,

		PaymentRequired: true,
	},
}

// LookupMode returns the mode with the given name
func LookupMode(name ModeName) (Mode, bool) {
	if name == "" {
		name = ModeStandard
	}
	m, ok := modes[name]
	return m, ok
}

// ValidCaseIndex reports whether index is within the mode's bounds
func (m Mode) ValidCaseIndex(index int) bool {
	return index >= 0 && index <= m.MaxCaseIndex
}
