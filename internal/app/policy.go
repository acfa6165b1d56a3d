package app

import (
	"fmt"

	"github.com/dkeye/Proctor/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEvent
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropEvent:
		return "drop"
	case KickMember:
		return "kick"
	default:
		return "none"
	}
}

// Policy decides what happens to a connection whose queue refused a
// latency-sensitive event.
type Policy interface {
	OnBackPressure(member core.Sender, msg core.Message) BackpressureAction
}

// DropPolicy discards the event and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.Sender, core.Message) BackpressureAction {
	return DropEvent
}

// KickPolicy closes the stalled connection so its rooms get cleaned up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.Sender, core.Message) BackpressureAction {
	return KickMember
}

func PolicyFromName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
