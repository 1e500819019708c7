package cache

import "github.com/pkg/errors"

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninstalled State = iota
	StateInstalling
	StateInstalled // waiting
	StateActivating
	StateActive
	StateRedundant
)

var stateNames = [...]string{"uninstalled", "installing", "installed", "activating", "active", "redundant"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event drives a State transition.
type Event int

const (
	EventInstall Event = iota
	EventInstallSucceeded
	EventInstallFailed
	EventActivate
	EventActivated
	EventRestore
	EventSuperseded
)

var eventNames = [...]string{"install", "install-succeeded", "install-failed", "activate", "activated", "restore", "superseded"}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

// Effect is a side effect the Manager must perform after a transition.
type Effect int

const (
	EffectPrecache Effect = iota
	EffectDiscardGeneration
	EffectSkipWaiting
	EffectPurgeStale
	EffectClaimClients
)

var effectNames = [...]string{"precache", "discard-generation", "skip-waiting", "purge-stale", "claim-clients"}

func (f Effect) String() string {
	if f < 0 || int(f) >= len(effectNames) {
		return "unknown"
	}
	return effectNames[f]
}

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

type transitionKey struct {
	from  State
	event Event
}

type transitionResult struct {
	to      State
	effects []Effect
}

var transitions = map[transitionKey]transitionResult{
	{StateUninstalled, EventInstall}:          {StateInstalling, []Effect{EffectPrecache}},
	{StateInstalling, EventInstallSucceeded}:  {StateInstalled, []Effect{EffectSkipWaiting}},
	{StateInstalling, EventInstallFailed}:     {StateUninstalled, []Effect{EffectDiscardGeneration}},
	{StateInstalled, EventActivate}:           {StateActivating, []Effect{EffectPurgeStale}},
	{StateActivating, EventActivated}:         {StateActive, []Effect{EffectClaimClients}},
	{StateUninstalled, EventRestore}:          {StateActive, []Effect{EffectClaimClients}},
	{StateUninstalled, EventSuperseded}:       {StateRedundant, nil},
	{StateInstalled, EventSuperseded}:         {StateRedundant, nil},
	{StateActive, EventSuperseded}:            {StateRedundant, nil},
}

// Transition returns the state reached from `from` on `event` and the effects to perform.
// It has no side effects; unknown pairs return ErrInvalidTransition and leave the state unchanged.
func Transition(from State, event Event) (State, []Effect, error) {
	res, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, nil, errors.Wrapf(ErrInvalidTransition, "%s on %s", event, from)
	}
	effects := make([]Effect, len(res.effects))
	copy(effects, res.effects)
	return res.to, effects, nil
}
