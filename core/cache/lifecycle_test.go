package cache

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		from        State
		event       Event
		wantState   State
		wantEffects []Effect
		wantErr     bool
	}{
		{name: "install", from: StateUninstalled, event: EventInstall, wantState: StateInstalling, wantEffects: []Effect{EffectPrecache}},
		{name: "install succeeded", from: StateInstalling, event: EventInstallSucceeded, wantState: StateInstalled, wantEffects: []Effect{EffectSkipWaiting}},
		{name: "install failed", from: StateInstalling, event: EventInstallFailed, wantState: StateUninstalled, wantEffects: []Effect{EffectDiscardGeneration}},
		{name: "activate", from: StateInstalled, event: EventActivate, wantState: StateActivating, wantEffects: []Effect{EffectPurgeStale}},
		{name: "activated", from: StateActivating, event: EventActivated, wantState: StateActive, wantEffects: []Effect{EffectClaimClients}},
		{name: "restore", from: StateUninstalled, event: EventRestore, wantState: StateActive, wantEffects: []Effect{EffectClaimClients}},
		{name: "superseded while active", from: StateActive, event: EventSuperseded, wantState: StateRedundant, wantEffects: []Effect{}},
		{name: "superseded while waiting", from: StateInstalled, event: EventSuperseded, wantState: StateRedundant, wantEffects: []Effect{}},
		// invalid
		{name: "activate before install", from: StateUninstalled, event: EventActivate, wantState: StateUninstalled, wantErr: true},
		{name: "install twice", from: StateInstalling, event: EventInstall, wantState: StateInstalling, wantErr: true},
		{name: "reinstall active", from: StateActive, event: EventInstall, wantState: StateActive, wantErr: true},
		{name: "redundant is final", from: StateRedundant, event: EventRestore, wantState: StateRedundant, wantErr: true},
		{name: "supersede mid-install", from: StateInstalling, event: EventSuperseded, wantState: StateInstalling, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects, err := Transition(tt.from, tt.event)
			assert.Equal(t, tt.wantState, got)
			if tt.wantErr {
				assert.Equal(t, ErrInvalidTransition, errors.Cause(err))
				assert.Empty(t, effects)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantEffects, effects)
		})
	}
}

func TestTransition_returnsCopy(t *testing.T) {
	_, effects, err := Transition(StateUninstalled, EventInstall)
	assert.NoError(t, err)
	effects[0] = EffectClaimClients

	_, effects, _ = Transition(StateUninstalled, EventInstall)
	assert.Equal(t, []Effect{EffectPrecache}, effects)
}

func TestState_MarshalText(t *testing.T) {
	for state, want := range map[State]string{
		StateUninstalled: "uninstalled",
		StateActive:      "active",
		StateRedundant:   "redundant",
	} {
		got, err := state.MarshalText()
		assert.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}
