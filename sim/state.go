package sim

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// State is the capability every agent payload provides to the kernel.
// The kernel never inspects payload fields; it only calls through this interface.
//
// Implementations must treat a value as immutable once returned from Transition
// or Clone: the kernel stores snapshots and compares them later.
type State interface {
	// Clone returns an independent copy.
	Clone() State
	// Transition returns the payload after the agent moves from one mode to another.
	// It must not return nil.
	Transition(from, to Mode) State
	// String renders the payload for logs and exported records.
	String() string
}

// StateFactory produces the default payload for an agent starting in the given mode.
type StateFactory func(initial Mode) State

// FieldState is implemented by payloads made of named fields. The recorder uses it
// to report which fields a transition changed.
type FieldState interface {
	State
	Fields() map[string]string
}

// fieldsOf returns the named fields of s. Payloads that are not FieldState are
// treated as a single field named "state".
func fieldsOf(s State) map[string]string {
	if fs, ok := s.(FieldState); ok {
		return fs.Fields()
	}
	return map[string]string{"state": s.String()}
}

// formatFields renders fields as "k: v | k: v" in key order.
func formatFields(fields map[string]string) string {
	keys := slices.Sorted(maps.Keys(fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, " | ")
}

// === TransitionCounter ===

// TransitionCounter is the default payload: the current mode and the number of
// transitions taken so far.
type TransitionCounter struct {
	Mode        Mode
	Transitions int
}

// NewTransitionCounter is a StateFactory for TransitionCounter.
func NewTransitionCounter(initial Mode) State {
	return TransitionCounter{Mode: initial}
}

func (c TransitionCounter) Clone() State { return c }

func (c TransitionCounter) Transition(_, to Mode) State {
	return TransitionCounter{Mode: to, Transitions: c.Transitions + 1}
}

func (c TransitionCounter) Fields() map[string]string {
	return map[string]string{
		"mode":        strconv.Itoa(int(c.Mode)),
		"transitions": strconv.Itoa(c.Transitions),
	}
}

func (c TransitionCounter) String() string {
	return formatFields(c.Fields())
}

// === ProfileState ===

// ModeProfiles maps a mode to the field values an agent takes on when it enters
// that mode. Modes without a profile leave the fields unchanged. Profiles are
// shared between agents and must not be modified once in use.
type ModeProfiles map[Mode]map[string]string

// ProfileState is a payload whose fields are overwritten by the profile of each
// mode the agent enters. Fields absent from the destination profile keep their
// previous value.
type ProfileState struct {
	fields   map[string]string
	profiles ModeProfiles
}

// NewProfileState returns the payload of an agent starting in initial: the union of
// all profile field names set to "", overlaid with the initial mode's profile.
func NewProfileState(profiles ModeProfiles, initial Mode) *ProfileState {
	fields := make(map[string]string)
	for _, profile := range profiles {
		for k := range profile {
			fields[k] = ""
		}
	}
	maps.Copy(fields, profiles[initial])
	return &ProfileState{fields: fields, profiles: profiles}
}

// ProfileFactory returns a StateFactory producing ProfileState payloads.
func ProfileFactory(profiles ModeProfiles) StateFactory {
	return func(initial Mode) State {
		return NewProfileState(profiles, initial)
	}
}

func (p *ProfileState) Clone() State {
	return &ProfileState{fields: maps.Clone(p.fields), profiles: p.profiles}
}

func (p *ProfileState) Transition(_, to Mode) State {
	next := maps.Clone(p.fields)
	maps.Copy(next, p.profiles[to])
	return &ProfileState{fields: next, profiles: p.profiles}
}

// Fields returns a copy of the current field values.
func (p *ProfileState) Fields() map[string]string {
	return maps.Clone(p.fields)
}

// Get returns the value of one field.
func (p *ProfileState) Get(field string) string {
	return p.fields[field]
}

func (p *ProfileState) String() string {
	return formatFields(p.fields)
}
