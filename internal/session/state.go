package session

import (
	"fmt"

	"github.com/dropDatabas3/portalgate/internal/domain/reason"
	"github.com/dropDatabas3/portalgate/internal/domain/repository"
)

// State de un intento de sign-in.
type State string

const (
	StateUnauthenticated     State = "unauthenticated"
	StateCredentialSubmitted State = "credential_submitted"
	StateAllowListChecked    State = "allow_list_checked"
	StateSessionEstablished  State = "session_established"
	StateRejected            State = "rejected"
)

// Quién aprobó la identidad.
const (
	ApprovedByAllowList     = "allow-list"
	ApprovedByConfiguration = "configuration"
)

var transitions = map[State][]State{
	StateUnauthenticated:     {StateCredentialSubmitted},
	StateCredentialSubmitted: {StateAllowListChecked, StateSessionEstablished, StateRejected},
	StateAllowListChecked:    {StateSessionEstablished, StateRejected},
}

// Terminal reporta si s no admite más transiciones.
func (s State) Terminal() bool {
	return s == StateSessionEstablished || s == StateRejected
}

// Attempt es un intento de sign-in. No es seguro para uso concurrente: vive
// dentro de una sola llamada a SignIn.
type Attempt struct {
	ID                string
	Kind              repository.CredentialKind
	State             State
	Email             string
	AllowListApproved bool
	ApprovedBy        string
	Reason            reason.Code
	History           []State
}

func newAttempt(kind repository.CredentialKind, id string) *Attempt {
	return &Attempt{ID: id, Kind: kind, State: StateUnauthenticated, History: []State{StateUnauthenticated}}
}

func (a *Attempt) transition(to State) error {
	for _, allowed := range transitions[a.State] {
		if allowed == to {
			a.State = to
			a.History = append(a.History, to)
			return nil
		}
	}
	return fmt.Errorf("session: invalid transition %s -> %s", a.State, to)
}

// approve marca la identidad como aprobada. Se llama una sola vez por intento
// y nunca se revierte.
func (a *Attempt) approve(by string) {
	if a.AllowListApproved {
		return
	}
	a.AllowListApproved = true
	a.ApprovedBy = by
}

func (a *Attempt) reject(code reason.Code) {
	a.Reason = code
	if !a.State.Terminal() {
		// credential_submitted y allow_list_checked siempre pueden pasar a rejected
		_ = a.transition(StateRejected)
	}
}
