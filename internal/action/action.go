package action

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/conversation"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/models"
	"dialog-manager/internal/slots"
)

// Names of the built-in actions.
const (
	FollowUp      = "follow_up"
	ConfirmSlot   = "confirm_slot"
	ConfirmIntent = "confirm_intent"
	ClarifyIntent = "clarify_intent"
	EndDialogue   = "end_dialogue"
	JumpOut       = "jump_out"
	Chitchat      = "chitchat"
	Fallback      = "fallback"
)

// Directive is what a policy decided; the named action renders it.
type Directive struct {
	Action       string
	Policy       string
	MissingSlots [][]slots.Slot
	Slot         *slots.Slot
	Intent       *models.Intent
	Options      []models.Intent
	Reason       string
}

// Input is everything an action may read. Actions must not mutate Conversation.
type Input struct {
	Conversation *conversation.Context
	Form         *forms.Form
	Directive    Directive
}

type Action interface {
	Name() string
	Run(ctx context.Context, in *Input) (*Response, error)
}

// Registry is the closed set of actions available at runtime, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action; names are unique.
func (r *Registry) Register(a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[a.Name()]; exists {
		return fmt.Errorf("action %q already registered", a.Name())
	}
	r.actions[a.Name()] = a
	return nil
}

// MustRegister panics on duplicates; used while wiring at startup.
func (r *Registry) MustRegister(actions ...Action) {
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	if !ok {
		return nil, apperrors.NewActionNotFoundError(name)
	}
	return a, nil
}

func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.actions))
	for name := range r.actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
