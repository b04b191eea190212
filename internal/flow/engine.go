// Package flow runs the multi-turn conversations (registration, edit,
// deletion). Each user has at most one active flow; starting another one
// pauses it. Transitions are a (flow, step) table so every reachable
// state is listed in one place.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rosterbot/internal/metrics"
	"rosterbot/internal/models"
	"rosterbot/internal/roster"
)

// Flow names
const (
	Registration = "registration"
	Edit         = "edit"
	Deletion     = "deletion"
)

// Step names
const (
	StepInitial = "initial"
	StepAskName = "ask_name"
	StepConfirm = "confirm"
)

// ErrorText replaces the reply when a step fails on storage
const ErrorText = "Sorry, something went wrong. Please try again later."

var (
	// ErrUnknownFlow is returned for flow names without a transition table entry
	ErrUnknownFlow = errors.New("unknown flow")
	// ErrNotStarted is returned when resuming a flow the user never started
	ErrNotStarted = errors.New("flow not started")
)

// Store persists flow state per user
type Store interface {
	Load(ctx context.Context, userID string) (models.FlowState, error)
	Save(ctx context.Context, userID string, state models.FlowState) error
}

// Roster is the part of the mutation layer the flows need
type Roster interface {
	Lookup(ctx context.Context, phone string) (models.Volunteer, bool, error)
	Register(ctx context.Context, in roster.RegisterInput) (roster.RegisterResult, error)
	UpdateName(ctx context.Context, phone, name string) (models.Volunteer, error)
	Delete(ctx context.Context, phone string) (models.Volunteer, error)
}

type stepKey struct {
	flow string
	step string
}

type stepFunc func(s *session, input string) (string, error)

type Engine struct {
	store   Store
	roster  Roster
	locks   *roster.LockTable
	metrics *metrics.Metrics
	log     zerolog.Logger

	initial     map[string]string
	enter       map[string]stepFunc
	transitions map[stepKey]stepFunc
}

// NewEngine creates an engine. m may be nil.
func NewEngine(store Store, r Roster, m *metrics.Metrics, log zerolog.Logger) *Engine {
	e := &Engine{
		store:   store,
		roster:  r,
		locks:   roster.NewLockTable(),
		metrics: m,
		log:     log.With().Str("component", "flow").Logger(),
		initial: map[string]string{
			Registration: StepInitial,
			Edit:         StepAskName,
			Deletion:     StepInitial,
		},
	}
	e.enter = map[string]stepFunc{
		Registration: enterRegistration,
		Edit:         enterEdit,
		Deletion:     enterDeletion,
	}
	e.transitions = map[stepKey]stepFunc{
		{Registration, StepInitial}: registrationInitial,
		{Edit, StepAskName}:         editAskName,
		{Deletion, StepInitial}:     deletionInitial,
		{Deletion, StepConfirm}:     deletionConfirm,
	}
	return e
}

// session is one locked read-modify-write of a user's flow state
type session struct {
	ctx    context.Context
	user   string
	state  models.FlowState
	engine *Engine
}

func (s *session) active() (string, bool) {
	return s.state.Active()
}

func (s *session) start(flow string) {
	s.state.Flows[flow] = models.FlowProgress{
		Step: s.engine.initial[flow],
		Data: make(map[string]string),
	}
	name := flow
	s.state.CurrentFlow = &name
}

func (s *session) pause() {
	s.state.CurrentFlow = nil
}

func (s *session) advance(step string) {
	flow, ok := s.active()
	if !ok {
		return
	}
	p := s.state.Flows[flow]
	p.Step = step
	s.state.Flows[flow] = p
}

func (s *session) drop(flow string) {
	delete(s.state.Flows, flow)
	if current, ok := s.active(); ok && current == flow {
		s.pause()
	}
}

func (s *session) set(key, value string) {
	flow, ok := s.active()
	if !ok {
		return
	}
	s.state.Flows[flow].Data[key] = value
}

func (s *session) lookup() (models.Volunteer, bool, error) {
	return s.engine.roster.Lookup(s.ctx, s.user)
}

// withSession loads the user's state under their lock, runs fn and saves
func (e *Engine) withSession(ctx context.Context, user string, fn func(s *session) error) error {
	return e.locks.Do(user, func() error {
		state, err := e.store.Load(ctx, user)
		if err != nil {
			return err
		}
		s := &session{ctx: ctx, user: user, state: state, engine: e}
		if err := fn(s); err != nil {
			return err
		}
		return e.store.Save(ctx, user, s.state)
	})
}

// run executes a step, pausing the flow and hiding the error if it fails
func (e *Engine) run(s *session, fn stepFunc, input string) string {
	reply, err := fn(s, input)
	if err != nil {
		flow, _ := s.active()
		e.log.Error().Err(err).Str("user", s.user).Str("flow", flow).Msg("Flow step failed")
		s.pause()
		return ErrorText
	}
	return reply
}

// Begin starts flow for user. With args the first step runs on them right
// away; otherwise the flow's opening prompt is returned.
func (e *Engine) Begin(ctx context.Context, user, flow, args string) (string, error) {
	if _, ok := e.initial[flow]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFlow, flow)
	}
	var reply string
	err := e.withSession(ctx, user, func(s *session) error {
		s.start(flow)
		if strings.TrimSpace(args) != "" {
			reply = e.step(s, args)
			return nil
		}
		reply = e.run(s, e.enter[flow], "")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to begin %s flow: %w", flow, err)
	}
	e.log.Debug().Str("user", user).Str("flow", flow).Msg("Flow started")
	return reply, nil
}

// Start makes flow active at its initial step, pausing any other active flow
func (e *Engine) Start(ctx context.Context, user, flow string) error {
	if _, ok := e.initial[flow]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlow, flow)
	}
	return e.withSession(ctx, user, func(s *session) error {
		s.start(flow)
		return nil
	})
}

// Pause deactivates flow (the active one when flow is empty), keeping its step
func (e *Engine) Pause(ctx context.Context, user, flow string) (string, error) {
	var paused string
	err := e.withSession(ctx, user, func(s *session) error {
		active, ok := s.active()
		if !ok {
			return nil
		}
		if flow == "" || flow == active {
			paused = active
			s.pause()
		}
		return nil
	})
	return paused, err
}

// Resume reactivates a paused flow at its last step and returns that step
func (e *Engine) Resume(ctx context.Context, user, flow string) (string, error) {
	var step string
	err := e.withSession(ctx, user, func(s *session) error {
		p, ok := s.state.Flows[flow]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotStarted, flow)
		}
		name := flow
		s.state.CurrentFlow = &name
		step = p.Step
		return nil
	})
	return step, err
}

// Active returns the user's active flow and step
func (e *Engine) Active(ctx context.Context, user string) (flow, step string, ok bool, err error) {
	state, err := e.store.Load(ctx, user)
	if err != nil {
		return "", "", false, err
	}
	flow, ok = state.Active()
	if ok {
		step = state.Flows[flow].Step
	}
	return flow, step, ok, nil
}

// State returns the user's full flow state
func (e *Engine) State(ctx context.Context, user string) (models.FlowState, error) {
	return e.store.Load(ctx, user)
}

// HandleInput feeds a reply to the user's active flow. Without an active
// flow it returns "". It never returns an error: failures are logged, the
// flow is paused and a generic message is returned.
func (e *Engine) HandleInput(ctx context.Context, user, input string) string {
	var reply string
	err := e.withSession(ctx, user, func(s *session) error {
		if _, ok := s.active(); !ok {
			return nil
		}
		reply = e.step(s, input)
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Str("user", user).Msg("Failed to handle flow input")
		return ErrorText
	}
	return reply
}

func (e *Engine) step(s *session, input string) string {
	flow, _ := s.active()
	step := s.state.Flows[flow].Step
	fn, ok := e.transitions[stepKey{flow, step}]
	if !ok {
		e.log.Warn().Str("user", s.user).Str("flow", flow).Str("step", step).Msg("No transition, pausing flow")
		s.pause()
		return ""
	}
	e.metrics.FlowTransition(flow, step)
	return e.run(s, fn, input)
}

// Prompt describes what the user is expected to send at step
func Prompt(flow, step string) string {
	switch (stepKey{flow, step}) {
	case stepKey{Registration, StepInitial}:
		return registrationPrompt
	case stepKey{Edit, StepAskName}:
		return "Reply with your new name, or 'skip' to keep the current one."
	case stepKey{Deletion, StepInitial}:
		return "Reply 'yes' to delete your registration, or 'no' to keep it."
	case stepKey{Deletion, StepConfirm}:
		return confirmPrompt
	}
	return ""
}
