package handler

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterbot/internal/commands"
	"rosterbot/internal/dispatch"
	"rosterbot/internal/flow"
	"rosterbot/internal/message"
	"rosterbot/internal/metrics"
	"rosterbot/internal/plugin"
	"rosterbot/internal/roster"
	"rosterbot/internal/storage"
)

const (
	alice = "+15550000001"
	bob   = "+15550000002"
)

type fixture struct {
	bot     *Bot
	roster  *roster.Service
	flows   *flow.Engine
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(storage.DriverPure, filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	log := zerolog.Nop()
	registry := plugin.NewRegistry()
	svc := roster.NewService(store, nil, log)
	flows := flow.NewEngine(store.Flows(), svc, m, log)
	require.NoError(t, commands.RegisterAll(registry, commands.Modules(commands.Deps{
		Registry: registry,
		Roster:   svc,
		Flows:    flows,
	})))

	bot := NewBot(
		registry,
		message.NewExtractor(registry, nil),
		dispatch.New(registry, log, dispatch.WithMetrics(m)),
		flows,
		m,
		log,
	)
	return &fixture{bot: bot, roster: svc, flows: flows, metrics: m}
}

func envelope(sender, body string, ts int64) string {
	return fmt.Sprintf("Envelope from: %s (device: 1)\nTimestamp: %d\nBody: %s\n", sender, ts, body)
}

func groupEnvelope(sender, group, body string) string {
	return fmt.Sprintf("Envelope from: %s (device: 1)\nTimestamp: 7\nBody: %s\nGroup info:\n  Id: %s\n  Name: Volunteers\n", sender, body, group)
}

func (f *fixture) say(t *testing.T, raw string) string {
	t.Helper()
	reply, _ := f.bot.HandleRaw(context.Background(), raw)
	return reply.Text
}

func TestRegisterCreatesRecord(t *testing.T) {
	f := newFixture(t)

	reply, ok := f.bot.HandleRaw(context.Background(), envelope(alice, "register Jane Doe", 100))
	require.True(t, ok)
	assert.Equal(t, alice, reply.To)
	assert.Equal(t, int64(100), reply.QuoteTimestamp)
	assert.Contains(t, reply.Text, "Jane Doe")

	v, err := f.roster.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", v.Name)
}

func TestRegisterWhenRegisteredKeepsRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.roster.Register(context.Background(), roster.RegisterInput{Phone: alice, Name: "Jane Doe", Skills: []string{"first aid"}})
	require.NoError(t, err)

	reply := f.say(t, envelope(alice, "@bot register", 101))
	assert.Contains(t, reply, "Jane Doe")
	assert.Contains(t, reply, "already registered")

	v, err := f.roster.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", v.Name)
	assert.Equal(t, []string{"first aid"}, v.Skills)
}

func TestDeleteWithoutRecord(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "You're not registered, so there is nothing to delete.", f.say(t, envelope(alice, "@bot delete", 102)))
}

func TestRejectsIncompleteEnvelopes(t *testing.T) {
	f := newFixture(t)

	_, ok := f.bot.HandleRaw(context.Background(), "Envelope from: +15550000001\nTimestamp: 1\n")
	assert.False(t, ok)
	_, ok = f.bot.HandleRaw(context.Background(), "Envelope\nBody: register Jane Doe\n")
	assert.False(t, ok)
	_, ok = f.bot.Handle(context.Background(), message.Envelope{Sender: alice, Body: "\u0007\u0000  "})
	assert.False(t, ok)

	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.EnvelopeCounter(metrics.EnvelopeRejected)))
}

func TestGroupMessagesMustBeAddressed(t *testing.T) {
	f := newFixture(t)

	_, ok := f.bot.HandleRaw(context.Background(), groupEnvelope(alice, "grp1", "register Jane Doe"))
	assert.False(t, ok)
	_, found, err := f.roster.Lookup(context.Background(), alice)
	require.NoError(t, err)
	assert.False(t, found)

	reply, ok := f.bot.HandleRaw(context.Background(), groupEnvelope(alice, "grp1", "@bot sign up Jane Doe"))
	require.True(t, ok)
	assert.Equal(t, "grp1", reply.GroupID)
	assert.Contains(t, reply.Text, "Welcome, Jane Doe")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.EnvelopeCounter(metrics.EnvelopeIgnored)))
}

func TestFlowConversation(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.say(t, envelope(alice, "register", 1)), "first and last name")
	assert.Contains(t, f.say(t, envelope(alice, "Jane", 2)), "last name too")
	assert.Contains(t, f.say(t, envelope(alice, "Jane Doe", 3)), "Welcome, Jane Doe")

	// flows are per user
	assert.Empty(t, f.say(t, envelope(bob, "Jane Doe", 4)))

	assert.Contains(t, f.say(t, envelope(alice, "delete", 5)), "Are you sure")
	assert.Contains(t, f.say(t, envelope(alice, "yes", 6)), flow.ConfirmToken)
	assert.Contains(t, f.say(t, envelope(alice, flow.ConfirmToken, 7)), "has been deleted")

	_, found, err := f.roster.Lookup(context.Background(), alice)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAddressedCommandInterruptsFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.say(t, envelope(alice, "register", 1))
	assert.Contains(t, f.say(t, envelope(alice, "@bot cancel", 2)), "paused your registration")

	_, _, active, err := f.flows.Active(ctx, alice)
	require.NoError(t, err)
	assert.False(t, active)

	// unaddressed text is not routed to the paused flow
	assert.Empty(t, f.say(t, envelope(alice, "Jane Doe", 3)))
	_, found, err := f.roster.Lookup(ctx, alice)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFuzzyCommand(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.say(t, envelope(alice, "regster Jane Doe", 1)), "Welcome, Jane Doe")
	assert.Empty(t, f.say(t, envelope(alice, "hello there", 2)))
}
