// Package hoster is the orchestrator core: it dispatches chat commands,
// drives the intake state machine, runs the provision → launch → verify
// pipeline for each new tenant, and implements the stop protocol.
package hoster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/musichost/hoster/events"
	"github.com/musichost/hoster/intake"
	"github.com/musichost/hoster/provision"
	"github.com/musichost/hoster/registry"
	"github.com/musichost/hoster/store"
	"github.com/musichost/hoster/supervise"
	"github.com/musichost/hoster/telegram"
)

// Transport delivers user-facing replies and progress edits.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) (telegram.MessageRef, error)
	Edit(ctx context.Context, ref telegram.MessageRef, text string) error
}

// Prober confirms a hosted bot answers the platform API.
type Prober interface {
	// Verify retries on transient timeouts; used once after launch.
	Verify(ctx context.Context, token string) (telegram.BotIdentity, error)
	// Lookup is a single probe; used by the health monitor.
	Lookup(ctx context.Context, token string) (telegram.BotIdentity, error)
}

// Service wires the intake manager, provisioner, supervisor, and registry
// behind the chat command surface.
type Service struct {
	adminID     int64
	intake      *intake.Manager
	registry    *registry.Registry
	provisioner *provision.Provisioner
	runner      supervise.Runner
	transport   Transport
	prober      Prober
	events      *events.Publisher
	runs        *store.RunStore
	log         *slog.Logger

	// mu guards inFlight: users whose provisioning pipeline is still
	// running, so the workspace stays owned by exactly one pipeline even
	// before the tenant reaches the registry.
	mu       sync.Mutex
	inFlight map[int64]struct{}

	// launch wraps launchTenant so tests can run the pipeline inline
	// instead of in a goroutine.
	launch func(userID, chatID int64, cfg intake.Config)
}

// Deps carries everything a Service needs.
type Deps struct {
	AdminID     int64
	Intake      *intake.Manager
	Registry    *registry.Registry
	Provisioner *provision.Provisioner
	Runner      supervise.Runner
	Transport   Transport
	Prober      Prober
	Events      *events.Publisher
	Runs        *store.RunStore
}

func NewService(deps Deps) *Service {
	s := &Service{
		adminID:     deps.AdminID,
		intake:      deps.Intake,
		registry:    deps.Registry,
		provisioner: deps.Provisioner,
		runner:      deps.Runner,
		transport:   deps.Transport,
		prober:      deps.Prober,
		events:      deps.Events,
		runs:        deps.Runs,
		log:         slog.Default().With("component", "hoster"),
		inFlight:    make(map[int64]struct{}),
	}
	s.launch = func(userID, chatID int64, cfg intake.Config) {
		// Provisioning is detached from the inbound update so the poll
		// loop keeps serving other users.
		go s.launchTenant(context.Background(), userID, chatID, cfg)
	}
	return s
}

// HandleUpdate processes one inbound message: commands are dispatched,
// free text feeds the sender's intake session, and free text from users
// without a session is ignored.
func (s *Service) HandleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		s.handleCommand(ctx, userID, chatID, msg.From, text)
		return
	}

	s.handleIntakeMessage(ctx, userID, chatID, text)
}

func (s *Service) handleCommand(ctx context.Context, userID, chatID int64, from telegram.User, text string) {
	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	// Group chats address commands as /cmd@BotName.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	switch command {
	case "/start":
		s.reply(ctx, chatID, greeting(from))
	case "/help":
		s.reply(ctx, chatID, helpText)
	case "/host", "/clone":
		s.handleHost(ctx, userID, chatID)
	case "/stop":
		s.handleStop(ctx, userID, chatID)
	case "/status":
		s.handleStatus(ctx, userID, chatID)
	default:
		// Unknown commands are ignored, like any other stray input.
	}
}

func (s *Service) handleHost(ctx context.Context, userID, chatID int64) {
	if s.registry.Has(userID) || s.provisioning(userID) {
		s.reply(ctx, chatID, msgAlreadyHosting)
		return
	}
	s.reply(ctx, chatID, s.intake.Begin(userID))
}

// beginProvisioning claims the user's pipeline slot. It reports false when a
// pipeline is already in flight for the user.
func (s *Service) beginProvisioning(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[userID]; ok {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *Service) endProvisioning(userID int64) {
	s.mu.Lock()
	delete(s.inFlight, userID)
	s.mu.Unlock()
}

func (s *Service) provisioning(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[userID]
	return ok
}

func (s *Service) handleIntakeMessage(ctx context.Context, userID, chatID int64, text string) {
	res, err := s.intake.Submit(userID, text)
	if errors.Is(err, intake.ErrNoSession) {
		return
	}
	if err != nil {
		s.log.Error("intake submit failed", "user", userID, "err", err)
		return
	}

	if !res.Done {
		s.reply(ctx, chatID, res.Reply)
		return
	}

	if !s.beginProvisioning(userID) {
		s.reply(ctx, chatID, msgAlreadyHosting)
		return
	}
	s.reply(ctx, chatID, msgIntakeComplete)
	s.launch(userID, chatID, *res.Config)
}

func (s *Service) handleStop(ctx context.Context, userID, chatID int64) {
	tenant, ok := s.StopTenant(ctx, userID)
	if !ok {
		s.reply(ctx, chatID, msgNoActiveBot)
		return
	}

	s.reply(ctx, chatID, fmt.Sprintf(msgBotStopped, tenant.BotUsername))

	if userID == s.adminID {
		s.StopAll(ctx)
		s.reply(ctx, chatID, msgAllStopped)
	}
}

// StopTenant deregisters one tenant and tears it down: process terminated,
// workspace removed. The second return reports whether the user had an
// active tenant.
func (s *Service) StopTenant(ctx context.Context, userID int64) (registry.Tenant, bool) {
	tenant, ok := s.registry.Remove(userID)
	if !ok {
		return registry.Tenant{}, false
	}

	s.teardown(ctx, tenant)
	s.events.Publish(ctx, events.Event{Type: events.TypeStopped, UserID: userID, BotUsername: tenant.BotUsername})
	return tenant, true
}

// StopAll terminates every registered tenant, best-effort: one tenant's
// failure never prevents the rest from stopping, and the registry always
// ends empty. No per-user notifications are sent.
func (s *Service) StopAll(ctx context.Context) {
	for _, tenant := range s.registry.Snapshot() {
		s.StopTenant(ctx, tenant.UserID)
	}
	s.registry.Clear()
}

// teardown terminates the tenant's process and removes its workspace.
// Failures are logged; a stuck process must not block the stop protocol.
func (s *Service) teardown(ctx context.Context, tenant registry.Tenant) {
	if tenant.Handle != nil {
		if err := tenant.Handle.Terminate(ctx); err != nil {
			s.log.Error("terminate failed", "user", tenant.UserID, "err", err)
		}
	}
	if err := s.provisioner.Cleanup(tenant.UserID); err != nil {
		s.log.Error("workspace cleanup failed", "user", tenant.UserID, "err", err)
	}
}

func (s *Service) handleStatus(ctx context.Context, userID, chatID int64) {
	tenant, ok := s.registry.Get(userID)
	if !ok {
		s.reply(ctx, chatID, msgNoActiveBots)
		return
	}
	s.reply(ctx, chatID, fmt.Sprintf(msgBotActive, tenant.BotUsername))
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.transport.Send(ctx, chatID, text); err != nil {
		s.log.Error("send failed", "chat", chatID, "err", err)
	}
}
