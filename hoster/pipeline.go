package hoster

import (
	"context"
	"fmt"
	"time"

	"github.com/musichost/hoster/events"
	"github.com/musichost/hoster/intake"
	"github.com/musichost/hoster/registry"
	"github.com/musichost/hoster/store"
	"github.com/musichost/hoster/supervise"
	"github.com/musichost/hoster/telegram"
)

// launchTenant runs the full hosting pipeline for one user: provision the
// workspace, start the process, confirm it survived startup, verify the
// hosted bot answers the platform API, then register the tenant. Any failure
// rolls the workspace back and reports the cause to the user; nothing is
// registered.
func (s *Service) launchTenant(ctx context.Context, userID, chatID int64, cfg intake.Config) {
	defer s.endProvisioning(userID)

	status, err := s.transport.Send(ctx, chatID, "Starting setup process...")
	if err != nil {
		s.log.Error("status message send failed", "user", userID, "err", err)
	}

	runID, err := s.runs.StartRun(ctx, userID)
	if err != nil {
		s.log.Error("run history unavailable", "user", userID, "err", err)
	}

	report := func(step, message string) {
		s.edit(ctx, status, message)
		if err := s.runs.RecordStep(ctx, runID, step, store.StatusRunning, message); err != nil {
			s.log.Error("record run step failed", "run", runID, "err", err)
		}
	}

	workDir, err := s.provisioner.Provision(ctx, userID, cfg, report)
	if err != nil {
		s.failLaunch(ctx, userID, status, runID, nil, err)
		return
	}

	report("start process", "Starting your music bot...")
	handle, err := s.runner.Launch(ctx, workDir)
	if err != nil {
		s.failLaunch(ctx, userID, status, runID, nil, err)
		return
	}

	report("verify bot", "Waiting for your bot to come online...")
	identity, err := s.prober.Verify(ctx, cfg.BotToken)
	if err != nil {
		s.failLaunch(ctx, userID, status, runID, handle, fmt.Errorf("bot did not answer the Telegram API: %w", err))
		return
	}

	tenant := &registry.Tenant{
		UserID:      userID,
		BotUsername: identity.Username,
		BotToken:    cfg.BotToken,
		WorkDir:     workDir,
		Handle:      handle,
		StartedAt:   time.Now(),
		LastSeen:    time.Now(),
	}
	if err := s.registry.Add(tenant); err != nil {
		s.failLaunch(ctx, userID, status, runID, handle, err)
		return
	}

	if err := s.runs.FinishRun(ctx, runID, store.StatusSucceeded, ""); err != nil {
		s.log.Error("finish run failed", "run", runID, "err", err)
	}
	s.events.Publish(ctx, events.Event{Type: events.TypeHosted, UserID: userID, BotUsername: identity.Username})
	s.edit(ctx, status, fmt.Sprintf(msgBotHosted, identity.Username))
	s.log.Info("tenant hosted", "user", userID, "bot", identity.Username, "process", handle.ID())
}

// failLaunch rolls back a failed pipeline: the launched process (if any) is
// terminated, the workspace removed, and the cause reported verbatim.
func (s *Service) failLaunch(ctx context.Context, userID int64, status telegram.MessageRef, runID string, handle supervise.Handle, cause error) {
	s.log.Error("hosting pipeline failed", "user", userID, "err", cause)

	if handle != nil {
		if err := handle.Terminate(ctx); err != nil {
			s.log.Error("rollback terminate failed", "user", userID, "err", err)
		}
	}
	if err := s.provisioner.Cleanup(userID); err != nil {
		s.log.Error("rollback cleanup failed", "user", userID, "err", err)
	}

	if err := s.runs.FinishRun(ctx, runID, store.StatusFailed, cause.Error()); err != nil {
		s.log.Error("finish run failed", "run", runID, "err", err)
	}
	s.events.Publish(ctx, events.Event{Type: events.TypeProvisionFailed, UserID: userID, Reason: cause.Error()})
	s.edit(ctx, status, fmt.Sprintf(msgSetupFailed, cause))
}

func (s *Service) edit(ctx context.Context, ref telegram.MessageRef, text string) {
	if ref.MessageID == 0 {
		return
	}
	if err := s.transport.Edit(ctx, ref, text); err != nil {
		s.log.Error("edit failed", "chat", ref.ChatID, "err", err)
	}
}
