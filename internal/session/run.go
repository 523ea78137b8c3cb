package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arkavel/voidtable/internal/bus"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/player"
	"github.com/arkavel/voidtable/internal/protocol"
)

// readyTimeout bounds how long the orchestrator waits for the party to
// finish connecting.
const readyTimeout = 30 * time.Second

// Run drives the whole session: bus startup, agent spawn, scenario
// generation, the round loop, and the closing debrief. It returns once the
// session record is written or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.srv.OnMessage(o.inbox.handle)
	if err := o.srv.Start(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer o.srv.Shutdown()

	// Register on the bus so agent replies addressed to the coordinator have
	// a real recipient; the inbox handler already sees every routed frame, so
	// this client's own feed is drained and discarded.
	self, err := bus.Dial(ctx, o.srv.Path(), coordinatorID, protocol.RoleCoordinator)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer self.Close()
	go func() {
		for range self.Receive() {
		}
	}()

	g, agentCtx := errgroup.WithContext(ctx)
	if err := o.spawnParty(agentCtx, g); err != nil {
		return err
	}
	if err := o.awaitReady(ctx); err != nil {
		return err
	}

	o.engine.Log().Emit(mech.EventSessionStart, map[string]any{
		"session": o.cfg.ID, "name": o.cfg.Name, "party": o.partyNames(),
	})

	if locs, err := LoadNotes(o.cfg.OutputDir); err != nil {
		slog.Warn("dm_notes unreadable, starting fresh", "err", err)
	} else if len(locs) > 0 {
		o.state.SeedRecentScenarios(locs)
	}

	result := o.director.GenerateScenario(ctx, o.cfg.ForceScenario, o.cfg.ForceCombat)
	o.scenario = result.Scenario
	o.broadcast(protocol.ScenarioSetup, o.scenario)
	slog.Info("scenario ready",
		"location", o.scenario.Location, "source", result.Source,
		"clocks", len(o.scenario.Clocks))
	for _, spec := range result.Spawns {
		if _, err := o.enemies.Spawn(spec); err != nil {
			slog.Warn("opening spawn failed", "template", spec.Template, "err", err)
		}
	}
	o.updateEnemyGauge(ctx)

	outcome := "draw"
	reason := "the session ran its course"
	for round := 1; round <= o.cfg.MaxRounds; round++ {
		end := o.runRound(ctx)
		if end != nil {
			outcome, reason = end.result, end.reason
			break
		}
		if !o.partyAlive() {
			outcome, reason = "defeat", "the whole party fell"
			break
		}
	}

	o.decaySeeds()

	debriefs := o.collectDebriefs(ctx)
	o.engine.Log().Emit(mech.EventSessionEnd, map[string]any{
		"result": outcome, "reason": reason, "rounds": o.engine.Round(),
	})

	o.broadcast(protocol.Shutdown, protocol.ShutdownPayload{Reason: reason})
	cancel()
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Warn("agent exited with error", "err", err)
	}
	o.metrics.ActiveAgents.Add(context.WithoutCancel(ctx), -int64(len(o.players)))

	if err := o.record.Finish(outcome, reason, debriefs, o.state.RecentScenarios()); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// spawnParty connects the chosen party to the bus, one goroutine per agent.
func (o *Orchestrator) spawnParty(ctx context.Context, g *errgroup.Group) error {
	party := o.pickParty()
	for i, sheet := range party {
		sheet.InitDerived()
		agentID := fmt.Sprintf("player-%d", i+1)

		opts := []player.Option{
			player.WithProviderName(o.deps.ProviderName),
			player.WithLanguage(o.cfg.Language),
		}
		if o.deps.Controller != nil {
			opts = append(opts, player.WithController(o.deps.Controller))
		}
		agent, err := player.New(ctx, o.srv.Path(), agentID, sheet,
			o.providerFor(sheet.Name), o.prompts, o.state, opts...)
		if err != nil {
			return fmt.Errorf("session: spawn %s: %w", sheet.Name, err)
		}

		o.players[agentID] = &playerSlot{agentID: agentID, sheet: sheet}
		o.order = append(o.order, agentID)

		o.engine.SetInitialVoid(agentID, sheet.Void)
		o.engine.SetInitialSoulcredit(agentID, sheet.Soulcredit)

		g.Go(func() error { return agent.Run(ctx) })
		o.metrics.ActiveAgents.Add(ctx, 1)
		if err := agent.AnnounceReady(); err != nil {
			return fmt.Errorf("session: announce %s: %w", sheet.Name, err)
		}
	}
	return nil
}

// awaitReady blocks until every spawned player has announced itself.
func (o *Orchestrator) awaitReady(ctx context.Context) error {
	deadline := time.NewTimer(readyTimeout)
	defer deadline.Stop()

	pending := len(o.players)
	for pending > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("session: %d agents never reported ready", pending)
		case msg := <-o.inbox.ready:
			if slot, ok := o.players[msg.AgentID]; ok && !slot.ready {
				slot.ready = true
				pending--
				slog.Info("agent ready", "agent", msg.AgentID,
					"character", msg.Payload.CharacterName)
			}
		}
	}
	return nil
}

// decaySeeds ages every carried raw seed by one session cycle.
func (o *Orchestrator) decaySeeds() {
	for _, slot := range o.players {
		seeds := slot.sheet.Energy.Seeds
		for i, s := range seeds {
			seeds[i] = s.Decay()
		}
	}
}

// collectDebriefs runs the debrief phase: every living character gets one
// turn request and a short window to answer.
func (o *Orchestrator) collectDebriefs(ctx context.Context) []protocol.DebriefPayload {
	var out []protocol.DebriefPayload
	for _, agentID := range o.order {
		slot := o.players[agentID]
		o.sendTo(agentID, protocol.TurnRequest, protocol.TurnRequestPayload{
			Round:    o.engine.Round(),
			Phase:    protocol.PhaseDebrief,
			Scenario: o.scenario,
		})

		select {
		case <-ctx.Done():
			return out
		case msg := <-o.inbox.debriefs:
			out = append(out, msg.Payload)
			o.engine.Log().Emit(mech.EventMissionDebrief, map[string]any{
				"character": msg.Payload.CharacterName, "text": msg.Payload.Text,
			})
		case <-time.After(o.cfg.DeclarationTimeout):
			slog.Warn("debrief timed out", "agent", agentID, "character", slot.sheet.Name)
		}
	}
	return out
}

func (o *Orchestrator) partyNames() []string {
	names := make([]string, 0, len(o.order))
	for _, id := range o.order {
		names = append(names, o.players[id].sheet.Name)
	}
	return names
}

func (o *Orchestrator) partyAlive() bool {
	for _, slot := range o.players {
		if slot.sheet.Alive() {
			return true
		}
	}
	return false
}
