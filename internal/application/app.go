// Package application wires the reverse-engineering orchestrator: one
// *service.Driver per configured agent, all sharing a Conflict Detector, a
// Conflict Coordinator, an Event Bus, a Patch Manager, and a dial to the
// external host process, plus one Coordination Client per agent so agents
// can discuss and deliberate over shared writes.
package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/shells-above/swarmre/internal/domain/conflict"
	rectx "github.com/shells-above/swarmre/internal/domain/context"
	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/domain/memory"
	"github.com/shells-above/swarmre/internal/domain/patch"
	"github.com/shells-above/swarmre/internal/domain/service"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
	"github.com/shells-above/swarmre/internal/domain/valueobject"
	"github.com/shells-above/swarmre/internal/infrastructure/config"
	"github.com/shells-above/swarmre/internal/infrastructure/coordination"
	"github.com/shells-above/swarmre/internal/infrastructure/debugbroker"
	"github.com/shells-above/swarmre/internal/infrastructure/eventbus"
	"github.com/shells-above/swarmre/internal/infrastructure/llm"
	"github.com/shells-above/swarmre/internal/infrastructure/llm/anthropic"
	"github.com/shells-above/swarmre/internal/infrastructure/persistence"
	"github.com/shells-above/swarmre/internal/infrastructure/retool"
	"github.com/shells-above/swarmre/internal/infrastructure/rpchost"
)

// AgentRuntime bundles one agent's running pieces.
type AgentRuntime struct {
	ID           string
	Task         string
	Driver       *service.Driver
	Coordination *coordination.Client
	DebugBroker  *debugbroker.Client
	MemoryStore  *memory.Store
}

// App is the root dependency container for the orchestrator.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	bus         eventbus.Bus
	detector    *conflict.Detector
	coordinator *conflict.Coordinator
	host        *rpchost.Client
	patchMgr    *patch.Manager

	agents map[string]*AgentRuntime
}

// NewApp dials the external host and, per configured agent, the
// coordination server, then wires one Driver per agent.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := persistence.NewDBConnection(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	host, err := rpchost.Dial(ctx, cfg.Swarm.HostAddress)
	if err != nil {
		return nil, fmt.Errorf("dial host: %w", err)
	}

	bus := eventbus.NewInMemoryBus(logger, 256)

	detector := conflict.NewDetector(host.BinaryID(), persistence.NewGormConflictStore(db))
	coordinator := conflict.NewCoordinator(cfg.Swarm.ConflictDeadline)

	journal := persistence.NewPatchJournal(db)
	patchMgr := patch.NewManager(host, host, journal, logger)

	app := &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		bus:         bus,
		detector:    detector,
		coordinator: coordinator,
		host:        host,
		patchMgr:    patchMgr,
		agents:      make(map[string]*AgentRuntime),
	}

	for _, agentCfg := range cfg.Swarm.Agents {
		rt, err := app.buildAgent(ctx, agentCfg)
		if err != nil {
			return nil, fmt.Errorf("build agent %s: %w", agentCfg.ID, err)
		}
		app.agents[agentCfg.ID] = rt
	}

	return app, nil
}

// activeConflictRef forwards retool.ActiveConflict to a Driver that does
// not exist yet at tool-registration time: the registry needs it before
// the Driver can be constructed, since the Driver itself needs the
// finished registry as its ToolExecRegistry.
type activeConflictRef struct {
	driver *service.Driver
}

func (r *activeConflictRef) CurrentConflictChannel() (string, bool) {
	if r.driver == nil {
		return "", false
	}
	return r.driver.CurrentConflictChannel()
}

func (app *App) buildAgent(ctx context.Context, agentCfg config.SwarmAgentConfig) (*AgentRuntime, error) {
	cfg := app.config
	logger := app.logger.With(zap.String("agent_id", agentCfg.ID))

	providerCfg := llm.ProviderConfig{Name: "anthropic", Type: "anthropic"}
	var oauthRefresher service.OAuthRefresher
	provider := anthropic.New(providerCfg, logger)
	if agentCfg.UseOAuth {
		oauthCfg := oauth2.Config{
			ClientID:     agentCfg.OAuthClientID,
			ClientSecret: agentCfg.OAuthClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: "https://console.anthropic.com/v1/oauth/token",
			},
		}
		cred := anthropic.NewOAuthCredential(oauthCfg, &oauth2.Token{RefreshToken: agentCfg.OAuthRefreshToken})
		provider.SetOAuthCredential(cred)
		oauthRefresher = cred
	} else {
		provider = anthropic.New(llm.ProviderConfig{Name: "anthropic", Type: "anthropic", APIKey: agentCfg.APIKey}, logger)
	}

	memStore := memory.NewStore()
	registry := domaintool.NewInMemoryRegistry()

	coordClient, err := coordination.Dial(ctx, cfg.Swarm.CoordinationAddress, agentCfg.ID, nil, app.coordinator, logger)
	if err != nil {
		return nil, fmt.Errorf("dial coordination: %w", err)
	}

	var debugClient *debugbroker.Client
	if agentCfg.JoinDebugBroker {
		debugClient = debugbroker.NewClient(coordClient, cfg.Swarm.DebugBrokerChannel, 30*time.Second, logger)
		coordClient.SetDebugSink(debugClient)
	}

	conflictRef := &activeConflictRef{}

	retool.RegisterAllTools(retool.Deps{
		Registry:       registry,
		Logger:         logger,
		Host:           app.host,
		PatchManager:   app.patchMgr,
		MemoryStore:    memStore,
		Detector:       app.detector,
		Coordinator:    app.coordinator,
		Outbox:         coordClient,
		ActiveConflict: conflictRef,
		AgentID:        agentCfg.ID,
		Disasm:         app.host.Disassemble,
	})

	modelConfig := valueobject.NewModelConfig("anthropic", agentCfg.Model, 8192, 1.0, 0.95, false)
	agentEntity, err := entity.NewAgent(agentCfg.ID, agentCfg.Task, modelConfig)
	if err != nil {
		return nil, fmt.Errorf("create agent entity: %w", err)
	}

	state := entity.NewExecutionState()
	usage := &entity.TokenUsage{}
	tokenizer := rectx.NewSimpleTokenizer()

	grader := service.NewGrader(provider, agentCfg.Model, agentCfg.Model, tokenizer, cfg.Agent.Guardrails.ContextMaxTokens, app.bus, logger)
	consolidation := service.NewConsolidationEngine(provider, registry, app.bus, tokenizer, logger)

	driverCfg := service.DefaultDriverConfig()
	if cfg.Agent.Guardrails.ContextMaxTokens > 0 {
		driverCfg.ContextTokenLimit = cfg.Agent.Guardrails.ContextMaxTokens
	}
	if cfg.Agent.Runtime.MaxRetries > 0 {
		driverCfg.MaxRetries = cfg.Agent.Runtime.MaxRetries
	}
	if cfg.Agent.Runtime.RetryBaseWait > 0 {
		driverCfg.RetryBaseWait = cfg.Agent.Runtime.RetryBaseWait
	}

	driver := service.NewDriver(service.DriverDeps{
		Agent:         agentEntity,
		State:         state,
		Usage:         usage,
		Config:        driverCfg,
		LLM:           provider,
		OAuth:         oauthRefresher,
		Tools:         registry,
		Detector:      app.detector,
		Coordinator:   app.coordinator,
		Outbox:        coordClient,
		Consolidation: consolidation,
		Grader:        grader,
		Bus:           app.bus,
		Logger:        logger,
	})
	conflictRef.driver = driver
	coordClient.SetSink(driver)

	if err := coordClient.Announce(agentCfg.Task); err != nil {
		logger.Warn("failed to announce task on coordination server", zap.Error(err))
	}

	return &AgentRuntime{
		ID:           agentCfg.ID,
		Task:         agentCfg.Task,
		Driver:       driver,
		Coordination: coordClient,
		DebugBroker:  debugClient,
		MemoryStore:  memStore,
	}, nil
}

// Agent returns the named agent's runtime, if configured.
func (app *App) Agent(id string) (*AgentRuntime, bool) {
	rt, ok := app.agents[id]
	return rt, ok
}

// Agents returns every configured agent's runtime.
func (app *App) Agents() []*AgentRuntime {
	out := make([]*AgentRuntime, 0, len(app.agents))
	for _, rt := range app.agents {
		out = append(out, rt)
	}
	return out
}

// Bus returns the shared Event Bus, for callers that want to subscribe to
// cross-agent progress.
func (app *App) Bus() eventbus.Bus { return app.bus }

// Logger returns the root logger.
func (app *App) Logger() *zap.Logger { return app.logger }

// Run submits each agent's configured task to its Driver concurrently and
// waits for all of them to finish or for ctx to be cancelled.
func (app *App) Run(ctx context.Context) map[string]*service.DriverResult {
	type outcome struct {
		id     string
		result *service.DriverResult
		err    error
	}

	resultsCh := make(chan outcome, len(app.agents))
	for _, rt := range app.agents {
		go func(rt *AgentRuntime) {
			result, err := rt.Driver.Run(ctx, service.NewTask(rt.Task))
			resultsCh <- outcome{id: rt.ID, result: result, err: err}
		}(rt)
	}

	results := make(map[string]*service.DriverResult, len(app.agents))
	for range app.agents {
		o := <-resultsCh
		if o.err != nil {
			app.logger.Error("agent run failed", zap.String("agent_id", o.id), zap.Error(o.err))
			continue
		}
		results[o.id] = o.result
	}
	return results
}

// Stop closes every agent's coordination connection and the host dial.
func (app *App) Stop(ctx context.Context) error {
	for _, rt := range app.agents {
		rt.Coordination.Close()
	}
	app.host.Close()
	if sqlDB, err := app.db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}
