// Package main runs the combat server against a single console player.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/config"
	"github.com/bestm80eva/Solace/internal/frontend/console"
	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/ai"
	"github.com/bestm80eva/Solace/internal/game/clock"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/command"
	"github.com/bestm80eva/Solace/internal/game/condition"
	"github.com/bestm80eva/Solace/internal/game/dice"
	"github.com/bestm80eva/Solace/internal/game/npc"
	"github.com/bestm80eva/Solace/internal/game/session"
	"github.com/bestm80eva/Solace/internal/gameserver"
	"github.com/bestm80eva/Solace/internal/observability"
	"github.com/bestm80eva/Solace/internal/scripting"
	"github.com/bestm80eva/Solace/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	playerPath := flag.String("player", "content/players/hero.yaml", "path to the console player's template")
	envFile := flag.String("env", ".env", "optional dotenv file with SOLACE_* and OTEL_* overrides")
	color := flag.Bool("color", true, "use ANSI colors on the console")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "gameserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("setting up tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	logger.Info("starting combat server",
		zap.String("config", *configPath),
		zap.Duration("round_interval", cfg.Battle.RoundInterval),
	)

	conditions, err := condition.LoadDirectory(cfg.Content.ConditionsDir)
	if err != nil {
		logger.Fatal("loading condition definitions", zap.Error(err))
	}
	logger.Info("loaded condition definitions", zap.Int("count", len(conditions.IDs())))

	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)

	// hooks and tactics stay nil interfaces when scripting is disabled.
	var (
		hooks   ability.HookSource
		tactics ai.ScriptSource
	)
	if cfg.Content.ScriptsDir != "" {
		scriptStart := time.Now()
		scriptMgr := scripting.NewManager(roller, logger)
		if err := scriptMgr.Load(cfg.Content.ScriptsDir, cfg.Scripting.InstructionLimit); err != nil {
			logger.Fatal("loading scripts", zap.String("dir", cfg.Content.ScriptsDir), zap.Error(err))
		}
		defer scriptMgr.Close()
		hooks, tactics = scriptMgr, scriptMgr
		logger.Info("scripting engine initialized", zap.Duration("elapsed", time.Since(scriptStart)))
	}

	abilities, err := ability.LoadDirectory(cfg.Content.AbilitiesDir, hooks)
	if err != nil {
		logger.Fatal("loading ability definitions", zap.Error(err))
	}
	logger.Info("loaded ability definitions", zap.Int("count", len(abilities.Names())))

	room := cfg.World.StartRoom
	sessions := session.NewManager(conditions, cfg.Battle.DefaultDamage)
	if cfg.Content.NPCsDir != "" {
		spawnMobiles(logger, sessions, abilities, cfg.Content.NPCsDir, room)
	}

	player := loadPlayer(logger, sessions, abilities, *playerPath, room, cfg.Battle.DefaultDamage)

	clk := clock.New(logger)
	defer clk.Stop()

	resolver := ability.NewResolver(roller, logger)
	battles := combat.NewBattleManager(clk, roller, logger,
		combat.WithInterval(cfg.Battle.RoundInterval),
		combat.WithTracer(observability.Tracer("combat")),
	)
	combatHandler := gameserver.NewCombatHandler(sessions, abilities, resolver, battles, logger)
	npcHandler := gameserver.NewNPCHandler(sessions, abilities, resolver, battles, logger,
		gameserver.WithPlanners(loadPlanners(logger, cfg.Content.AIDir, tactics)),
	)
	dispatcher := gameserver.NewDispatcher(command.DefaultRegistry(), combatHandler, sessions, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("battles", server.Background(battles.Start, battles.Stop))
	lifecycle.Add("mobiles", server.Interval(clk, "mobile-ai", cfg.World.MobileInterval, func() {
		npcHandler.Tick()
	}))
	if cfg.World.RegenAmount > 0 {
		lifecycle.Add("regen", server.Interval(clk, "regen", cfg.World.RegenInterval, func() {
			sessions.Regenerate(cfg.World.RegenAmount)
		}))
	}

	bridge := console.NewBridge(console.NewConn(os.Stdin, os.Stdout, *color), player, dispatcher, logger)
	lifecycle.Add("console", &server.FuncService{
		StartFn: func() error {
			err := bridge.Run(ctx)
			if derr := combatHandler.Disconnect(player.ID()); derr != nil {
				logger.Warn("disconnecting player", zap.Error(derr))
			}
			// Leaving the console ends the process.
			cancel()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
		StopFn: cancel,
	})

	player.SendMessage("You step into the " + room + ". Type help for a list of commands.")
	logger.Info("combat server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("characters", sessions.Count()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

// spawnMobiles places one mobile per template in room, in template ID order.
func spawnMobiles(logger *zap.Logger, sessions *session.Manager, abilities *ability.Registry, dir, room string) {
	templates, err := npc.LoadTemplates(dir)
	if err != nil {
		logger.Fatal("loading npc templates", zap.Error(err))
	}
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		tmpl := templates[id]
		warnUnknownAbilities(logger, abilities, tmpl)
		mob, err := sessions.SpawnMobile(tmpl, room)
		if err != nil {
			logger.Fatal("spawning mobile", zap.String("template", id), zap.Error(err))
		}
		logger.Info("spawned mobile",
			zap.String("id", mob.ID()),
			zap.String("name", mob.Name()),
			zap.String("room", room),
		)
	}
}

// loadPlanners registers every tactics domain in dir. An empty dir yields an
// empty registry.
func loadPlanners(logger *zap.Logger, dir string, scripts ai.ScriptSource) *ai.Registry {
	planners := ai.NewRegistry()
	if dir == "" {
		return planners
	}
	domains, err := ai.LoadDomains(dir)
	if err != nil {
		logger.Fatal("loading tactics domains", zap.Error(err))
	}
	for _, d := range domains {
		if err := planners.Register(d, scripts); err != nil {
			logger.Fatal("registering tactics domain", zap.String("domain", d.ID), zap.Error(err))
		}
	}
	logger.Info("loaded tactics domains", zap.Int("count", planners.Len()))
	return planners
}

// loadPlayer reads the player template at path and adds the player to room.
func loadPlayer(logger *zap.Logger, sessions *session.Manager, abilities *ability.Registry, path, room, defaultDamage string) *session.Character {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading player template", zap.String("path", path), zap.Error(err))
	}
	tmpl, err := npc.LoadTemplateFromBytes(data)
	if err != nil {
		logger.Fatal("parsing player template", zap.String("path", path), zap.Error(err))
	}
	warnUnknownAbilities(logger, abilities, tmpl)

	damage := tmpl.Damage
	if damage == "" {
		damage = defaultDamage
	}
	player, err := sessions.AddPlayer(tmpl.ID, session.Stats{
		Name:      tmpl.Name,
		Level:     tmpl.Level,
		MaxHealth: tmpl.MaxHP,
		Stamina:   tmpl.Stamina,
		Mana:      tmpl.Mana,
		Damage:    damage,
		Saves:     tmpl.Saves,
		Abilities: tmpl.Abilities,
	}, room)
	if err != nil {
		logger.Fatal("adding player", zap.Error(err))
	}
	return player
}

func warnUnknownAbilities(logger *zap.Logger, abilities *ability.Registry, tmpl *npc.Template) {
	for _, name := range tmpl.Abilities {
		if _, err := abilities.Get(name); err != nil {
			logger.Warn("template lists unknown ability",
				zap.String("template", tmpl.ID),
				zap.String("ability", name),
			)
		}
	}
}
