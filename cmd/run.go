package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/activation"
	"github.com/lunamoth/heartflow/internal/bus"
	"github.com/lunamoth/heartflow/internal/config"
	"github.com/lunamoth/heartflow/internal/engagement"
	"github.com/lunamoth/heartflow/internal/loop"
	"github.com/lunamoth/heartflow/internal/planner"
	"github.com/lunamoth/heartflow/internal/providers"
	"github.com/lunamoth/heartflow/internal/store"
	"github.com/lunamoth/heartflow/internal/tracing"
	"github.com/lunamoth/heartflow/internal/transcript"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine; feed messages on stdin as 'conversation<TAB>sender<TAB>text'",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			return runEngine(cfg)
		},
	}
}

func runEngine(cfg *config.Config) error {
	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	sink, err := openSink(cfg.Store)
	if err != nil {
		return err
	}
	defer sink.Close()

	provider := providers.NewOpenAICompatible(
		cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)

	registry := actions.NewRegistry()
	var manifestWatcher *actions.ManifestWatcher
	if cfg.Manifest != "" {
		m, err := actions.LoadManifest(cfg.Manifest)
		if err != nil {
			return err
		}
		if err := m.Apply(registry, nil); err != nil {
			return err
		}
		manifestWatcher, err = actions.NewManifestWatcher(cfg.Manifest, registry, nil)
		if err != nil {
			return fmt.Errorf("manifest watcher: %w", err)
		}
		if err := manifestWatcher.Start(); err != nil {
			return fmt.Errorf("manifest watcher: %w", err)
		}
		defer manifestWatcher.Stop()
	}

	var judgeRate *rate.Limiter
	if cfg.Activation.JudgeRatePerS > 0 {
		judgeRate = rate.NewLimiter(rate.Limit(cfg.Activation.JudgeRatePerS), 1)
	}
	filter := activation.NewFilter(
		activation.NewProviderJudge(provider, cfg.Provider.Model),
		activation.Options{
			CacheSize:    cfg.Activation.CacheSize,
			CacheTTL:     time.Duration(cfg.Activation.CacheTTLMs) * time.Millisecond,
			MaxParallel:  cfg.Activation.MaxParallel,
			JudgeTimeout: time.Duration(cfg.Activation.JudgeTimeoutMs) * time.Millisecond,
			JudgeRate:    judgeRate,
		})

	pl := planner.New(provider, cfg.Provider.Model,
		time.Duration(cfg.Planner.TimeoutMs)*time.Millisecond)
	renderer := transcript.NewTextRenderer()
	replies := &providerReplies{provider: provider, model: cfg.Provider.Model}
	sender := &stdoutSender{}

	manager := loop.NewManager()
	inboxes := make(map[string]*bus.Inbox, len(cfg.Conversations))
	for _, conv := range cfg.Conversations {
		inbox := bus.NewInbox(conv.ID, bus.InboxOptions{Debounce: 800 * time.Millisecond})
		inboxes[conv.ID] = inbox

		engCfg := engagementConfig(cfg.Engagement, conv)
		l := loop.New(loop.Options{
			ConversationID:    conv.ID,
			ReadinessCount:    cfg.Loop.ReadinessCount,
			InterestThreshold: cfg.Loop.InterestThreshold,
			Idle:              time.Duration(cfg.Loop.IdleMs) * time.Millisecond,
			Sleep:             time.Duration(cfg.Loop.SleepMs) * time.Millisecond,
			HistorySize:       cfg.Loop.HistorySize,
			MaxHistoryLines:   cfg.Planner.MaxHistory,
			CrashPolicy:       loop.CrashPolicy(cfg.Loop.CrashPolicy),
			RestartBackoff:    time.Duration(cfg.Loop.RestartBackoffMs) * time.Millisecond,
			TimeoutWarnStreak: cfg.Loop.TimeoutWarnStreak,
			DecayTick:         time.Duration(cfg.Loop.DecayTickMs) * time.Millisecond,
			ReplyTimeout:      time.Duration(cfg.Loop.ReplyTimeoutMs) * time.Millisecond,
		}, loop.Deps{
			Inbox:    inbox,
			Registry: registry,
			Filter:   filter,
			Planner:  pl,
			Model:    engagement.NewModel(engCfg),
			Renderer: renderer,
			Replies:  replies,
			Sender:   sender,
			Sink:     sink,
		})
		if err := manager.Add(l); err != nil {
			return err
		}
	}

	manager.StartAll()
	slog.Info("engine running", "conversations", len(cfg.Conversations))

	go feedStdin(inboxes)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	manager.StopAll()
	return nil
}

func engagementConfig(base config.EngagementConfig, conv config.ConversationConfig) engagement.Config {
	cfg := engagement.Config{
		EnergyCeiling:         base.EnergyCeiling,
		FocusEnterEnergy:      base.FocusEnterEnergy,
		TrafficThreshold:      base.TrafficThreshold,
		FocusFactor:           conv.FocusFactor,
		Priority:              conv.Priority,
		DecayPerCycle:         base.DecayPerCycle,
		PassiveDecayPerMinute: base.PassiveDecayPerMinute,
		GrowthPerReply:        base.GrowthPerReply,
		SigmoidSlope:          base.SigmoidSlope,
		SigmoidMidpoint:       base.SigmoidMidpoint,
	}
	return cfg
}

func openSink(cfg config.StoreConfig) (store.Sink, error) {
	switch cfg.Backend {
	case "file":
		return store.NewJSONLSink(cfg.Path)
	case "sqlite":
		return store.NewSQLiteSink(cfg.Path)
	default:
		return store.NopSink{}, nil
	}
}

// feedStdin maps 'conversation<TAB>sender<TAB>text' lines into inboxes.
// Lines mentioning @bot are marked as mentions.
func feedStdin(inboxes map[string]*bus.Inbox) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		inbox, ok := inboxes[parts[0]]
		if !ok {
			slog.Warn("message for unknown conversation", "conversation", parts[0])
			continue
		}
		inbox.Push(bus.Message{
			ID:             uuid.NewString(),
			ConversationID: parts[0],
			SenderID:       parts[1],
			SenderName:     parts[1],
			Content:        parts[2],
			Timestamp:      time.Now(),
			Interest:       1,
			Mentioned:      strings.Contains(parts[2], "@bot"),
		})
	}
}
