package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"

	assistant "github.com/tanpawarit/Chative-Billing-Assistant/agent/agents/assistant"
	"github.com/tanpawarit/Chative-Billing-Assistant/agent/billing"
	graphx "github.com/tanpawarit/Chative-Billing-Assistant/agent/graph"
	"github.com/tanpawarit/Chative-Billing-Assistant/agent/llm"
	promptx "github.com/tanpawarit/Chative-Billing-Assistant/agent/prompt"
	statex "github.com/tanpawarit/Chative-Billing-Assistant/agent/state"
	toolx "github.com/tanpawarit/Chative-Billing-Assistant/agent/tool"
	"github.com/tanpawarit/Chative-Billing-Assistant/api"
	configx "github.com/tanpawarit/Chative-Billing-Assistant/pkg/config"
	geminix "github.com/tanpawarit/Chative-Billing-Assistant/pkg/gemini"
	_ "github.com/tanpawarit/Chative-Billing-Assistant/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Chative-Billing-Assistant/pkg/openrouter"
	postgresx "github.com/tanpawarit/Chative-Billing-Assistant/pkg/postgres"
	qstashx "github.com/tanpawarit/Chative-Billing-Assistant/pkg/qstash"
	redisx "github.com/tanpawarit/Chative-Billing-Assistant/pkg/redis"
)

// ThreadsConfig selects the thread backend. LeaseTTL bounds the
// cross-replica lease of a turn on redis and upstash; zero disables it, and
// then each thread_id must be routed to a single instance.
type ThreadsConfig struct {
	Backend        string        `envconfig:"BACKEND" default:"memory"`
	TTL            time.Duration `envconfig:"TTL" default:"0"`
	KeyPrefix      string        `envconfig:"KEY_PREFIX" default:"billing:thread:"`
	LeaseTTL       time.Duration `envconfig:"LEASE_TTL" default:"5m"`
	LeaseKeyPrefix string        `envconfig:"LEASE_KEY_PREFIX" default:"billing:lease:"`
}

type ToolConfig struct {
	Concurrency int `envconfig:"CONCURRENCY" default:"1"`
}

type BillingConfig struct {
	DefaultUserID string `envconfig:"DEFAULT_USER_ID" default:"user_123"`
	SeedDemo      bool   `envconfig:"SEED_DEMO" default:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("billing assistant stopped")
	}
}

func run(ctx context.Context) error {
	serverCfg := configx.MustNew[api.ServerConfig]("SERVER")
	llmCfg := configx.MustNew[llm.Config]("LLM")
	graphCfg := configx.MustNew[graphx.Config]("GRAPH")
	toolCfg := configx.MustNew[ToolConfig]("TOOL")
	billingCfg := configx.MustNew[BillingConfig]("BILLING")

	records, err := newRecordStore(ctx, billingCfg)
	if err != nil {
		return err
	}

	var engineOpts []billing.EngineOption
	if qstashCfg := configx.MustNew[qstashx.Config]("QSTASH"); qstashCfg.Enabled() {
		audit, err := billing.NewPublisherAudit(qstashx.MustNew(*qstashCfg), qstashCfg.Destination)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, billing.WithAuditSink(audit))
		log.Info().Str("destination", qstashCfg.Destination).Msg("plan change audit enabled")
	}
	engine, err := billing.NewEngine(records, engineOpts...)
	if err != nil {
		return err
	}

	registry := toolx.NewRegistry()
	if err := toolx.RegisterBillingTools(registry, toolx.BillingDeps{
		Records:       records,
		Engine:        engine,
		DefaultUserID: billingCfg.DefaultUserID,
	}); err != nil {
		return err
	}
	executor, err := toolx.NewExecutor(registry, toolx.WithConcurrency(toolCfg.Concurrency))
	if err != nil {
		return err
	}

	chatModel, err := newChatModel(ctx, llmCfg)
	if err != nil {
		return err
	}
	bound, err := chatModel.BindTools(registry.Infos())
	if err != nil {
		return err
	}

	graph, err := graphx.New(bound, executor, *graphCfg)
	if err != nil {
		return err
	}
	threads, err := newThreadStore(ctx)
	if err != nil {
		return err
	}
	prompt, err := promptx.NewSystemPrompt(billingCfg.DefaultUserID)
	if err != nil {
		return err
	}
	svc, err := assistant.New(threads, graph, prompt)
	if err != nil {
		return err
	}

	e := api.NewServer(api.NewHandler(svc, serverCfg.DefaultThreadID), *serverCfg)
	addr := fmt.Sprintf(":%d", serverCfg.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("provider", llmCfg.Provider).Msg("billing assistant listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down")
	return e.Shutdown(shutdownCtx)
}

func newChatModel(ctx context.Context, cfg *llm.Config) (*llm.ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder, err := cfg.Select(map[string]llm.Builder{
		llm.ProviderOpenRouter: llm.BuilderFunc(func(ctx context.Context) (model.ToolCallingChatModel, error) {
			return configx.MustNew[openrouterx.Config]("OPENROUTER").New(ctx)
		}),
		llm.ProviderGemini: llm.BuilderFunc(func(ctx context.Context) (model.ToolCallingChatModel, error) {
			return configx.MustNew[geminix.Config]("GEMINI").New(ctx)
		}),
	})
	if err != nil {
		return nil, err
	}
	base, err := builder.New(ctx)
	if err != nil {
		return nil, err
	}
	return llm.NewChatModel(base, cfg.RetryPolicy())
}

func newRecordStore(ctx context.Context, cfg *BillingConfig) (billing.RecordStore, error) {
	dbCfg := configx.MustNew[postgresx.Config]("DATABASE")
	if !dbCfg.Enabled() {
		var seed []billing.Record
		if cfg.SeedDemo {
			seed = billing.DemoRecords(cfg.DefaultUserID, time.Now())
		}
		log.Info().Int("records", len(seed)).Msg("using in-memory billing records")
		return billing.NewMemoryStore(seed...), nil
	}

	db, err := dbCfg.New(ctx)
	if err != nil {
		return nil, err
	}
	store, err := billing.NewBunStore(db)
	if err != nil {
		return nil, err
	}
	if dbCfg.CreateSchema {
		if err := store.CreateSchema(ctx); err != nil {
			return nil, err
		}
	}
	log.Info().Msg("using postgres billing records")
	return store, nil
}

func newThreadStore(ctx context.Context) (*statex.ThreadStore, error) {
	cfg := configx.MustNew[ThreadsConfig]("THREADS")

	var (
		backend statex.Backend
		opts    []statex.StoreOption
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory", "":
		backend = statex.NewMemoryBackend()
	case "redis":
		client, err := configx.MustNew[redisx.Config]("REDIS").New(ctx)
		if err != nil {
			return nil, err
		}
		b, err := statex.NewRedisBackend(client, cfg.KeyPrefix, cfg.TTL)
		if err != nil {
			return nil, err
		}
		backend = b
		if cfg.LeaseTTL > 0 {
			leaser, err := statex.NewRedisLeaser(client, cfg.LeaseKeyPrefix, cfg.LeaseTTL)
			if err != nil {
				return nil, err
			}
			opts = append(opts, statex.WithLeaser(leaser))
		}
	case "upstash":
		b, err := statex.NewUpstashBackend(
			*configx.MustNew[statex.UpstashConfig]("UPSTASH"),
			statex.WithKeyPrefix(cfg.KeyPrefix),
			statex.WithTTL(cfg.TTL),
		)
		if err != nil {
			return nil, err
		}
		backend = b
		if cfg.LeaseTTL > 0 {
			leaser, err := statex.NewUpstashLeaser(b, cfg.LeaseKeyPrefix, cfg.LeaseTTL)
			if err != nil {
				return nil, err
			}
			opts = append(opts, statex.WithLeaser(leaser))
		}
	default:
		return nil, fmt.Errorf("unsupported thread backend %q", cfg.Backend)
	}

	log.Info().
		Str("backend", cfg.Backend).
		Dur("ttl", cfg.TTL).
		Bool("leased", len(opts) > 0).
		Msg("thread store ready")
	return statex.NewThreadStore(backend, opts...)
}
