// Command strand is a minimal chat REPL over a configured model provider.
// It wires together the config, provider, store, and observer packages and
// keeps one persistent session per run.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strandkit/strand"
	"github.com/strandkit/strand/internal/config"
	"github.com/strandkit/strand/observer"
	"github.com/strandkit/strand/provider/resolve"
	"github.com/strandkit/strand/store/postgres"
	"github.com/strandkit/strand/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg := config.Load(os.Getenv("STRAND_CONFIG"))

	// 2. Create the model adapter
	adapter, err := resolve.Adapter(resolve.Config{
		Provider:    cfg.Model.Provider,
		APIKey:      cfg.Model.APIKey,
		Model:       cfg.Model.Model,
		BaseURL:     cfg.Model.BaseURL,
		Temperature: cfg.Generation.Temperature,
		TopP:        cfg.Generation.TopP,
	})
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Retry.MaxAttempts > 1 {
		adapter = strand.WithRetry(adapter, strand.RetryMaxAttempts(cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.RPM > 0 || cfg.Retry.TPM > 0 {
		adapter = strand.WithRateLimit(adapter, strand.RPM(cfg.Retry.RPM), strand.TPM(cfg.Retry.TPM))
	}

	// 3. Optional OTEL observability
	var tracer strand.Tracer
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		inst, shutdown, err := observer.Init(ctx, cfg.Observer.ServiceName, pricing)
		if err != nil {
			log.Fatal(err)
		}
		defer shutdown(context.Background()) //nolint:errcheck
		adapter = observer.WrapAdapter(adapter, cfg.Model.Model, inst)
		tracer = observer.NewTracer()
	}

	// 4. Create the session store
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	// 5. Session + chat
	session, err := strand.NewSession(ctx, strand.WithSessionStore(store))
	if err != nil {
		log.Fatal(err)
	}
	chatOpts := []strand.ChatOption{
		strand.WithChatMaxTurns(cfg.Generation.MaxTurns),
	}
	if tracer != nil {
		chatOpts = append(chatOpts, strand.WithChatTracer(tracer))
	}
	chat := strand.NewChat(session, adapter, chatOpts...)

	fmt.Printf("strand repl (%s/%s, session %s), ctrl-d to exit\n",
		cfg.Model.Provider, cfg.Model.Model, session.ID())
	if err := repl(ctx, chat); err != nil {
		log.Fatal(err)
	}
}

// openStore creates the configured SessionStore and a cleanup func.
func openStore(ctx context.Context, cfg config.StoreConfig) (strand.SessionStore, func(), error) {
	switch cfg.Backend {
	case "memory":
		return strand.NewMemorySessionStore(), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		s := sqlite.New(cfg.Path)
		if err := s.Init(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

// repl reads lines from stdin and streams model output to stdout.
func repl(ctx context.Context, chat *strand.Chat) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		_, err := chat.SendStream(ctx, line, func(_ context.Context, chunk *strand.ModelResponseChunk) error {
			fmt.Print(chunk.Text())
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println()
	}
}
