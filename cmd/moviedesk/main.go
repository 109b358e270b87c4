package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"moviecat-admin/internal/bootstrap"
	"moviecat-admin/internal/config"
	"moviecat-admin/internal/tracer"
	"moviecat-admin/pkg/events"

	"github.com/fatih/color"
)

const usage = `moviedesk - movie catalog back-office

Usage:
  moviedesk login [-u username]
  moviedesk show <kind> <id> [-o text|json|yaml]
  moviedesk set <kind> <id> <field> <value>
  moviedesk search <actors|directors|genres> [term] [-pages n]
  moviedesk link <movie id> <actors|directors|genres>
  moviedesk unlink <movie id> <actors|directors|genres> <id>
  moviedesk delete <kind> <id> [-yes]

Kinds: movies, actors, directors, genres, users.
Mutating commands need CATALOG_TOKEN (see "moviedesk login").`

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return 2
	}

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracing (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(cfg.Tracing, "moviedesk")
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 4. Echo confirmed mutations
	if err := events.Consume(ctx, container.PubSub, container.Logger, printEvent); err != nil {
		container.Logger.Warn("MOVIEDESK", "Event consumer not started", map[string]interface{}{"error": err.Error()})
	}

	app := &cli{container: container}
	if err := app.dispatch(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(usage)
			return 2
		}
		color.Red("✗ %s", describe(err))
		return 1
	}
	return 0
}

func printEvent(evt events.BaseEvent) {
	color.HiBlack("  event %s %v", evt.Type, evt.Data)
}
