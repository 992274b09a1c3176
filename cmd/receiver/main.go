// Package main is the entrypoint for the agent-command-receiver (binary name "receiver").
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/morezero/agent-command-receiver/internal/config"
	"github.com/morezero/agent-command-receiver/internal/server"
	"github.com/morezero/agent-command-receiver/pkg/db"
)

const usage = `Usage: receiver [command]
       receiver serve                        Start the receiver (COMMS listener, dispatcher, HTTP health).
       receiver migrate up                   Run audit database migrations.
       receiver migrate status               Show migration status.
       receiver ensure-db [name]             Create the audit database if missing (default name: agent_audit).
       receiver clear                        Truncate the command audit log; schema is preserved.
       receiver events [agent-id] [outcome]  Print recent audit log entries and per-outcome counts.
       receiver echo <subject> <message>     Send an ECHO command to an agent and print the answer.
       receiver dump <subject> [name...]     Request a thread dump from an agent, optionally filtered by name.

Commands:
  serve           (default) Listen on agent.<APPLICATION_NAME>.<AGENT_ID>.command and answer commands.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  ensure-db       Create the database on the same host as DATABASE_URL.
  clear           Truncate the audit log.
  events          Read the audit log, newest first, optionally for one agent and outcome.
  echo            Control-plane probe: round trip an ECHO through an agent.
  dump            Control-plane probe: print an agent's goroutines.

Environment: COMMS_URL, AGENT_ID, APPLICATION_NAME, AGENT_VERSION, WIRE_FORMAT,
HANDLER_TIMEOUT, MAX_IN_FLIGHT, DATABASE_URL (optional audit log), MIGRATION_PATH,
REQUEST_TIMEOUT, HTTP_PORT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("receiver migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("receiver migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("receiver migrate status: %v", err)
			}
		default:
			log.Fatalf("receiver migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("receiver clear: %v", err)
		}
		return
	case "events":
		params := db.ListCommandEventsParams{Limit: eventsListLimit}
		if len(args) > 1 {
			params.AgentID = args[1]
		}
		if len(args) > 2 {
			params.Outcome = args[2]
		}
		if err := runEvents(params); err != nil {
			log.Fatalf("receiver events: %v", err)
		}
		return
	case "ensure-db":
		dbName := "agent_audit"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("receiver ensure-db: %v", err)
		}
		return
	case "echo":
		if len(args) < 3 {
			log.Fatalf("receiver echo: require <subject> <message>")
		}
		if err := runEcho(args[1], args[2]); err != nil {
			log.Fatalf("receiver echo: %v", err)
		}
		return
	case "dump":
		if len(args) < 2 {
			log.Fatalf("receiver dump: require <subject>")
		}
		if err := runDump(args[1], args[2:]); err != nil {
			log.Fatalf("receiver dump: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("receiver: %v", err)
	}
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearCommandEvents(ctx, pool); err != nil {
		return fmt.Errorf("clear audit log: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	targetURL, err := withDatabaseName(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// withDatabaseName replaces the database in a Postgres URL, keeping the query (e.g. sslmode).
func withDatabaseName(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}
