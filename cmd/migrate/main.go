package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"classroll/internal/backend"
	"classroll/internal/config"
	"classroll/internal/logger"
	"classroll/internal/store/sqlstore"
)

const usage = "usage: migrate [up|down|version]"

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	db, dialect, err := backend.OpenDB(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() { _ = db.Close() }()

	switch cmd {
	case "up":
		err = sqlstore.Migrate(db.Client, dialect)
	case "down":
		err = sqlstore.Down(db.Client, dialect)
		if err == nil {
			log.Info().Str("dialect", string(dialect)).Msg("all migrations rolled back")
		}
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = sqlstore.Version(db.Client, dialect)
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}
}
