package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"classroll/internal/attendance"
	"classroll/internal/backend"
	"classroll/internal/config"
	"classroll/internal/logger"
)

// seed-roster appends attendees from a file with one "name" or
// "name,student_id" per line. Names already on the roster are skipped.
func main() {
	file := flag.String("file", "", "names file (defaults to stdin)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var in io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open names file")
		}
		defer f.Close()
		in = f
	}

	entries, err := parseEntries(in)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read names")
	}

	ctx := context.Background()
	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() { _ = stores.Close() }()

	clock, err := attendance.NewZoneClock(cfg.TimeZone)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid time zone")
	}
	svc := attendance.NewService(stores.Sessions, stores.Roster, clock, cfg.Coordinator(), log)

	roster, err := svc.Roster(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load roster")
	}
	fresh := newEntries(roster, entries)
	if len(fresh) == 0 {
		log.Info().Int("skipped", len(entries)).Msg("roster already up to date")
		return
	}
	if err := svc.AddRosterEntries(ctx, fresh...); err != nil {
		log.Fatal().Err(err).Msg("failed to add roster entries")
	}
	log.Info().Int("added", len(fresh)).Int("skipped", len(entries)-len(fresh)).Msg("roster seeded")
}

func parseEntries(r io.Reader) ([]attendance.Entry, error) {
	var out []attendance.Entry
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		name, id, _ := strings.Cut(text, ",")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("line %d: missing name", line)
		}
		out = append(out, attendance.Entry{Name: name, StudentID: strings.TrimSpace(id)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning names: %w", err)
	}
	return out, nil
}

// newEntries drops names already on the roster and duplicates within the
// input, keeping the first occurrence.
func newEntries(roster *attendance.Roster, entries []attendance.Entry) []attendance.Entry {
	seen := make(map[string]bool, len(entries))
	var out []attendance.Entry
	for _, e := range entries {
		if _, ok := roster.Index(e.Name); ok || seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, e)
	}
	return out
}
