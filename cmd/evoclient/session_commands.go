package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/evosim/evoclient/pkg/export"
	"github.com/evosim/evoclient/pkg/importer"
	"github.com/evosim/evoclient/pkg/store"
)

// runSessionsCommand runs the sessions command and its subcommands.
func runSessionsCommand(configPath string, args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		return sessionsList(configPath, args)
	case "create":
		return sessionsCreate(configPath, args)
	case "show":
		return sessionsShow(configPath, args)
	case "delete":
		return sessionsDelete(configPath, args)
	case "current":
		return sessionsCurrent(configPath, args)
	case "use":
		return sessionsUse(configPath, args)
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", sub)
	}
}

func sessionsList(configPath string, args []string) error {
	fs := flag.NewFlagSet("sessions list", flag.ExitOnError)
	status := fs.String("status", "", "filter by status (active, paused, completed, error, cancelled, archived)")
	tag := fs.String("tag", "", "filter by tag (comma-separated, all must match)")
	search := fs.String("search", "", "case-insensitive text match over name, id, and tags")
	sortBy := fs.String("sort", "", "sort field (name, created_at, updated_at, priority, status)")
	desc := fs.Bool("desc", false, "sort descending")
	format := fs.String("format", "", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	filter := store.Filter{
		Search:   *search,
		Tags:     parseTags(*tag),
		SortBy:   store.SortField(*sortBy),
		SortDesc: *desc,
	}
	if *status != "" {
		filter.Statuses = []store.SessionStatus{store.SessionStatus(*status)}
	}

	sessions, err := a.store.List(filter)
	if err != nil {
		return err
	}

	return a.formatter(*format, false).FormatSessions(os.Stdout, sessions)
}

func sessionsCreate(configPath string, args []string) error {
	fs := flag.NewFlagSet("sessions create", flag.ExitOnError)
	priority := fs.String("priority", "", "session priority (low, normal, high)")
	tags := fs.String("tags", "", "comma-separated tags")
	use := fs.Bool("use", false, "make the new session current")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("sessions create requires a session name")
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	session := store.NewSession(fs.Arg(0))
	session.Tags = parseTags(*tags)
	if *priority != "" {
		session.Priority = store.Priority(*priority)
	}
	session.Config.AutoSaveInterval = a.cfg.Session.AutoSaveInterval
	session.Config.MaxSimulations = a.cfg.Session.MaxSimulations
	session.Config.MinIntegrity = a.cfg.Session.MinIntegrity

	if err := a.store.Create(session); err != nil {
		return err
	}

	if *use {
		if err := a.store.SetCurrent(session.ID); err != nil {
			return err
		}
	}

	fmt.Printf("Created session %s (%s)\n", session.Name, session.ID)
	return nil
}

func sessionsShow(configPath string, args []string) error {
	fs := flag.NewFlagSet("sessions show", flag.ExitOnError)
	format := fs.String("format", "", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	id := ""
	if fs.NArg() > 0 {
		id = fs.Arg(0)
	}

	session, err := a.resolveSession(id)
	if err != nil {
		return err
	}

	return a.formatter(*format, false).FormatSession(os.Stdout, session)
}

func sessionsDelete(configPath string, args []string) error {
	fs := flag.NewFlagSet("sessions delete", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("sessions delete requires a session id")
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.resolveSession(fs.Arg(0))
	if err != nil {
		return err
	}

	if err := a.store.Delete(session.ID); err != nil {
		return err
	}

	fmt.Printf("Deleted session %s (%s)\n", session.Name, session.ID)
	return nil
}

func sessionsCurrent(configPath string, args []string) error {
	fs := flag.NewFlagSet("sessions current", flag.ExitOnError)
	format := fs.String("format", "", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.store.Current()
	if err != nil {
		return err
	}

	return a.formatter(*format, false).FormatSession(os.Stdout, session)
}

func sessionsUse(configPath string, args []string) error {
	fs := flag.NewFlagSet("sessions use", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("sessions use requires a session id")
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.resolveSession(fs.Arg(0))
	if err != nil {
		return err
	}

	if err := a.store.SetCurrent(session.ID); err != nil {
		return err
	}

	fmt.Printf("Current session is now %s (%s)\n", session.Name, session.ID)
	return nil
}

// runExportCommand runs the export command.
func runExportCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sessionID := fs.String("session", "", "session id (default: current session)")
	format := fs.String("format", "json", "export format (json, csv, xlsx)")
	out := fs.String("out", "", "output path (default: <session-name>.<ext>)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.resolveSession(*sessionID)
	if err != nil {
		return err
	}

	path, err := export.WriteFile(session, *format, *out)
	if err != nil {
		return err
	}

	if err := a.store.AppendHistory(store.HistoryEvent{
		SessionID: session.ID,
		Type:      store.EventSessionExported,
		Detail:    path,
	}); err != nil {
		a.log.Warn("failed to record export in history", "error", err)
	}

	fmt.Printf("Exported session %s to %s\n", session.Name, path)
	return nil
}

// runImportCommand runs the import command.
func runImportCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	use := fs.Bool("use", false, "make the imported session current")
	watch := fs.Bool("watch", false, "watch the configured drop directory instead of importing one file")
	watchDir := fs.String("dir", "", "drop directory override for -watch")

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if *watch {
		dir := *watchDir
		if dir == "" {
			dir = a.cfg.Import.WatchDir
		}
		return watchImports(a, dir)
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("import requires a file path")
	}

	session, err := export.ImportFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if err := a.store.Create(session); err != nil {
		return err
	}

	if err := a.store.AppendHistory(store.HistoryEvent{
		SessionID: session.ID,
		Type:      store.EventSessionImported,
		Detail:    fs.Arg(0),
	}); err != nil {
		a.log.Warn("failed to record import in history", "error", err)
	}

	if *use {
		if err := a.store.SetCurrent(session.ID); err != nil {
			return err
		}
	}

	fmt.Printf("Imported session %s (%s)\n", session.Name, session.ID)
	return nil
}

// watchImports runs the drop-directory importer until interrupted.
func watchImports(a *app, dir string) error {
	imp, err := importer.New(importer.Config{
		WatchDir: dir,
		Debounce: a.cfg.Import.Debounce,
	}, a.store, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := imp.Close(); err != nil {
			a.log.Error("failed to close importer", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := imp.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("Watching %s for session exports (Ctrl-C to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-imp.Events():
			if !ok {
				return nil
			}
			fmt.Printf("Imported session %s (%s) from %s\n", ev.SessionName, ev.SessionID, ev.Path)
		case err, ok := <-imp.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		}
	}
}

// parseTags splits a comma-separated tag list, dropping empty entries.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
