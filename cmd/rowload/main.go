package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/rowload/pkg/config"
	"github.com/umputun/rowload/pkg/db"
	"github.com/umputun/rowload/pkg/secrets"
)

type options struct {
	Config     string   `short:"f" long:"config" env:"ROWLOAD_CONFIG" default:"rowload.yml" description:"config file"`
	DBs        []string `short:"d" long:"db" description:"database profile, default profile if not set"`
	Concurrent int      `short:"c" long:"concurrent" default:"1" description:"number of databases processed concurrently"`
	AskPass    bool     `long:"ask-pass" description:"ask for database password"`
	Dbg        bool     `long:"dbg" description:"debug mode"`

	QueryCmd struct {
		Limit          int `long:"limit" default:"0" description:"max rows to print, 0 for all"`
		PositionalArgs struct {
			SQL string `positional-arg-name:"sql" description:"query to run"`
		} `positional-args:"yes" required:"yes"`
	} `command:"query" description:"run query and print rows"`

	ExecCmd struct {
		File           bool `long:"file" description:"treat argument as a script file"`
		PositionalArgs struct {
			Script string `positional-arg-name:"script" description:"statements separated by ;"`
		} `positional-args:"yes" required:"yes"`
	} `command:"exec" description:"run update or ddl statements"`

	TableCmd struct {
		Next           int  `long:"next" default:"0" description:"number of incremental keys to issue"`
		AutoStamp      bool `long:"auto-stamp" description:"exclude stamp columns from validation"`
		PositionalArgs struct {
			Name   string   `positional-arg-name:"table" description:"table name"`
			Fields []string `positional-arg-name:"fields" description:"field values to validate"`
		} `positional-args:"yes" required:"yes"`
	} `command:"table" description:"show table metadata, issue keys and validate fields"`

	InCmd struct {
		PositionalArgs struct {
			SQL    string   `positional-arg-name:"sql" description:"base query"`
			Column string   `positional-arg-name:"column" description:"column for IN condition"`
			Values []string `positional-arg-name:"values" description:"values of IN list"`
		} `positional-args:"yes" required:"yes"`
	} `command:"in" description:"run query with IN list split into chunks"`

	SealCmd struct {
		PositionalArgs struct {
			Value string `positional-arg-name:"value" description:"password to seal"`
		} `positional-args:"yes" required:"yes"`
	} `command:"seal" description:"seal password for password_file, key from ROWLOAD_SEAL_KEY"`
}

var revision = "latest"

func main() {
	fmt.Printf("rowload %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	setupLog(opts.Dbg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, p, opts, os.Stdout); err != nil {
		log.Printf("[WARN] %v", err)
		fmt.Printf("failed, %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p *flags.Parser, opts options, out io.Writer) error {
	if p.Active == nil {
		return fmt.Errorf("no command")
	}
	cmd := p.Active.Name
	if cmd == "seal" {
		key := []byte(os.Getenv(config.DefaultSealKeyEnv))
		if conf, err := config.Load(opts.Config); err == nil {
			key = conf.SealKey()
		}
		if len(key) == 0 {
			return fmt.Errorf("no seal key, set %s", config.DefaultSealKeyEnv)
		}
		sealed, err := secrets.Seal(opts.SealCmd.PositionalArgs.Value, key)
		if err != nil {
			return fmt.Errorf("can't seal: %w", err)
		}
		fmt.Fprintln(out, sealed)
		return nil
	}

	st := time.Now()
	conf, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("can't load config: %w", err)
	}
	sp, err := conf.SecretsProvider(ctx)
	if err != nil {
		return fmt.Errorf("can't make secrets provider: %w", err)
	}

	names := opts.DBs
	if len(names) == 0 {
		names = []string{""} // default profile
	}

	// resolve all profiles first, password prompts can't run concurrently
	targets := make([]target, 0, len(names))
	var passwords []string
	for _, name := range names {
		prof, err := conf.Profile(name)
		if err != nil {
			return err
		}
		dbOpts, err := prof.Options(sp, conf.SealKey())
		if err != nil {
			return fmt.Errorf("can't make options for %q: %w", prof.Name, err)
		}
		if opts.AskPass && dbOpts.Password == "" {
			if dbOpts.Password, err = askPassword(prof.Name); err != nil {
				return err
			}
		}
		if dbOpts.Password != "" {
			passwords = append(passwords, dbOpts.Password)
		}
		targets = append(targets, target{name: prof.Name, opts: dbOpts, stamps: prof.StampColumns})
	}
	if len(passwords) > 0 {
		setupLog(opts.Dbg, passwords...) // mask passwords in logs
	}

	w := &syncWriter{out: out, prefix: len(targets) > 1}
	wg := syncs.NewErrSizedGroup(max(opts.Concurrent, 1), syncs.Context(ctx), syncs.Preemptive)
	for _, tg := range targets {
		wg.Go(func() error {
			if err := runTarget(ctx, cmd, opts, tg, w); err != nil {
				return fmt.Errorf("database %q: %w", tg.name, err)
			}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return err
	}
	log.Printf("[INFO] completed %s on %d databases in %v", cmd, len(targets), time.Since(st).Truncate(time.Millisecond))
	return nil
}

type target struct {
	name   string
	opts   db.Options
	stamps []string
}

func askPassword(name string) (string, error) {
	fmt.Fprintf(os.Stderr, "password for %s: ", name)
	pw, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // fd fits int
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("can't read password: %w", err)
	}
	return strings.TrimSpace(string(pw)), nil
}

// syncWriter serializes output lines of concurrently processed databases
type syncWriter struct {
	mu     sync.Mutex
	out    io.Writer
	prefix bool
}

func (w *syncWriter) Printf(name, format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.prefix {
		fmt.Fprint(w.out, color.New(color.FgCyan).Sprintf("[%s] ", name))
	}
	fmt.Fprintf(w.out, format, args...)
}

// setupLog sets lgr and std logger, secrets are masked in both
func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
