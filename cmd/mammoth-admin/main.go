// Command mammoth-admin operates on a running mammoth deployment through Redis:
// broadcasting stop requests and inspecting or replaying lost job outcomes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mammoth/config"
	redisadapter "github.com/target/mammoth/internal/adapters/redis"
	"github.com/target/mammoth/internal/bootstrap"
	"github.com/target/mammoth/internal/domain/model"
	"github.com/target/mammoth/internal/service"
	"github.com/target/mammoth/internal/util"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer

	redis redis.UniversalClient // set by tests
}

const defaultCommandTimeout = 2 * time.Minute

func main() {
	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			slog.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			slog.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			slog.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger := bootstrap.InitLogger(cfg.Logging)

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"stop": {
			name:        "stop",
			description: "Ask every listening worker process to finish in-flight jobs and exit",
			run:         runStop,
		},
		"list-lost-outcomes": {
			name:        "list-lost-outcomes",
			description: "Show job outcomes the dispatcher never recorded (oldest first)",
			run:         runListLostOutcomes,
		},
		"replay-lost-outcomes": {
			name:        "replay-lost-outcomes",
			description: "Re-send lost job outcomes to the dispatcher",
			run:         runReplayLostOutcomes,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: mammoth-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}

	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-24s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type stopOptions struct {
	Reason string
	// RequireListener fails the command when no process received the request.
	RequireListener bool
}

type listOptions struct {
	Limit   int64
	RawJSON bool
}

type replayOptions struct {
	Limit   int
	Timeout time.Duration
}

func runStop(cmdCtx *commandContext, args []string) error {
	opts, err := parseStopFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 30*time.Second)
	defer cancel()

	return cmdCtx.withRedis(func(client redis.UniversalClient) error {
		n, pubErr := redisadapter.PublishStop(ctx, client, cmdCtx.Config.Redis.StopChannel, opts.Reason)
		if pubErr != nil {
			return pubErr
		}
		if n == 0 && opts.RequireListener {
			return fmt.Errorf("no worker process is listening on %s", cmdCtx.Config.Redis.StopChannel)
		}
		return writef(cmdCtx.Out, "stop request delivered to %d process(es)\n", n)
	})
}

func runListLostOutcomes(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return cmdCtx.withRedis(func(client redis.UniversalClient) error {
		store := redisadapter.NewOutcomeStore(client, cmdCtx.Config.Redis.LostOutcomesKey)
		total, lenErr := store.Len(ctx)
		if lenErr != nil {
			return lenErr
		}
		outcomes, listErr := store.List(ctx, opts.Limit)
		if listErr != nil {
			return listErr
		}
		if opts.RawJSON {
			return printOutcomesJSON(cmdCtx.Out, outcomes)
		}
		return renderOutcomes(cmdCtx.Out, outcomes, total, time.Now())
	})
}

func runReplayLostOutcomes(cmdCtx *commandContext, args []string) error {
	opts, err := parseReplayFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	client, err := cmdCtx.dispatcherClient()
	if err != nil {
		return err
	}

	return cmdCtx.withRedis(func(rc redis.UniversalClient) error {
		replayer, newErr := service.NewReplayService(service.ReplayServiceOptions{
			Dispatcher: client,
			Outcomes:   redisadapter.NewOutcomeStore(rc, cmdCtx.Config.Redis.LostOutcomesKey),
			Logger:     cmdCtx.Logger,
		})
		if newErr != nil {
			return newErr
		}

		res, replayErr := replayer.Replay(ctx, opts.Limit)
		if werr := writef(cmdCtx.Out, "replayed: %d\nrequeued: %d\ndropped: %d\n", res.Replayed, res.Requeued, res.Dropped); werr != nil {
			return errors.Join(replayErr, werr)
		}
		return replayErr
	})
}

func parseStopFlags(args []string) (stopOptions, error) {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	opts := stopOptions{}
	fs.StringVar(&opts.Reason, "reason", "mammoth-admin stop", "Reason recorded in worker logs")
	fs.BoolVar(&opts.RequireListener, "require-listener", false, "Fail when no worker process received the request")
	if err := fs.Parse(args); err != nil {
		return stopOptions{}, err
	}
	opts.Reason = strings.TrimSpace(opts.Reason)
	return opts, nil
}

func parseListFlags(args []string) (listOptions, error) {
	fs := flag.NewFlagSet("list-lost-outcomes", flag.ContinueOnError)
	opts := listOptions{}
	fs.Int64Var(&opts.Limit, "limit", 50, "Maximum outcomes to show (0 = all)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print outcomes as JSON")
	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if opts.Limit < 0 {
		return listOptions{}, errors.New("--limit must be >= 0")
	}
	return opts, nil
}

func parseReplayFlags(args []string) (replayOptions, error) {
	fs := flag.NewFlagSet("replay-lost-outcomes", flag.ContinueOnError)
	opts := replayOptions{}
	fs.IntVar(&opts.Limit, "limit", 0, "Maximum outcomes to replay (0 = all)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Overall replay timeout")
	if err := fs.Parse(args); err != nil {
		return replayOptions{}, err
	}
	if opts.Limit < 0 {
		return replayOptions{}, errors.New("--limit must be >= 0")
	}
	if opts.Timeout <= 0 {
		return replayOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func renderOutcomes(w io.Writer, outcomes []model.LostOutcome, total int64, now time.Time) error {
	if len(outcomes) == 0 {
		return writeln(w, "No lost outcomes.")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "JOB ID\tSTATUS\tATTEMPTS\tHTTP\tOCCURRED AT\tAGE\tERROR"); err != nil {
		return err
	}
	for _, o := range outcomes {
		code := "-"
		if o.StatusCode > 0 {
			code = fmt.Sprint(o.StatusCode)
		}
		if err := writef(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			o.JobID, o.Status, o.Attempts, code,
			o.OccurredAt.UTC().Format(time.RFC3339), util.FormatAge(now.Sub(o.OccurredAt)), truncate(o.Error, 80),
		); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if int64(len(outcomes)) < total {
		return writef(w, "\nshowing %d of %d (use --limit 0 for all)\n", len(outcomes), total)
	}
	return nil
}

func printOutcomesJSON(w io.Writer, outcomes []model.LostOutcome) error {
	if outcomes == nil {
		outcomes = []model.LostOutcome{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(outcomes)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
