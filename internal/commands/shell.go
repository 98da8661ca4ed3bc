package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"fintrack/internal/backup"
	"fintrack/internal/cli"
	"fintrack/internal/commit"
	"fintrack/internal/core"
	"fintrack/internal/grid"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/lookup"
)

const prompt = "fintrack> "

var errUsage = errors.New("usage")

// Shell is a line-oriented editor over the grid. Every line is one intent
// and is fully handled before the next is read.
type Shell struct {
	grid    *grid.Model
	lookups *lookup.Resolver
	commit  *commit.Coordinator
	backup  *backup.Service
	logger  *applog.Logger
	out     io.Writer

	quitArmed bool
}

type shellCommand struct {
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, args []string) error
}

var shellCommands map[string]shellCommand

func init() {
	shellCommands = map[string]shellCommand{
		"show":    {"show [row]", "print the grid, or one row in detail", (*Shell).show},
		"set":     {"set <row> <field> <value>", "edit a cell; an empty value clears it", (*Shell).set},
		"add":     {"add [field=value ...]", "append a row, optionally filling cells", (*Shell).add},
		"del":     {"del <row> [row ...]", "delete rows (one undo step)", (*Shell).del},
		"undo":    {"undo", "revert the last change", (*Shell).undo},
		"redo":    {"redo", "re-apply the last undone change", (*Shell).redo},
		"save":    {"save", "write valid pending rows to the store", (*Shell).save},
		"discard": {"discard", "drop unsaved changes and reload", (*Shell).discard},
		"errors":  {"errors", "list rows that cannot be saved", (*Shell).problems},
		"status":  {"status", "show pending changes and history depth", (*Shell).status},
		"suggest": {"suggest <row> <field> [text]", "list matching account or category names", (*Shell).suggest},
		"backup":  {"backup", "snapshot the database now", (*Shell).snapshot},
		"help":    {"help", "show this help", (*Shell).help},
		"quit":    {"quit", "leave the shell", nil},
	}
}

// NewShell wires a shell to a bootstrapped app.
func NewShell(app *cli.App, out io.Writer) *Shell {
	return newShell(app.Grid, app.Lookups, app.Commit, app.Backup, app.Logs.For(applog.ComponentApp), out)
}

func newShell(g *grid.Model, l *lookup.Resolver, c *commit.Coordinator, b *backup.Service, logger *applog.Logger, out io.Writer) *Shell {
	if logger == nil {
		logger = applog.Nop()
	}
	return &Shell{grid: g, lookups: l, commit: c, backup: b, logger: logger, out: out}
}

// Run reads intents from in until quit, end of input or ctx is done. Lines
// are read on a separate goroutine so a cancelled ctx returns immediately
// even while a read is blocked; that goroutine exits once in does.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = sc.Err()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(s.out, prompt)
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			s.logger.DebugContext(ctx, "Shell interrupted")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(s.out)
			return scanErr
		}
		quit, err := s.Exec(ctx, line)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Exec handles one input line. It reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) (bool, error) {
	args, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	name := strings.ToLower(args[0])
	switch name {
	case "exit", "q":
		name = "quit"
	case "ls", "list":
		name = "show"
	case "rm", "delete":
		name = "del"
	case "?":
		name = "help"
	}

	if name == "quit" {
		if s.grid.HasChanges() && !s.quitArmed {
			s.quitArmed = true
			fmt.Fprintln(s.out, "unsaved changes: save, discard, or quit again to drop them")
			return false, nil
		}
		return true, nil
	}
	s.quitArmed = false

	cmd, ok := shellCommands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q (try help)", args[0])
	}
	if err := cmd.run(s, ctx, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return false, fmt.Errorf("usage: %s", cmd.usage)
		}
		return false, err
	}
	return false, nil
}

func (s *Shell) show(_ context.Context, args []string) error {
	if len(args) > 1 {
		return errUsage
	}
	if len(args) == 1 {
		i, err := parseRow(args[0])
		if err != nil {
			return err
		}
		r, err := s.grid.GetRow(i)
		if err != nil {
			return err
		}
		return renderRow(s.out, r)
	}
	rows := s.grid.Snapshot()
	if len(rows) == 0 {
		fmt.Fprintln(s.out, "no transactions")
		return nil
	}
	return renderRows(s.out, rows)
}

func (s *Shell) set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	i, err := parseRow(args[0])
	if err != nil {
		return err
	}
	f, ok := core.ParseField(args[1])
	if !ok {
		return fmt.Errorf("%w: %q", grid.ErrUnknownField, args[1])
	}
	if err := s.grid.SetCell(ctx, i, f, strings.Join(args[2:], " ")); err != nil {
		return err
	}
	return s.reportRow(i)
}

func (s *Shell) add(ctx context.Context, args []string) error {
	cells := map[core.Field]string{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return errUsage
		}
		f, ok := core.ParseField(k)
		if !ok {
			return fmt.Errorf("%w: %q", grid.ErrUnknownField, k)
		}
		cells[f] = v
	}

	ref, err := s.grid.AddRow(ctx)
	if err != nil {
		return err
	}
	i, _ := s.grid.IndexOf(ref)
	fmt.Fprintf(s.out, "added row %d\n", i+1)

	// Column order puts type before category and category before
	// sub-category, which resolution depends on.
	var errs []error
	for _, f := range core.Fields {
		raw, ok := cells[f]
		if !ok {
			continue
		}
		if err := s.grid.SetCell(ctx, i, f, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return s.reportRow(i)
}

func (s *Shell) del(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	indices := make([]int, 0, len(args))
	for _, a := range args {
		i, err := parseRow(a)
		if err != nil {
			return err
		}
		indices = append(indices, i)
	}
	return s.grid.DeleteRows(ctx, indices...)
}

func (s *Shell) undo(_ context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	err := s.grid.Undo()
	if errors.Is(err, ledger.ErrNothingToUndo) {
		fmt.Fprintln(s.out, "nothing to undo")
		return nil
	}
	return err
}

func (s *Shell) redo(_ context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	err := s.grid.Redo()
	if errors.Is(err, ledger.ErrNothingToRedo) {
		fmt.Fprintln(s.out, "nothing to redo")
		return nil
	}
	return err
}

func (s *Shell) save(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	res, err := s.commit.Commit(ctx, s.grid)
	if err != nil {
		var se *commit.StorageError
		if errors.As(err, &se) {
			return fmt.Errorf("save failed, nothing was written: %w", se.Err)
		}
		if errors.Is(err, commit.ErrIDMismatch) {
			return fmt.Errorf("saved, but the grid is out of step with the store; run discard to reload: %w", err)
		}
		return err
	}
	fmt.Fprintf(s.out, "saved %d: %d inserted, %d updated, %d deleted\n",
		res.Applied, res.Inserted, res.Updated, res.Deleted)
	for _, rj := range res.Rejected {
		i, ok := s.grid.IndexOf(rj.Ref)
		if !ok {
			i = rj.Index
		}
		fmt.Fprintf(s.out, "row %d not saved (%s): %s\n", i+1, rj.Status, rj.Errors.Error())
	}
	return nil
}

func (s *Shell) discard(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	if err := s.grid.Discard(ctx); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "reloaded %d rows\n", s.grid.Len())
	return nil
}

func (s *Shell) problems(_ context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	if renderProblems(s.out, s.grid.Snapshot()) == 0 {
		fmt.Fprintln(s.out, "no problems")
	}
	return nil
}

func (s *Shell) status(_ context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	counts := map[grid.Status]int{}
	invalid := 0
	for _, p := range s.grid.Pending() {
		counts[p.Status]++
	}
	for _, r := range s.grid.Snapshot() {
		if r.Invalid {
			invalid++
		}
	}
	undo, redo := s.grid.Depth()
	fmt.Fprintf(s.out, "%d rows, %d new, %d modified, %d deleted, %d invalid; undo %d, redo %d\n",
		s.grid.Len(), counts[grid.New], counts[grid.Modified], counts[grid.Deleted], invalid, undo, redo)
	return nil
}

func (s *Shell) suggest(_ context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	i, err := parseRow(args[0])
	if err != nil {
		return err
	}
	f, ok := core.ParseField(args[1])
	if !ok {
		return fmt.Errorf("%w: %q", grid.ErrUnknownField, args[1])
	}
	kind, ok := lookup.KindOf(f)
	if !ok {
		return fmt.Errorf("%s is not a reference field", f)
	}
	r, err := s.grid.GetRow(i)
	if err != nil {
		return err
	}
	hint := lookup.Hint{Type: r.Data.Type, ParentID: r.Data.CategoryID}
	names := s.lookups.Suggest(kind, strings.Join(args[2:], " "), hint, 10)
	if len(names) == 0 {
		fmt.Fprintln(s.out, "no matches")
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(s.out, n)
	}
	return nil
}

func (s *Shell) snapshot(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	if s.backup == nil {
		return errNoBackups
	}
	path, err := s.backup.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "backup written to %s\n", path)
	return nil
}

func (s *Shell) help(_ context.Context, _ []string) error {
	names := make([]string, 0, len(shellCommands))
	for n := range shellCommands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := shellCommands[n]
		fmt.Fprintf(s.out, "  %-30s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(s.out, "fields: %s\n", fieldList())
	return nil
}

// reportRow prints the validation problems of row i, if any.
func (s *Shell) reportRow(i int) error {
	r, err := s.grid.GetRow(i)
	if err != nil {
		return err
	}
	if r.Invalid {
		fmt.Fprintf(s.out, "row %d invalid: %s\n", i+1, r.Errors.Error())
	}
	return nil
}

// parseRow turns a 1-based row number into a grid index.
func parseRow(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid row %q", s)
	}
	return n - 1, nil
}

func fieldList() string {
	names := make([]string, len(core.Fields))
	for i, f := range core.Fields {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}

// splitArgs splits a line into words with shell quoting rules. An empty
// quoted pair yields an empty argument; shell operators must be quoted.
func splitArgs(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("unbalanced quotes or parentheses: %w", err)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("unquoted %q; quote values containing it", []rune(line)[p.Position])
	}
	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}
