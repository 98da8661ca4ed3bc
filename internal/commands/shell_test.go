package commands

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/commit"
	"fintrack/internal/grid"
	"fintrack/internal/lookup"
	"fintrack/internal/store/memory"
)

type shellFixture struct {
	store *memory.Store
	model *grid.Model
	shell *Shell
	out   *bytes.Buffer
}

func newShellFixture(t *testing.T) *shellFixture {
	t.Helper()
	s := memory.New()
	r := lookup.New(s, s, lookup.Options{})
	m := grid.NewModel(s, r, nil, grid.Options{})
	require.NoError(t, m.Load(context.Background()))
	out := &bytes.Buffer{}
	return &shellFixture{
		store: s,
		model: m,
		shell: newShell(m, r, commit.New(s, r, nil), nil, nil, out),
		out:   out,
	}
}

// exec runs one line with a fresh output buffer.
func (f *shellFixture) exec(line string) (bool, error) {
	f.out.Reset()
	return f.shell.Exec(context.Background(), line)
}

func (f *shellFixture) mustExec(t *testing.T, line string) string {
	t.Helper()
	_, err := f.exec(line)
	require.NoError(t, err, line)
	return f.out.String()
}

const coffee = "add name=Coffee value=-4.50 account=Checking type=Expense category=Food date=2024-03-01"

func TestShell_AddAndSave(t *testing.T) {
	f := newShellFixture(t)

	out := f.mustExec(t, coffee)
	assert.Contains(t, out, "added row 1")
	assert.NotContains(t, out, "invalid")

	out = f.mustExec(t, "save")
	assert.Contains(t, out, "saved 1: 1 inserted, 0 updated, 0 deleted")

	txs, err := f.store.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Coffee", txs[0].Name)
	assert.Equal(t, "-4.50", txs[0].Value.Decimal.StringFixed(2))
	assert.False(t, f.model.HasChanges())
}

func TestShell_QuotedValues(t *testing.T) {
	f := newShellFixture(t)
	f.mustExec(t, coffee)

	f.mustExec(t, `set 1 description "beans and a croissant"`)
	r, err := f.model.GetRow(0)
	require.NoError(t, err)
	assert.Equal(t, "beans and a croissant", r.Data.Description)

	f.mustExec(t, `set 1 description ""`)
	r, err = f.model.GetRow(0)
	require.NoError(t, err)
	assert.Empty(t, r.Data.Description)
}

func TestShell_CoercionErrorKeepsValue(t *testing.T) {
	f := newShellFixture(t)
	f.mustExec(t, coffee)

	_, err := f.exec("set 1 value abc")
	var ce *grid.CoercionError
	require.ErrorAs(t, err, &ce)

	r, err := f.model.GetRow(0)
	require.NoError(t, err)
	assert.Equal(t, "-4.50", r.Display["value"])

	out := f.mustExec(t, "show 1")
	assert.Contains(t, out, "input")
	assert.Contains(t, out, `"abc"`)
}

func TestShell_InvalidRowIsRejectedOnSave(t *testing.T) {
	f := newShellFixture(t)

	out := f.mustExec(t, "add name=Lunch")
	assert.Contains(t, out, "row 1 invalid")

	out = f.mustExec(t, "save")
	assert.Contains(t, out, "saved 0")
	assert.Contains(t, out, "row 1 not saved (new)")

	out = f.mustExec(t, "errors")
	assert.Contains(t, out, "row 1:")
	assert.Contains(t, out, "value: required")

	txs, err := f.store.ListTransactions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.True(t, f.model.HasChanges())
}

func TestShell_UndoRedo(t *testing.T) {
	f := newShellFixture(t)

	assert.Contains(t, f.mustExec(t, "undo"), "nothing to undo")
	assert.Contains(t, f.mustExec(t, "redo"), "nothing to redo")

	f.mustExec(t, coffee)
	f.mustExec(t, "set 1 name Tea")
	f.mustExec(t, "undo")

	r, err := f.model.GetRow(0)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", r.Data.Name)

	f.mustExec(t, "redo")
	r, err = f.model.GetRow(0)
	require.NoError(t, err)
	assert.Equal(t, "Tea", r.Data.Name)
}

func TestShell_DeleteAndUndo(t *testing.T) {
	f := newShellFixture(t)
	f.mustExec(t, coffee)
	f.mustExec(t, "save")

	f.mustExec(t, "del 1")
	r, err := f.model.GetRow(0)
	require.NoError(t, err)
	assert.Equal(t, grid.Deleted, r.Status)

	_, err = f.exec("set 1 name Tea")
	assert.ErrorIs(t, err, grid.ErrRowDeleted)

	f.mustExec(t, "undo")
	r, err = f.model.GetRow(0)
	require.NoError(t, err)
	assert.Equal(t, grid.Clean, r.Status)
}

func TestShell_StatusAndShow(t *testing.T) {
	f := newShellFixture(t)
	assert.Contains(t, f.mustExec(t, "show"), "no transactions")

	f.mustExec(t, coffee)
	f.mustExec(t, "add name=Lunch")

	out := f.mustExec(t, "status")
	assert.Contains(t, out, "2 rows, 2 new, 0 modified, 0 deleted, 1 invalid")

	out = f.mustExec(t, "ls")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Coffee")
	assert.Contains(t, out, "Checking")
	assert.Contains(t, out, "+!")
}

func TestShell_Suggest(t *testing.T) {
	f := newShellFixture(t)
	f.mustExec(t, coffee)
	f.mustExec(t, "add name=Bus type=Expense category=Transport")

	out := f.mustExec(t, "suggest 2 category fo")
	assert.Contains(t, out, "Food")
	assert.NotContains(t, out, "Transport")

	_, err := f.exec("suggest 1 name co")
	assert.Error(t, err)
}

func TestShell_QuitNeedsConfirmationWithChanges(t *testing.T) {
	f := newShellFixture(t)

	quit, err := f.exec("quit")
	require.NoError(t, err)
	assert.True(t, quit)

	f.mustExec(t, coffee)
	quit, err = f.exec("quit")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, f.out.String(), "unsaved changes")

	// any other intent disarms the pending quit
	f.mustExec(t, "status")
	quit, _ = f.exec("exit")
	assert.False(t, quit)
	quit, _ = f.exec("exit")
	assert.True(t, quit)
}

func TestShell_Errors(t *testing.T) {
	f := newShellFixture(t)

	_, err := f.exec("frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	_, err = f.exec("set 1")
	assert.ErrorContains(t, err, "usage: set")

	_, err = f.exec("set 0 name x")
	assert.ErrorContains(t, err, "invalid row")

	_, err = f.exec("set 4 name x")
	assert.ErrorIs(t, err, grid.ErrRowOutOfRange)

	_, err = f.exec("add colour=red")
	assert.ErrorIs(t, err, grid.ErrUnknownField)

	_, err = f.exec("backup")
	assert.ErrorIs(t, err, errNoBackups)

	_, err = f.exec(`set 1 name "open`)
	assert.ErrorContains(t, err, "unbalanced quotes")

	_, err = f.exec(`set 1 description tea;coffee`)
	assert.ErrorContains(t, err, `unquoted ';'`)
}

func TestShell_Run(t *testing.T) {
	f := newShellFixture(t)
	in := strings.NewReader(coffee + "\nbogus\nsave\nquit\n")

	require.NoError(t, f.shell.Run(context.Background(), in))

	out := f.out.String()
	assert.Contains(t, out, prompt)
	assert.Contains(t, out, "error: unknown command")
	assert.Contains(t, out, "saved 1")
}

func TestShell_RunReturnsWhenCancelledWhileReading(t *testing.T) {
	f := newShellFixture(t)
	r, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.shell.Run(ctx, r) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run still blocked on input after the context was cancelled")
	}
}

func TestShell_RunStopsAtEOF(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.shell.Run(context.Background(), strings.NewReader("help\n")))
	assert.Contains(t, f.out.String(), "fields: name, value")
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  show  ", []string{"show"}},
		{`set 1 name "Big Shop"`, []string{"set", "1", "name", "Big Shop"}},
		{`set 1 name ''`, []string{"set", "1", "name", ""}},
		{`add name="Corner Cafe" value=3`, []string{"add", "name=Corner Cafe", "value=3"}},
		{`set 1 description "fish & chips"`, []string{"set", "1", "description", "fish & chips"}},
		{`set 1 name It\'s`, []string{"set", "1", "name", "It's"}},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
