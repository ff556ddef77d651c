package document

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/coderewrite/internal/detectlang"
)

func TestBuffer_ReplaceRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		text       string
		want       string
		wantErr    bool
	}{
		{name: "middle", start: 2, end: 4, text: "XY", want: "abXYef"},
		{name: "insert", start: 3, end: 3, text: "-", want: "abc-def"},
		{name: "delete all", start: 0, end: 6, text: "", want: ""},
		{name: "append", start: 6, end: 6, text: "g", want: "abcdefg"},
		{name: "past end", start: 5, end: 7, wantErr: true},
		{name: "inverted", start: 4, end: 2, wantErr: true},
		{name: "negative", start: -1, end: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer("abcdef")
			err := b.ReplaceRange(tt.start, tt.end, tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRange)
				assert.Equal(t, "abcdef", b.Text())
				assert.Equal(t, 0, b.Version())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Text())
			assert.Equal(t, 1, b.Version())
		})
	}
}

func TestBuffer_WriteTxRollsBack(t *testing.T) {
	b := NewBuffer("hello world")
	boom := errors.New("boom")

	err := b.WriteTx(func(tx Document) error {
		require.NoError(t, tx.ReplaceRange(0, 5, "HELLO"))
		assert.Equal(t, "HELLO world", tx.Text())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "hello world", b.Text())
	assert.False(t, b.Modified())

	err = b.WriteTx(func(tx Document) error {
		if err := tx.ReplaceRange(6, 11, "there"); err != nil {
			return err
		}
		return tx.ReplaceRange(0, 5, "hi")
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", b.Text())
	assert.Equal(t, 1, b.Version())
	assert.True(t, b.Modified())
}

func TestBuffer_LoadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.java")
	require.NoError(t, os.WriteFile(path, []byte("class A {}\n"), 0o600))

	b, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, b.Path())
	assert.Equal(t, "class A {}\n", b.Text())
	assert.False(t, b.Modified())

	require.NoError(t, b.ReplaceRange(9, 9, " int x; "))
	assert.True(t, b.Modified())
	require.NoError(t, b.Save())
	assert.False(t, b.Modified())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "class A { int x; }\n", string(data))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	_, err = LoadFile(filepath.Join(dir, "missing.java"))
	assert.Error(t, err)
	assert.Error(t, NewBuffer("x").Save())
}

func TestDispatcher_Serializes(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	b := NewBuffer("")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Do(context.Background(), func() error {
				text := b.Text()
				return b.ReplaceRange(len(text), len(text), "x")
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, b.Text(), 50)
}

func TestDispatcher_CancelledAndClosed(t *testing.T) {
	d := NewDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := d.Do(ctx, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)

	boom := errors.New("boom")
	assert.ErrorIs(t, d.Do(context.Background(), func() error { return boom }), boom)

	d.Close()
	d.Close()
	assert.ErrorIs(t, d.Do(context.Background(), func() error { return nil }), ErrDispatcherClosed)
}

func TestDispatcher_Nil(t *testing.T) {
	var d *Dispatcher
	ran := false
	require.NoError(t, d.Do(context.Background(), func() error { ran = true; return nil }))
	assert.True(t, ran)
	d.Close()
}

func TestGoFormatter(t *testing.T) {
	b := NewBuffer("package p\n\nfunc f()   int {\nreturn  1\n}\n")
	f := FormatterFor(detectlang.LangGo, "p.go")
	require.NoError(t, f.Reformat(context.Background(), b, 0, len(b.Text())))
	assert.Equal(t, "package p\n\nfunc f() int {\n\treturn 1\n}\n", b.Text())

	// Already formatted: no edit.
	v := b.Version()
	require.NoError(t, f.Reformat(context.Background(), b, 0, len(b.Text())))
	assert.Equal(t, v, b.Version())

	bad := NewBuffer("package p\n\nfunc f( {\n")
	assert.Error(t, f.Reformat(context.Background(), bad, 0, 1))
	assert.Equal(t, "package p\n\nfunc f( {\n", bad.Text())
}

func TestNopFormatter(t *testing.T) {
	b := NewBuffer("int  x;")
	f := FormatterFor(detectlang.LangJava, "A.java")
	assert.Equal(t, NopFormatter{}, f)
	require.NoError(t, f.Reformat(context.Background(), b, 0, 7))
	assert.Equal(t, "int  x;", b.Text())
}

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestCommandFormatter(t *testing.T) {
	requireCommand(t, "tr")

	buf := NewBuffer("def f():\n    return 1\n")
	f := CommandFormatter{Command: "tr", Args: []string{"a-z", "A-Z"}}
	require.NoError(t, f.Reformat(t.Context(), buf, 0, 3))
	assert.Equal(t, "DEF F():\n    RETURN 1\n", buf.Text())
	assert.Equal(t, 1, buf.Version())

	// Idempotent output is not a change.
	require.NoError(t, f.Reformat(t.Context(), buf, 0, 3))
	assert.Equal(t, 1, buf.Version())
}

func TestCommandFormatter_Failures(t *testing.T) {
	requireCommand(t, "sh")

	tests := []struct {
		name    string
		f       CommandFormatter
		wantMsg string
	}{
		{name: "empty command", f: CommandFormatter{}, wantMsg: "command is empty"},
		{name: "exit status", f: CommandFormatter{Command: "sh", Args: []string{"-c", "echo bad syntax >&2; exit 3"}}, wantMsg: "bad syntax"},
		{name: "no output", f: CommandFormatter{Command: "sh", Args: []string{"-c", "cat >/dev/null"}}, wantMsg: "no output"},
		{name: "missing binary", f: CommandFormatter{Command: "definitely-not-a-formatter"}, wantMsg: "definitely-not-a-formatter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBuffer("x = 1\n")
			err := tt.f.Reformat(t.Context(), buf, 0, 1)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, "x = 1\n", buf.Text())
		})
	}
}

func TestCommandFormatter_Timeout(t *testing.T) {
	requireCommand(t, "sleep")

	buf := NewBuffer("x\n")
	f := CommandFormatter{Command: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond}
	err := f.Reformat(t.Context(), buf, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "x\n", buf.Text())
}
