package region

import (
	"testing"

	"github.com/codalotl/coderewrite/internal/detectlang"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBody_StringLiteralBraces(t *testing.T) {
	src := "foo() { return \"a{b}\"; }"
	body, err := ExtractBody(src, detectlang.LangJava)
	require.NoError(t, err)
	assert.Equal(t, " return \"a{b}\"; ", body.Text)
	assert.Equal(t, src[body.Start:body.End], body.Text)
}

func TestExtractBody_Braces(t *testing.T) {
	tests := []struct {
		name string
		lang detectlang.Lang
		src  string
		want string
	}{
		{
			name: "empty body",
			lang: detectlang.LangJava,
			src:  "void f() {}",
			want: "",
		},
		{
			name: "nested blocks",
			lang: detectlang.LangJava,
			src:  "void f() { if (x) { y(); } else { z(); } }",
			want: " if (x) { y(); } else { z(); } ",
		},
		{
			name: "char literal brace",
			lang: detectlang.LangJava,
			src:  "char f() { return '}'; }",
			want: " return '}'; ",
		},
		{
			name: "escaped quote inside string",
			lang: detectlang.LangJava,
			src:  `String f() { return "say \"}\" now"; }`,
			want: ` return "say \"}\" now"; `,
		},
		{
			name: "adjacent escaped backslashes",
			lang: detectlang.LangJava,
			src:  `String f() { return "\\"; }`,
			want: ` return "\\"; `,
		},
		{
			name: "escaped backslash then quote then brace",
			lang: detectlang.LangJava,
			src:  `String f() { String s = "a\\\"{"; return s; }`,
			want: ` String s = "a\\\"{"; return s; `,
		},
		{
			name: "multi-line string literal",
			lang: detectlang.LangJavaScript,
			src:  "function f() {\n  return `line {\n}`;\n}",
			want: "\n  return `line {\n}`;\n",
		},
		{
			name: "go raw string ignores backslash",
			lang: detectlang.LangGo,
			src:  "func f() string {\n\treturn `\\`\n}",
			want: "\n\treturn `\\`\n",
		},
		{
			name: "annotation with brace in string",
			lang: detectlang.LangJava,
			src:  "@Doc(\"{\") void f() { g(); }",
			want: " g(); ",
		},
		{
			name: "trailing text after closer ignored",
			lang: detectlang.LangKotlin,
			src:  "fun f() { a() } // trailing",
			want: " a() ",
		},
		{
			name: "apostrophe in line comment",
			lang: detectlang.LangJava,
			src:  "int f() {\n    // don't return a magic number\n    return 2;\n}",
			want: "\n    // don't return a magic number\n    return 2;\n",
		},
		{
			name: "braces in comments",
			lang: detectlang.LangGo,
			src:  "func f() {\n\t// }\n\t/* { */ g()\n}",
			want: "\n\t// }\n\t/* { */ g()\n",
		},
		{
			name: "comment marker inside string",
			lang: detectlang.LangJava,
			src:  "String f() { return \"http://x/*\"; }",
			want: " return \"http://x/*\"; ",
		},
		{
			name: "comment in signature",
			lang: detectlang.LangJava,
			src:  "void f(/* { */ int x) { g(x); }",
			want: " g(x); ",
		},
		{
			name: "utf8 content",
			lang: detectlang.LangJava,
			src:  "void f() { s = \"héllo}\"; t = 'é'; }",
			want: " s = \"héllo}\"; t = 'é'; ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ExtractBody(tt.src, tt.lang)
			require.NoError(t, err)
			assert.Equal(t, tt.want, body.Text)
			assert.Equal(t, tt.src[body.Start:body.End], body.Text)
		})
	}
}

func TestExtractBody_NotExtractable(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "no opener", src: "abstract void f();"},
		{name: "never balances", src: "void f() { if (x) { y(); }"},
		{name: "opener only inside string", src: `String f = "{";`},
		{name: "empty", src: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractBody(tt.src, detectlang.LangJava)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotExtractable)
		})
	}
}

func TestExtractBody_Colon(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "simple def",
			src:  "def f(x):\n    return x + 1\n",
			want: "return x + 1\n",
		},
		{
			name: "annotations are skipped",
			src:  "def f(x: int, y: Dict[str, int] = {'a': 1}) -> int:\n    return x\n",
			want: "return x\n",
		},
		{
			name: "colon inside string default",
			src:  "def f(sep=':'):\n    pass",
			want: "pass",
		},
		{
			name: "same line body",
			src:  "def f(): return 1",
			want: "return 1",
		},
		{
			name: "colon in comment before def",
			src:  "# it's: a note\ndef f(x):\n    return x\n",
			want: "return x\n",
		},
		{
			name: "empty remainder",
			src:  "def f():\n",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ExtractBody(tt.src, detectlang.LangPython)
			require.NoError(t, err)
			assert.Equal(t, tt.want, body.Text)
			assert.Equal(t, len(tt.src), body.End)
		})
	}

	_, err := ExtractBody("x = 1", detectlang.LangPython)
	assert.ErrorIs(t, err, ErrNotExtractable)
}

func TestExtractBody_Unsupported(t *testing.T) {
	_, err := ExtractBody("def f\n  1\nend\n", detectlang.LangRuby)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = ExtractBody("anything { }", detectlang.LangUnknown)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCheckBalance(t *testing.T) {
	assert.NoError(t, CheckBalance("void f() { a[0] = g(\")\"); }", detectlang.LangJava))
	assert.NoError(t, CheckBalance("", detectlang.LangJava))
	assert.NoError(t, CheckBalance("def f(x):\n    return [x]\n", detectlang.LangPython))

	err := CheckBalance("void f() { g(; }", detectlang.LangJava)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatched")

	err = CheckBalance("void f() { g(); ", detectlang.LangJava)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclosed")

	err = CheckBalance("void f() { } }", detectlang.LangJava)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmatched")

	err = CheckBalance("void f() { s = \"abc; }", detectlang.LangJava)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated")

	err = CheckBalance("void f() { /* never closed }", detectlang.LangJava)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated /* comment")
}

func TestCheckBalance_Comments(t *testing.T) {
	tests := []struct {
		name string
		lang detectlang.Lang
		src  string
	}{
		{name: "apostrophe in line comment", lang: detectlang.LangJava, src: "int f() {\n    // don't return a magic number\n    return 2;\n}"},
		{name: "apostrophe in block comment", lang: detectlang.LangKotlin, src: "fun f() {\n    /* it's fine */\n    g()\n}"},
		{name: "delimiters in comments", lang: detectlang.LangGo, src: "func f() {\n\t// ) ] }\n\tg()\n}"},
		{name: "python hash comment", lang: detectlang.LangPython, src: "def f(x):\n    # it's faster this way\n    return [x]\n"},
		{name: "hash inside python string", lang: detectlang.LangPython, src: "def f():\n    return \"#(\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, CheckBalance(tt.src, tt.lang))
		})
	}
}
