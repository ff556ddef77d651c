package document

import (
	"context"

	"golang.org/x/tools/imports"

	"github.com/codalotl/coderewrite/internal/detectlang"
)

// Reformatter tidies the layout of doc, at least within [start, end). Implementations may reformat more than the range. Callers treat errors as cosmetic.
type Reformatter interface {
	Reformat(ctx context.Context, doc Document, start, end int) error
}

// NopFormatter leaves documents unchanged.
type NopFormatter struct{}

func (NopFormatter) Reformat(ctx context.Context, doc Document, start, end int) error {
	return nil
}

// GoFormatter formats Go source with gofmt rules (no import changes). The whole document is formatted; if it is not a complete file it is formatted as a
// fragment.
type GoFormatter struct {
	// Filename is reported in syntax errors.
	Filename string
}

func (f GoFormatter) Reformat(ctx context.Context, doc Document, start, end int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := doc.Text()
	out, err := imports.Process(f.Filename, []byte(src), &imports.Options{
		Fragment:   true,
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return err
	}
	if string(out) == src {
		return nil
	}
	return doc.ReplaceRange(0, len(src), string(out))
}

// FormatterFor returns the Reformatter for lang. Languages without one get NopFormatter.
func FormatterFor(lang detectlang.Lang, filename string) Reformatter {
	switch lang {
	case detectlang.LangGo:
		return GoFormatter{Filename: filename}
	default:
		return NopFormatter{}
	}
}
