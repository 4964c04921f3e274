package queryir

import (
	"fmt"
	"strconv"
	"strings"
)

// TemplateError reports a malformed template or an unresolvable placeholder.
type TemplateError struct {
	Template string
	Message  string
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: %s", e.Template, e.Message)
}

// Lookup resolves a named placeholder such as [amount] to an expression.
type Lookup func(name string) (Expr, bool)

// Parse builds a Template from text, substituting placeholders:
//
//	[]      next positional argument
//	[N]     positional argument N (zero based)
//	[name]  named lookup, typically a field of the owning model
//	{}      next positional argument
//	{name}  identifier "name"
//
// Example:
//
//	Parse("sum([])", []Expr{Column{Table: "invoice", Name: "amount"}}, nil)
//
// renders as sum("invoice"."amount").
func Parse(text string, positional []Expr, named Lookup) (Template, error) {
	var parts []Part
	var lit strings.Builder
	next := 0

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Part{Text: lit.String()})
			lit.Reset()
		}
	}
	nextArg := func() (Expr, error) {
		if next >= len(positional) {
			return nil, &TemplateError{Template: text, Message: fmt.Sprintf("missing positional argument %d", next)}
		}
		e := positional[next]
		next++
		if e == nil {
			return Null{}, nil
		}
		return e, nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '[' && c != '{' {
			lit.WriteByte(c)
			continue
		}
		closing := byte(']')
		if c == '{' {
			closing = '}'
		}
		end := strings.IndexByte(text[i+1:], closing)
		if end < 0 {
			return Template{}, &TemplateError{Template: text, Message: fmt.Sprintf("unclosed %q at offset %d", c, i)}
		}
		key := text[i+1 : i+1+end]
		i += end + 1

		var arg Expr
		var err error
		switch {
		case key == "":
			arg, err = nextArg()
		case c == '{':
			arg = Ident(key)
		case isIndex(key):
			n, _ := strconv.Atoi(key)
			if n >= len(positional) {
				err = &TemplateError{Template: text, Message: fmt.Sprintf("positional argument %d out of range", n)}
			} else if arg = positional[n]; arg == nil {
				arg = Null{}
			}
		default:
			var ok bool
			if named != nil {
				arg, ok = named(key)
			}
			if !ok {
				err = &TemplateError{Template: text, Message: fmt.Sprintf("unknown field %q", key)}
			}
		}
		if err != nil {
			return Template{}, err
		}
		flush()
		parts = append(parts, Part{Arg: arg})
	}
	flush()

	return Template{Parts: parts}, nil
}

// MustParse is Parse for templates without placeholders or with only
// positional arguments known to be present. It panics on error.
func MustParse(text string, positional ...Expr) Template {
	t, err := Parse(text, positional, nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Names lists the named placeholders of a template in order of first use.
func Names(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		end := strings.IndexByte(text[i+1:], ']')
		if end < 0 {
			break
		}
		key := text[i+1 : i+1+end]
		i += end + 1
		if key == "" || isIndex(key) || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, key)
	}
	return names
}

func isIndex(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
