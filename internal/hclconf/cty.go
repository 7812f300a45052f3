package hclconf

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// paramValue converts a literal provider attribute into the Go value a
// provider sees. The shapes match what encoding/json yields for the same
// parameter in a JSON layer body: numbers are float64, objects and maps are
// map[string]any, tuples, lists and sets are []any. path names the value in
// error messages.
func paramValue(path cty.Path, val cty.Value) (any, error) {
	if !val.IsKnown() {
		return nil, fmt.Errorf("%s: value must be a literal", formatPath(path))
	}
	if val.IsNull() {
		return nil, nil
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(val, &f); err != nil {
			return nil, fmt.Errorf("%s: %w", formatPath(path), err)
		}
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			conv, err := paramValue(path.Index(k), v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = conv
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		i := int64(0)
		for it := val.ElementIterator(); it.Next(); i++ {
			_, v := it.Element()
			conv, err := paramValue(path.Index(cty.NumberIntVal(i)), v)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: unsupported value type %s", formatPath(path), ty.FriendlyName())
	}
}

// formatPath renders a path the way it would be written in HCL, e.g.
// style.colors[2] or labels["en"].
func formatPath(path cty.Path) string {
	var b strings.Builder
	for _, step := range path {
		switch s := step.(type) {
		case cty.GetAttrStep:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Name)
		case cty.IndexStep:
			switch {
			case s.Key.Type() == cty.String:
				fmt.Fprintf(&b, "[%q]", s.Key.AsString())
			case s.Key.Type() == cty.Number:
				b.WriteString("[" + s.Key.AsBigFloat().Text('f', -1) + "]")
			default:
				b.WriteString("[?]")
			}
		}
	}
	return b.String()
}

