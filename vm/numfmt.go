package vm

import (
	"math"
	"strconv"
	"strings"
)

// formatNumber renders a number the way PRINT and STR$ show it, without
// the sign padding.
func formatNumber(f float64) string {
	if f == 0 {
		f = 0 // drop the sign of -0
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.ToUpper(strconv.FormatFloat(f, 'g', 9, 64))
}

// printNumber pads non-negative numbers with a leading space and every
// number with a trailing space.
func printNumber(f float64) string {
	s := formatNumber(f)
	if f >= 0 {
		s = " " + s
	}
	return s + " "
}

// strNumber is STR$: the sign position is kept, no trailing space.
func strNumber(f float64) string {
	s := formatNumber(f)
	if f >= 0 {
		return " " + s
	}
	return s
}

// ---------------------------------------------------------------------------
// PRINT USING / DEC$
// ---------------------------------------------------------------------------

type usingField struct {
	numeric bool
	text    string // the field characters
}

// splitUsing splits a format into literal runs and fields.
func splitUsing(format string) (lits []string, fields []usingField) {
	var lit strings.Builder
	i := 0
	for i < len(format) {
		c := format[i]
		switch {
		case c == '!' || c == '&':
			lits = append(lits, lit.String())
			lit.Reset()
			fields = append(fields, usingField{text: string(c)})
			i++
		case c == '\\':
			j := strings.IndexByte(format[i+1:], '\\')
			if j < 0 {
				lit.WriteByte(c)
				i++
				continue
			}
			lits = append(lits, lit.String())
			lit.Reset()
			fields = append(fields, usingField{text: format[i : i+j+2]})
			i += j + 2
		case isNumFieldStart(format[i:]):
			j := i
			if format[j] == '+' {
				j++
			}
			for j < len(format) && strings.IndexByte("#,.*$", format[j]) >= 0 {
				j++
			}
			if strings.HasPrefix(format[j:], "^^^^") {
				j += 4
			}
			if j < len(format) && (format[j] == '-' || format[j] == '+') {
				j++
			}
			lits = append(lits, lit.String())
			lit.Reset()
			fields = append(fields, usingField{numeric: true, text: format[i:j]})
			i = j
		default:
			lit.WriteByte(c)
			i++
		}
	}
	lits = append(lits, lit.String())
	return lits, fields
}

func isNumFieldStart(s string) bool {
	switch {
	case strings.HasPrefix(s, "#"), strings.HasPrefix(s, "**"), strings.HasPrefix(s, "$$"):
		return true
	case strings.HasPrefix(s, ".#"), strings.HasPrefix(s, "+#"), strings.HasPrefix(s, "+.#"):
		return true
	}
	return false
}

// formatUsing applies a PRINT USING format to values. The format is reused
// when there are more values than fields.
func formatUsing(format string, values []interface{}) (string, error) {
	lits, fields := splitUsing(format)
	if len(fields) == 0 {
		return "", NewBasicError(ErrCodeImproperArgument, "USING")
	}
	var b strings.Builder
	for i, v := range values {
		k := i % len(fields)
		b.WriteString(lits[k])
		f := fields[k]
		if f.numeric {
			n, ok := toFloat(v)
			if !ok {
				return "", NewBasicError(ErrCodeTypeMismatch, "USING")
			}
			b.WriteString(formatNumField(f.text, n))
		} else {
			s, ok := v.(string)
			if !ok {
				return "", NewBasicError(ErrCodeTypeMismatch, "USING")
			}
			b.WriteString(formatStrField(f.text, s))
		}
		if k == len(fields)-1 || i == len(values)-1 {
			b.WriteString(lits[k+1])
		}
	}
	return b.String(), nil
}

func formatStrField(field, s string) string {
	switch field {
	case "!":
		if s == "" {
			return " "
		}
		return s[:1]
	case "&":
		return s
	}
	width := len(field)
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatNumField formats n into a numeric field such as "##.##", "+#,###"
// or "##.##-". A value that does not fit is prefixed with "%".
func formatNumField(field string, n float64) string {
	width := len(field)
	leadSign := strings.HasPrefix(field, "+")
	body := strings.TrimPrefix(field, "+")
	trail := byte(0)
	if l := len(body); l > 0 && (body[l-1] == '-' || body[l-1] == '+') {
		trail = body[l-1]
		body = body[:l-1]
	}
	exponent := strings.HasSuffix(body, "^^^^")
	body = strings.TrimSuffix(body, "^^^^")
	fill := " "
	if strings.HasPrefix(body, "**") {
		fill = "*"
	}
	dollar := strings.Contains(body, "$$")
	thousands := strings.Contains(body, ",")

	decimals := 0
	if dot := strings.IndexByte(body, '.'); dot >= 0 {
		decimals = strings.Count(body[dot+1:], "#")
	}

	neg := n < 0
	abs := math.Abs(n)
	var digits string
	if exponent {
		digits = strings.ToUpper(strconv.FormatFloat(abs, 'e', decimals, 64))
	} else {
		digits = strconv.FormatFloat(abs, 'f', decimals, 64)
		if thousands {
			digits = groupThousands(digits)
		}
	}
	if dollar {
		digits = "$" + digits
	}

	var s string
	switch {
	case leadSign && neg:
		s = "-" + digits
	case leadSign:
		s = "+" + digits
	case trail == '-' && neg:
		s = digits + "-"
	case trail == '-':
		s = digits + " "
	case trail == '+' && neg:
		s = digits + "-"
	case trail == '+':
		s = digits + "+"
	case neg:
		s = "-" + digits
	default:
		s = digits
	}
	if len(s) > width {
		return "%" + s
	}
	return strings.Repeat(fill, width-len(s)) + s
}

func groupThousands(digits string) string {
	intPart, frac := digits, ""
	if dot := strings.IndexByte(digits, '.'); dot >= 0 {
		intPart, frac = digits[:dot], digits[dot:]
	}
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String() + frac
}

// toFloat converts an exported JS number.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
