package vm

import (
	"strconv"
	"strings"
)

// dataCursor is the READ pointer into the program's DATA table.
type dataCursor struct {
	items   []interface{}
	ptr     int
	restore map[string]int
}

func (d *dataCursor) init(items []interface{}, restore map[string]int) {
	d.items = items
	d.ptr = 0
	d.restore = restore
}

func (d *dataCursor) reset() {
	d.items, d.ptr, d.restore = nil, 0, nil
}

func (d *dataCursor) next() (interface{}, error) {
	if d.ptr >= len(d.items) {
		return nil, NewBasicError(ErrCodeDataExhausted, "")
	}
	item := d.items[d.ptr]
	d.ptr++
	return item, nil
}

// read returns the next item as a number. Unquoted DATA text is parsed.
func (d *dataCursor) read() (float64, error) {
	item, err := d.next()
	if err != nil {
		return 0, err
	}
	if f, ok := toFloat(item); ok {
		return f, nil
	}
	s, _ := item.(string)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, NewBasicError(ErrCodeTypeMismatch, "READ "+strconv.Quote(s))
	}
	return f, nil
}

// readString returns the next item as text.
func (d *dataCursor) readString() (string, error) {
	item, err := d.next()
	if err != nil {
		return "", err
	}
	if f, ok := toFloat(item); ok {
		return formatNumber(f), nil
	}
	s, _ := item.(string)
	return s, nil
}

// restoreTo moves the pointer to the DATA anchored at label. An empty or
// unanchored label restores to the first item.
func (d *dataCursor) restoreTo(label string) {
	d.ptr = 0
	if label != "" {
		d.ptr = d.restore[label]
	}
}
