package vm

import (
	"errors"
	"testing"
)

func TestDataCursor_ReadAndRestore(t *testing.T) {
	var d dataCursor
	d.init([]interface{}{int64(1), "x", 2.5, " 7 "}, map[string]int{"100": 2, "200": 0})

	if f, err := d.read(); err != nil || f != 1 {
		t.Errorf("read: got %v, %v", f, err)
	}
	if s, err := d.readString(); err != nil || s != "x" {
		t.Errorf("readString: got %q, %v", s, err)
	}
	if f, err := d.read(); err != nil || f != 2.5 {
		t.Errorf("read: got %v, %v", f, err)
	}
	if f, err := d.read(); err != nil || f != 7 {
		t.Errorf("read of unquoted text: got %v, %v", f, err)
	}

	_, err := d.read()
	var be *BasicError
	if !errors.As(err, &be) || be.Code != ErrCodeDataExhausted {
		t.Fatalf("read past end: got %v, want DATA exhausted", err)
	}

	d.restoreTo("100")
	if f, _ := d.read(); f != 2.5 {
		t.Errorf("after RESTORE 100: got %v", f)
	}
	d.restoreTo("999")
	if f, _ := d.read(); f != 1 {
		t.Errorf("unanchored label should restore to 0, got %v", f)
	}
}

func TestDataCursor_RestoreReproducesItems(t *testing.T) {
	items := []interface{}{"a", "b", "c", "d"}
	var d dataCursor
	d.init(items, map[string]int{"50": 1})

	for round := 0; round < 2; round++ {
		d.restoreTo("50")
		for i := 1; i < len(items); i++ {
			s, err := d.readString()
			if err != nil {
				t.Fatalf("round %d read %d: %v", round, i, err)
			}
			if s != items[i] {
				t.Errorf("round %d read %d: got %q, want %q", round, i, s, items[i])
			}
		}
		if _, err := d.readString(); err == nil {
			t.Errorf("round %d: read beyond the last item should fail", round)
		}
	}
}

func TestDataCursor_TypeMismatch(t *testing.T) {
	var d dataCursor
	d.init([]interface{}{"abc"}, nil)
	_, err := d.read()
	var be *BasicError
	if !errors.As(err, &be) || be.Code != ErrCodeTypeMismatch {
		t.Errorf("got %v, want type mismatch", err)
	}
}

func TestDataCursor_NumbersAsText(t *testing.T) {
	var d dataCursor
	d.init([]interface{}{int64(12), 0.5}, nil)
	for _, want := range []string{"12", "0.5"} {
		if s, _ := d.readString(); s != want {
			t.Errorf("got %q, want %q", s, want)
		}
	}
}
