package vm

import (
	"errors"
	"fmt"
	"strings"
)

// InfoPrefix marks control signals. Results starting with it are not
// program errors and hosts do not show them.
const InfoPrefix = "INFO: "

// Control signals raised through the running script.
var (
	ErrStopped       = errors.New(InfoPrefix + "Program stopped")
	ErrInputCanceled = errors.New(InfoPrefix + "Input canceled")
	ErrEnded         = errors.New(InfoPrefix + "Program ended")
)

// ErrTerminated is the result of a run whose worker was torn down.
var ErrTerminated = errors.New("terminated")

// IsSignal reports whether err is a control signal rather than a failure.
func IsSignal(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), InfoPrefix)
}

// errorTexts is the Amstrad CPC error table.
var errorTexts = [...]string{
	1:  "Unexpected NEXT",
	2:  "Syntax error",
	3:  "Unexpected RETURN",
	4:  "DATA exhausted",
	5:  "Improper argument",
	6:  "Overflow",
	7:  "Memory full",
	8:  "Line does not exist",
	9:  "Subscript out of range",
	10: "Array already dimensioned",
	11: "Division by zero",
	12: "Invalid direct command",
	13: "Type mismatch",
	14: "String space full",
	15: "String too long",
	16: "String expression too complex",
	17: "Cannot CONTinue",
	18: "Unknown user function",
	19: "RESUME missing",
	20: "Unexpected RESUME",
	21: "Direct command found",
	22: "Operand missing",
	23: "Line too long",
	24: "EOF met",
	25: "File type error",
	26: "NEXT missing",
	27: "File already open",
	28: "Unknown command",
	29: "WEND missing",
	30: "Unexpected WEND",
	31: "File not open",
	32: "Broken in",
}

// Error codes used by the runtime.
const (
	ErrCodeDataExhausted    = 4
	ErrCodeImproperArgument = 5
	ErrCodeSubscript        = 9
	ErrCodeTypeMismatch     = 13
	ErrCodeUnknownCommand   = 28
)

// BasicError is a runtime error with a CPC error number.
type BasicError struct {
	Code   int
	Detail string
}

// NewBasicError creates an error for code with optional detail.
func NewBasicError(code int, detail string) *BasicError {
	return &BasicError{Code: code, Detail: detail}
}

func (e *BasicError) Error() string {
	text := "Unknown error"
	if e.Code > 0 && e.Code < len(errorTexts) {
		text = errorTexts[e.Code]
	}
	if e.Detail != "" {
		return fmt.Sprintf("Error %d: %s: %s", e.Code, text, e.Detail)
	}
	return fmt.Sprintf("Error %d: %s", e.Code, text)
}
