package token

import "fmt"

// Token marks where an intrinsic occurrence was written. The compiler never
// looks at it except to report diagnostics.
type Token struct {
	FileName string
	Literal  string
	Line     int
	Column   int
}

func (t Token) String() string {
	return t.Pos()
}

// Pos renders the token position as file:line:col. Missing parts are dropped.
func (t Token) Pos() string {
	name := t.FileName
	if name == "" {
		name = "<kernel>"
	}
	if t.Line == 0 {
		return name
	}
	if t.Column == 0 {
		return fmt.Sprintf("%s:%d", name, t.Line)
	}
	return fmt.Sprintf("%s:%d:%d", name, t.Line, t.Column)
}

// CompileError is a diagnostic tied to a call site. Err carries the typed
// cause so callers can use errors.Is / errors.As.
type CompileError struct {
	Token Token
	Msg   string
	Err   error
}

func (ce *CompileError) Error() string {
	msg := ce.Msg
	if msg == "" && ce.Err != nil {
		msg = ce.Err.Error()
	}
	if ce.Token.Literal != "" {
		return fmt.Sprintf("%s: %s: %s", ce.Token.Pos(), ce.Token.Literal, msg)
	}
	return fmt.Sprintf("%s: %s", ce.Token.Pos(), msg)
}

func (ce *CompileError) Unwrap() error {
	return ce.Err
}
