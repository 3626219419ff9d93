package sandbox

// Message type tags on the wire.
const (
	TypeRun         = "run"
	TypeStop        = "stop"
	TypePutKeys     = "putKeys"
	TypeInput       = "input"
	TypeContinue    = "continue"
	TypeConfig      = "config"
	TypeFlush       = "flush"
	TypeSpeak       = "speak"
	TypeGeolocation = "geolocation"
	TypeKeyDef      = "keyDef"
	TypeResult      = "result"
)

// HostMessage is a message from the host to the worker.
type HostMessage interface {
	Type() string
	hostMessage()
}

// Run starts a compiled script.
type Run struct {
	Code string `cbor:"code"`
}

// Stop asks the running program to stop at its next frame.
type Stop struct{}

// PutKeys feeds the keyboard buffer.
type PutKeys struct {
	Keys string `cbor:"keys"`
}

// InputReply answers an InputRequest.
type InputReply struct {
	Input    string `cbor:"input"`
	Canceled bool   `cbor:"canceled"`
}

// Continue resumes a program waiting for speech or geolocation.
type Continue struct {
	Result string `cbor:"result"`
	Error  string `cbor:"error,omitempty"`
}

// Config changes the output mode for the next run.
type Config struct {
	IsTerminal bool `cbor:"isTerminal"`
}

func (*Run) Type() string        { return TypeRun }
func (*Stop) Type() string       { return TypeStop }
func (*PutKeys) Type() string    { return TypePutKeys }
func (*InputReply) Type() string { return TypeInput }
func (*Continue) Type() string   { return TypeContinue }
func (*Config) Type() string     { return TypeConfig }

func (*Run) hostMessage()        {}
func (*Stop) hostMessage()       {}
func (*PutKeys) hostMessage()    {}
func (*InputReply) hostMessage() {}
func (*Continue) hostMessage()   {}
func (*Config) hostMessage()     {}

// WorkerMessage is a message from the worker to the host.
type WorkerMessage interface {
	Type() string
	workerMessage()
}

// Flush carries rendered output.
type Flush struct {
	Message     string `cbor:"message"`
	NeedCls     bool   `cbor:"needCls"`
	HasGraphics bool   `cbor:"hasGraphics"`
}

// InputRequest asks the host for a line of input.
type InputRequest struct {
	Prompt string `cbor:"prompt"`
}

// Speak asks the host to speak text; answered with Continue.
type Speak struct {
	Message string  `cbor:"message"`
	Pitch   float64 `cbor:"pitch"`
}

// Geolocation asks the host for a position; answered with Continue.
type Geolocation struct{}

// KeyDef forwards a KEY DEF statement.
type KeyDef struct {
	Codes []int `cbor:"codes"`
}

// Result ends a run. Result is empty on success, an error text, or a
// control signal starting with vm.InfoPrefix.
type Result struct {
	Result string `cbor:"result"`
	RunID  string `cbor:"runId"`
}

func (*Flush) Type() string        { return TypeFlush }
func (*InputRequest) Type() string { return TypeInput }
func (*Speak) Type() string        { return TypeSpeak }
func (*Geolocation) Type() string  { return TypeGeolocation }
func (*KeyDef) Type() string       { return TypeKeyDef }
func (*Result) Type() string       { return TypeResult }

func (*Flush) workerMessage()        {}
func (*InputRequest) workerMessage() {}
func (*Speak) workerMessage()        {}
func (*Geolocation) workerMessage()  {}
func (*KeyDef) workerMessage()       {}
func (*Result) workerMessage()       {}
