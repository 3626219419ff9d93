package sandbox

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sandbox: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// envelope is the framing of every message crossing the worker boundary.
type envelope struct {
	Type    string          `cbor:"type"`
	Payload cbor.RawMessage `cbor:"payload"`
}

func encode(typ string, payload interface{}) ([]byte, error) {
	p, err := cborEncMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sandbox: marshal %s: %w", typ, err)
	}
	return cborEncMode.Marshal(envelope{Type: typ, Payload: p})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("sandbox: unmarshal envelope: %w", err)
	}
	return env, nil
}

func decodePayload(env envelope, v interface{}) error {
	if err := cbor.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("sandbox: unmarshal %s: %w", env.Type, err)
	}
	return nil
}

// EncodeHostMessage serializes a host message.
func EncodeHostMessage(m HostMessage) ([]byte, error) {
	return encode(m.Type(), m)
}

// DecodeHostMessage deserializes a host message.
func DecodeHostMessage(data []byte) (HostMessage, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	var m HostMessage
	switch env.Type {
	case TypeRun:
		m = &Run{}
	case TypeStop:
		m = &Stop{}
	case TypePutKeys:
		m = &PutKeys{}
	case TypeInput:
		m = &InputReply{}
	case TypeContinue:
		m = &Continue{}
	case TypeConfig:
		m = &Config{}
	default:
		return nil, fmt.Errorf("sandbox: unknown host message type %q", env.Type)
	}
	if err := decodePayload(env, m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeWorkerMessage serializes a worker message.
func EncodeWorkerMessage(m WorkerMessage) ([]byte, error) {
	return encode(m.Type(), m)
}

// DecodeWorkerMessage deserializes a worker message.
func DecodeWorkerMessage(data []byte) (WorkerMessage, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	var m WorkerMessage
	switch env.Type {
	case TypeFlush:
		m = &Flush{}
	case TypeInput:
		m = &InputRequest{}
	case TypeSpeak:
		m = &Speak{}
	case TypeGeolocation:
		m = &Geolocation{}
	case TypeKeyDef:
		m = &KeyDef{}
	case TypeResult:
		m = &Result{}
	default:
		return nil, fmt.Errorf("sandbox: unknown worker message type %q", env.Type)
	}
	if err := decodePayload(env, m); err != nil {
		return nil, err
	}
	return m, nil
}
