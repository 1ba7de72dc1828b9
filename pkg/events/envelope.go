package events

import "github.com/vmihailenco/msgpack/v5"

const (
	CmdHello = "hello"
	CmdFrame = "frame"
)

// Envelope wraps change-feed frames relayed over a websocket. Nonces increase
// per session, so a client reconnecting with its session id and last nonce
// can be sent what it missed.
type Envelope struct {
	Cmd          string `msgpack:"cmd"`
	Nonce        int64  `msgpack:"nonce"`
	SessionId    string `msgpack:"sid,omitempty"`
	PingInterval int64  `msgpack:"ping_interval,omitempty"`
	Resumed      bool   `msgpack:"resumed,omitempty"`
	Data         []byte `msgpack:"data,omitempty"`
}

func (e *Envelope) Marshal() ([]byte, error) {
	return msgpack.Marshal(e)
}

func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := msgpack.Unmarshal(b, &e)
	return e, err
}
