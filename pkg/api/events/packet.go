package events

import (
	"time"

	"github.com/meower-media/feedsync/pkg/events"
)

type Packet struct {
	Nonce     int64
	CreatedAt int64
	Encoded   []byte
}

func createPacket(server *Server, env *events.Envelope) (*Packet, error) {
	var p = Packet{
		Nonce:     server.getNextNonce(),
		CreatedAt: time.Now().UnixMilli(),
	}
	var err error

	// Add nonce to envelope
	env.Nonce = p.Nonce

	p.Encoded, err = env.Marshal()
	if err != nil {
		return nil, err
	}

	return &p, nil
}
