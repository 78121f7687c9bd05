package pyro

import (
	"fmt"
	"os"
	"path/filepath"
)

// Tracer dumps messages into files in Dir, for debugging the wire protocol.
//
// Every message produces two files, e.g. for a sent message with seq 7:
//
//	00007-a-send-header.dat
//	00007-a-send-message.dat
//
// The message file holds annotations followed by data. Received messages
// use "b-recv" instead of "a-send".
type Tracer struct {
	Dir string
}

// Send traces outgoing message m.
func (t *Tracer) Send(m *Message) error {
	return t.trace(m, "a-send")
}

// Recv traces incoming message m.
func (t *Tracer) Recv(m *Message) error {
	return t.trace(m, "b-recv")
}

func (t *Tracer) trace(m *Message, what string) error {
	if t == nil || t.Dir == "" {
		return nil
	}
	ann, err := m.AnnotationBytes()
	if err != nil {
		return err
	}
	body := append(ann, m.Data...)

	prefix := filepath.Join(t.Dir, fmt.Sprintf("%05d-%s", m.Seq, what))
	if err := os.WriteFile(prefix+"-header.dat", m.HeaderBytes(), 0o644); err != nil {
		return fmt.Errorf("pyro: trace: %w", err)
	}
	if err := os.WriteFile(prefix+"-message.dat", body, 0o644); err != nil {
		return fmt.Errorf("pyro: trace: %w", err)
	}
	log.Debugf("traced %s seq=%d to %s", m.Type, m.Seq, t.Dir)
	return nil
}
