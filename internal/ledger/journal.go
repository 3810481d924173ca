package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

const maxJournalFrame = 1 << 20

// Journal is an append-only binary audit trail of arbitrage events. Each
// frame is a big-endian uint32 length prefix followed by one
// msgpack-encoded Event. It implements Sink so it can sit in a Fanout next
// to the primary store.
type Journal struct {
	mu sync.Mutex
	f  *os.File
}

func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f}, nil
}

func (j *Journal) RecordArbitrageEvent(ctx context.Context, event Event) error {
	_ = ctx
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return err
	}
	if len(payload) > maxJournalFrame {
		return fmt.Errorf("journal frame too large: %d bytes", len(payload))
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return errors.New("journal is closed")
	}
	// One write per frame so partial frames can only occur on a crash.
	_, err = j.f.Write(frame)
	return err
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// ReadJournal replays every complete frame in a journal file. A truncated
// trailing frame is ignored, matching append semantics after a crash.
func ReadJournal(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return events, nil
			}
			return events, err
		}
		size := binary.BigEndian.Uint32(header)
		if size > maxJournalFrame {
			return events, fmt.Errorf("corrupt journal frame: %d bytes", size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(f, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return events, nil
			}
			return events, err
		}
		var event Event
		if err := msgpack.Unmarshal(payload, &event); err != nil {
			return events, err
		}
		events = append(events, event)
	}
}
