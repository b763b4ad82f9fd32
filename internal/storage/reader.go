package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

// Record - одна запись журнала сессии
type Record struct {
	Timestamp int64
	Kind      uint8
	EntityID  string
	Payload   json.RawMessage

	// ActionKind заполнен только для Kind == RecordAction
	ActionKind domain.ActionKind
}

// RecordedSession - разобранный журнал сессии
type RecordedSession struct {
	InviteCode string
	StartedAt  int64
	Records    []Record
}

// Snapshots возвращает только записи снапшотов
func (s *RecordedSession) Snapshots() []Record {
	var out []Record
	for _, r := range s.Records {
		if r.Kind == RecordSnapshot {
			out = append(out, r)
		}
	}
	return out
}

// Load читает и валидирует файл журнала целиком
func Load(path string) (*RecordedSession, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readBinary(f)
}

func readBinary(r io.Reader) (*RecordedSession, error) {
	// 1. Читаем заголовок целиком
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Валидация
	if string(header.Magic[:]) != MagicHeader {
		return nil, fmt.Errorf("invalid magic")
	}
	if header.Version != Version1 {
		return nil, fmt.Errorf("unsupported version: %d (expected %d)", header.Version, Version1)
	}

	session := &RecordedSession{StartedAt: header.StartedAt}

	inviteBuf := make([]byte, header.InviteLen)
	if _, err := io.ReadFull(r, inviteBuf); err != nil {
		return nil, fmt.Errorf("failed to read invite code: %w", err)
	}
	session.InviteCode = string(inviteBuf)

	// 2. Читаем записи до конца файла: журнал потоковый,
	// количество записей в заголовке не фиксируется
	for {
		var rh RecordHeader
		if err := binary.Read(r, binary.LittleEndian, &rh); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		rec := Record{Timestamp: rh.Timestamp, Kind: rh.Kind}

		entityBuf := make([]byte, rh.EntityLen)
		if _, err := io.ReadFull(r, entityBuf); err != nil {
			return nil, err
		}
		rec.EntityID = string(entityBuf)

		if rh.PayloadLen > 0 {
			payload := make([]byte, rh.PayloadLen)
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, err
			}
			if rec.Kind == RecordAction {
				// первый байт - вид действия, остальное - тело
				rec.ActionKind = domain.ActionKind(payload[0])
				rec.Payload = payload[1:]
			} else {
				rec.Payload = payload
			}
		} else {
			rec.Payload = json.RawMessage{}
		}

		session.Records = append(session.Records, rec)
	}

	return session, nil
}
