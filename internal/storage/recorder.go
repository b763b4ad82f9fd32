package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

const (
	MagicHeader string = `TTSR` // 4 байта
	Version1    uint32 = 1
)

// Виды записей журнала
const (
	RecordSnapshot uint8 = 1 // принятый авторитетный снапшот
	RecordAction   uint8 = 2 // отправленное намерение
)

// FileHeader - точное представление заголовка файла в памяти.
// binary.Write умеет писать это целиком: тут нет слайсов и строк,
// только массивы и числа.
type FileHeader struct {
	Magic     [4]byte // 4 байта
	Version   uint32  // 4 байта
	StartedAt int64   // 8 байт
	InviteLen uint8   // 1 байт, сам код пишется следом
}

// RecordHeader - заголовок каждой записи
type RecordHeader struct {
	Timestamp  int64  // 8
	Kind       uint8  // 1
	EntityLen  uint8  // 1
	PayloadLen uint32 // 4
}

// Recorder пишет журнал сессии по мере ее хода: каждый принятый
// снапшот и каждое отправленное действие. Файл читается Reader-ом
// для разбора сессии постфактум.
type Recorder struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewRecorder открывает новый файл журнала в dir и пишет заголовок
func NewRecorder(dir, inviteCode string) (*Recorder, error) {
	// Создаем папку если нет
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	if len(inviteCode) > 255 {
		return nil, fmt.Errorf("invite code too long: %d", len(inviteCode))
	}

	filename := fmt.Sprintf("session_%s_%d.ttsr", inviteCode, time.Now().Unix())
	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	header := FileHeader{
		Version:   Version1,
		StartedAt: time.Now().UnixMilli(),
		InviteLen: uint8(len(inviteCode)),
	}
	copy(header.Magic[:], MagicHeader)

	if err := binary.Write(f, binary.LittleEndian, &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := f.Write([]byte(inviteCode)); err != nil {
		f.Close()
		return nil, err
	}

	return &Recorder{f: f, path: path}, nil
}

// Path возвращает путь к файлу журнала
func (r *Recorder) Path() string {
	return r.path
}

// RecordSnapshot дописывает авторитетный снапшот
func (r *Recorder) RecordSnapshot(s *domain.SessionState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.append(RecordSnapshot, "", payload)
}

// RecordAction дописывает отправленное намерение
func (r *Recorder) RecordAction(kind domain.ActionKind, entityID string, payload json.RawMessage) error {
	return r.append(RecordAction, entityID, appendKind(kind, payload))
}

// appendKind кодирует вид действия первым байтом полезной нагрузки
func appendKind(kind domain.ActionKind, payload json.RawMessage) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, uint8(kind))
	return append(out, payload...)
}

func (r *Recorder) append(kind uint8, entityID string, payload []byte) error {
	if len(entityID) > 255 {
		return fmt.Errorf("entity id too long: %d", len(entityID))
	}
	if len(payload) > 1<<24 {
		return fmt.Errorf("payload too long: %d", len(payload))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return fmt.Errorf("recorder is closed")
	}

	header := RecordHeader{
		Timestamp:  time.Now().UnixMilli(),
		Kind:       kind,
		EntityLen:  uint8(len(entityID)),
		PayloadLen: uint32(len(payload)),
	}
	if err := binary.Write(r.f, binary.LittleEndian, &header); err != nil {
		return err
	}
	if _, err := r.f.Write([]byte(entityID)); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := r.f.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// Close закрывает файл журнала
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
