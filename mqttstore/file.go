package mqttstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/windtalker/mqtt5engine/packets"
)

var _ SessionStore = (*FileStore)(nil)

// FileStore persists session state as JSON files under
// baseDir/clientID/. Writes are synchronous; callers wanting
// async/batched persistence should implement SessionStore themselves.
//
//	baseDir/
//	  clientID/
//	    outstanding_<id>.json
//	    qos2_received.json
//	    next_id.json
type FileStore struct {
	dir  string
	perm os.FileMode
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithPermissions sets the file mode used for stored files (default 0644).
func WithPermissions(perm os.FileMode) FileStoreOption {
	return func(s *FileStore) { s.perm = perm }
}

// NewFileStore creates a file-backed store rooted at baseDir/clientID.
func NewFileStore(baseDir, clientID string, opts ...FileStoreOption) (*FileStore, error) {
	if clientID == "" {
		return nil, fmt.Errorf("mqttstore: clientID cannot be empty")
	}
	if strings.Contains(clientID, "..") || strings.ContainsRune(clientID, filepath.Separator) {
		return nil, fmt.Errorf("mqttstore: clientID contains invalid characters")
	}

	s := &FileStore{dir: filepath.Join(baseDir, clientID), perm: 0644}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.dir, s.perm|0111); err != nil {
		return nil, fmt.Errorf("mqttstore: create store directory: %w", err)
	}
	return s, nil
}

func (s *FileStore) path(name string) string { return filepath.Join(s.dir, name) }

// outstandingRecord is the on-disk envelope for one outstanding entry:
// the engine only ever stores a PublishPacket or a PubrelPacket there,
// so a type tag plus the concrete packet round-trips losslessly without
// needing packets.Packet to implement its own JSON codec.
type outstandingRecord struct {
	Kind    string                 `json:"kind"`
	Publish *packets.PublishPacket `json:"publish,omitempty"`
	Pubrel  *packets.PubrelPacket  `json:"pubrel,omitempty"`
}

func (s *FileStore) SaveOutstanding(id uint16, pkt packets.Packet) error {
	var rec outstandingRecord
	switch p := pkt.(type) {
	case *packets.PublishPacket:
		rec = outstandingRecord{Kind: "publish", Publish: p}
	case *packets.PubrelPacket:
		rec = outstandingRecord{Kind: "pubrel", Pubrel: p}
	default:
		return fmt.Errorf("mqttstore: cannot persist packet type %T", pkt)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(fmt.Sprintf("outstanding_%d.json", id)), data, s.perm)
}

func (s *FileStore) DeleteOutstanding(id uint16) error {
	err := os.Remove(s.path(fmt.Sprintf("outstanding_%d.json", id)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) LoadOutstanding() ([]OutstandingEntry, error) {
	matches, err := filepath.Glob(s.path("outstanding_*.json"))
	if err != nil {
		return nil, err
	}
	entries := make([]OutstandingEntry, 0, len(matches))
	for _, file := range matches {
		var id uint16
		if _, err := fmt.Sscanf(filepath.Base(file), "outstanding_%d.json", &id); err != nil {
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var rec outstandingRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("mqttstore: decode %s: %w", file, err)
		}
		var pkt packets.Packet
		switch rec.Kind {
		case "publish":
			pkt = rec.Publish
		case "pubrel":
			pkt = rec.Pubrel
		default:
			return nil, fmt.Errorf("mqttstore: unknown outstanding record kind %q in %s", rec.Kind, file)
		}
		entries = append(entries, OutstandingEntry{ID: id, Packet: pkt})
	}
	return entries, nil
}

func (s *FileStore) ClearOutstanding() error {
	matches, err := filepath.Glob(s.path("outstanding_*.json"))
	if err != nil {
		return err
	}
	for _, file := range matches {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *FileStore) SaveReceivedQoS2(id uint16) error {
	ids, err := s.LoadReceivedQoS2()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return s.writeJSON("qos2_received.json", append(ids, id))
}

func (s *FileStore) DeleteReceivedQoS2(id uint16) error {
	ids, err := s.LoadReceivedQoS2()
	if err != nil {
		return err
	}
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	return s.writeJSON("qos2_received.json", filtered)
}

func (s *FileStore) LoadReceivedQoS2() ([]uint16, error) {
	var ids []uint16
	ok, err := s.readJSON("qos2_received.json", &ids)
	if err != nil || !ok {
		return nil, err
	}
	return ids, nil
}

func (s *FileStore) ClearReceivedQoS2() error {
	return s.remove("qos2_received.json")
}

func (s *FileStore) SaveNextID(id uint16) error {
	return s.writeJSON("next_id.json", id)
}

func (s *FileStore) LoadNextID() (uint16, error) {
	var id uint16
	_, err := s.readJSON("next_id.json", &id)
	return id, err
}

func (s *FileStore) Clear() error {
	if err := s.ClearOutstanding(); err != nil {
		return err
	}
	if err := s.ClearReceivedQoS2(); err != nil {
		return err
	}
	return s.remove("next_id.json")
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(name), data, s.perm)
}

func (s *FileStore) readJSON(name string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (s *FileStore) remove(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
