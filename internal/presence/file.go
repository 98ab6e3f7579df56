package presence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/heihuo000/message-board-system/internal/models"
)

// statusFile is the on-disk shape, one object per board.
type statusFile struct {
	Clients    map[string]models.PresenceRecord `json:"clients"`
	LastUpdate int64                            `json:"last_update"`
}

// FileTracker stores presence in a single JSON file. Writes go to a temp
// file and rename into place, so a concurrent reader sees either the old
// or the new snapshot, never a half-written one. A missing or corrupt
// file reads as empty state, not an error.
type FileTracker struct {
	path    string
	timeout time.Duration

	mu sync.Mutex
}

// NewFileTracker creates a tracker backed by the JSON file at path.
// If path is empty, defaults to "./data/presence.json".
func NewFileTracker(path string, timeout time.Duration) (*FileTracker, error) {
	if path == "" {
		path = "./data/presence.json"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &FileTracker{path: path, timeout: timeout}, nil
}

func (t *FileTracker) load() statusFile {
	sf := statusFile{Clients: make(map[string]models.PresenceRecord)}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return sf
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		// Torn or garbage file: treat as no state.
		return statusFile{Clients: make(map[string]models.PresenceRecord)}
	}
	if sf.Clients == nil {
		sf.Clients = make(map[string]models.PresenceRecord)
	}
	return sf
}

func (t *FileTracker) save(sf statusFile) error {
	sf.LastUpdate = time.Now().Unix()

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".presence-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, t.path)
}

// Register creates or resets the record for clientID.
func (t *FileTracker) Register(ctx context.Context, clientID, capabilities string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sf := t.load()
	sf.Clients[clientID] = models.PresenceRecord{
		ClientID:     clientID,
		Status:       models.StatusListening,
		LastSeen:     time.Now().Unix(),
		Capabilities: capabilities,
	}
	return t.save(sf)
}

// Heartbeat bumps last_seen and revives offline or expired records.
func (t *FileTracker) Heartbeat(ctx context.Context, clientID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().Unix()
	sf := t.load()

	rec, ok := sf.Clients[clientID]
	if !ok {
		rec = models.PresenceRecord{ClientID: clientID, Status: models.StatusOnline}
	} else if rec.Status == models.StatusOffline || rec.EffectiveStatus(now, int64(t.timeout.Seconds())) == models.StatusOffline {
		rec.Status = models.StatusOnline
	}
	rec.LastSeen = now
	sf.Clients[clientID] = rec
	return t.save(sf)
}

// SetListening marks clientID as actively waiting for messages.
func (t *FileTracker) SetListening(ctx context.Context, clientID string) error {
	return t.setStatus(clientID, models.StatusListening)
}

// SetOffline marks clientID as gone.
func (t *FileTracker) SetOffline(ctx context.Context, clientID string) error {
	return t.setStatus(clientID, models.StatusOffline)
}

func (t *FileTracker) setStatus(clientID string, status models.PresenceStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sf := t.load()
	rec, ok := sf.Clients[clientID]
	if !ok {
		rec = models.PresenceRecord{ClientID: clientID}
	}
	rec.Status = status
	rec.LastSeen = time.Now().Unix()
	sf.Clients[clientID] = rec
	return t.save(sf)
}

// IncrementMessageCount bumps the informational send counter.
func (t *FileTracker) IncrementMessageCount(ctx context.Context, clientID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sf := t.load()
	rec, ok := sf.Clients[clientID]
	if !ok {
		rec = models.PresenceRecord{ClientID: clientID, Status: models.StatusOnline}
	}
	rec.MessageCount++
	rec.LastSeen = time.Now().Unix()
	sf.Clients[clientID] = rec
	return t.save(sf)
}

// Snapshot returns all records with effective status applied.
func (t *FileTracker) Snapshot(ctx context.Context) ([]models.PresenceRecord, error) {
	t.mu.Lock()
	sf := t.load()
	t.mu.Unlock()

	now := time.Now().Unix()
	timeout := int64(t.timeout.Seconds())

	records := make([]models.PresenceRecord, 0, len(sf.Clients))
	for _, rec := range sf.Clients {
		rec.Status = rec.EffectiveStatus(now, timeout)
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ClientID < records[j].ClientID
	})
	return records, nil
}

// Ping verifies the backing directory is writable.
func (t *FileTracker) Ping(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save(t.load())
}

// Close is a no-op for the file backend.
func (t *FileTracker) Close() error {
	return nil
}
