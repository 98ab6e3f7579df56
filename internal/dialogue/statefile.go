package dialogue

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/heihuo000/message-board-system/internal/models"
)

func statePath(dir, clientID string) string {
	return filepath.Join(dir, clientID+"_state.json")
}

// loadState reads a persisted agent state. Missing or unparsable files
// read as absent so a torn write never bricks a restart.
func loadState(path string) (models.AgentState, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.AgentState{}, false
	}

	var st models.AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.AgentState{}, false
	}
	return st, true
}

// saveState writes the state atomically: temp file then rename, so the
// partner reading concurrently sees either the old or the new state.
func saveState(path string, st models.AgentState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
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
	return os.Rename(tmpName, path)
}
