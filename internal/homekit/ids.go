package homekit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

const bridgeID uint64 = 1

// itemIDs keeps accessory IDs stable across restarts so HomeKit does not
// treat a renamed or reordered curtain as a new device.
type itemIDs struct {
	mux      sync.Mutex
	filename string
	ids      map[string]uint64
	maxID    uint64
}

func loadItemIDs(filename string) (*itemIDs, error) {
	s := &itemIDs{
		filename: filename,
		ids:      map[string]uint64{"bridge": bridgeID},
		maxID:    bridgeID,
	}
	contents, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", filename, err)
	}
	var ids map[string]uint64
	if err := json.Unmarshal(contents, &ids); err != nil {
		return s, fmt.Errorf("invalid item id file %s: %w", filename, err)
	}
	for key, id := range ids {
		s.ids[key] = id
		if id > s.maxID {
			s.maxID = id
		}
	}
	return s, nil
}

// get returns the ID for key, allocating the next free one when needed.
func (s *itemIDs) get(key string) uint64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	if id, ok := s.ids[key]; ok {
		return id
	}
	s.maxID++
	s.ids[key] = s.maxID
	return s.maxID
}

func (s *itemIDs) save() error {
	s.mux.Lock()
	contents, err := json.Marshal(s.ids)
	s.mux.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.filename, contents, 0644)
}
