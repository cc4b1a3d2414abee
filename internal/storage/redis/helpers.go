package redis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/goodtune/apptime/internal/storage"
)

// encodeSession serialises a record for the session list
func encodeSession(record storage.SessionRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return string(data), nil
}

// decodeSession parses a session list entry
func decodeSession(data string) (storage.SessionRecord, error) {
	var record storage.SessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return record, fmt.Errorf("failed to parse session: %w", err)
	}
	return record, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse app id %q: %w", raw, err)
	}
	return id, nil
}
