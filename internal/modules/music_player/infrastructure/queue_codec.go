package infrastructure

import (
	"encoding/json"
	"fmt"

	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// jsonQueueCodec is the Stringify/Parse half shared by the queue stores.
type jsonQueueCodec struct{}

// Stringify encodes a queue snapshot as JSON.
func (jsonQueueCodec) Stringify(snapshot domain.QueueSnapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue snapshot: %w", err)
	}
	return data, nil
}

// Parse decodes a queue snapshot encoded by Stringify.
func (jsonQueueCodec) Parse(data []byte) (domain.QueueSnapshot, error) {
	var snapshot domain.QueueSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.QueueSnapshot{}, fmt.Errorf("failed to unmarshal queue snapshot: %w", err)
	}
	return snapshot, nil
}
