package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// identity written into the lock object; it names the session holding the lock
// all six fields must be present and non-empty for a lock body to count as held
type Identity struct {
	FarmID    string `json:"farmId"`
	QueueID   string `json:"queueId"`
	FleetID   string `json:"fleetId"`
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
	WorkerID  string `json:"workerId"`
}

// checks every field is set
func (id Identity) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"farmId", id.FarmID},
		{"queueId", id.QueueID},
		{"fleetId", id.FleetID},
		{"jobId", id.JobID},
		{"sessionId", id.SessionID},
		{"workerId", id.WorkerID},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidIdentity, f.name)
		}
	}
	return nil
}

func (id Identity) Equal(other Identity) bool {
	return id == other
}

// encodes the identity as the lock object body
func (id Identity) Marshal() ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(id)
}

// strict decode of a lock body
// unknown fields, trailing data and missing fields are all rejected
func ParseIdentity(body []byte) (Identity, error) {
	var id Identity

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Identity{}, fmt.Errorf("%w: trailing data after record", ErrInvalidIdentity)
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}
