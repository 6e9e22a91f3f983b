package config

import (
	"fmt"
	"os"

	"github.com/pixperk/objmutex/pkg/types"
)

// environment variables the scheduler sets for every session
const (
	EnvFarmID    = "DEADLINE_FARM_ID"
	EnvQueueID   = "DEADLINE_QUEUE_ID"
	EnvFleetID   = "DEADLINE_FLEET_ID"
	EnvJobID     = "DEADLINE_JOB_ID"
	EnvSessionID = "DEADLINE_SESSION_ID"
	EnvWorkerID  = "DEADLINE_WORKER_ID"
)

// reads the session identity from the environment
func LoadIdentity() (types.Identity, error) {
	var id types.Identity

	fields := []struct {
		env string
		dst *string
	}{
		{EnvFarmID, &id.FarmID},
		{EnvQueueID, &id.QueueID},
		{EnvFleetID, &id.FleetID},
		{EnvJobID, &id.JobID},
		{EnvSessionID, &id.SessionID},
		{EnvWorkerID, &id.WorkerID},
	}
	for _, f := range fields {
		v := os.Getenv(f.env)
		if v == "" {
			return types.Identity{}, fmt.Errorf("%w: %s", types.ErrMissingIdentity, f.env)
		}
		*f.dst = v
	}

	return id, nil
}
