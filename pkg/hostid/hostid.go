// Package hostid gives each host running a P2P endpoint a stable
// identifier, derived from the machine rather than generated and stored,
// so MQTT telemetry topics survive process restarts and reinstalls.
package hostid

import "github.com/denisbrodbeck/machineid"

// Get returns the protected machine ID, scoped by appID so different
// applications on the same host don't collide on the same identifier.
func Get(appID string) (string, error) {
	return machineid.ProtectedID(appID)
}

// MustGet is Get, panicking on failure. Intended for startup code paths
// where a missing machine ID leaves nothing sensible to fall back to.
func MustGet(appID string) string {
	id, err := Get(appID)
	if err != nil {
		panic(err)
	}
	return id
}
