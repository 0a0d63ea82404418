package registry

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"autosave/internal/store"
)

const bootMarkKey = "last_boot"

// BootTime returns the current system boot timestamp in unix seconds.
// Callers treat an error as "boot time unknown" and fall back to per-job
// liveness probing.
func BootTime() (int64, error) {
	bt, err := host.BootTime()
	if err != nil {
		return 0, err
	}
	return int64(bt), nil
}

// LastBoot returns the persisted boot marker. ok=false means no marker has
// been recorded yet (first run on this machine).
func (r *Registry) LastBoot() (int64, bool, error) {
	data, err := r.kv.Get(store.BucketState, bootMarkKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		// A corrupt marker behaves like a missing one; the reconciler will
		// rewrite it.
		return 0, false, nil
	}
	return ts, true, nil
}

// SetLastBoot persists the boot marker.
func (r *Registry) SetLastBoot(ts int64) error {
	return r.kv.Put(store.BucketState, bootMarkKey, []byte(strconv.FormatInt(ts, 10)+"\n"))
}
