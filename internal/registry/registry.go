// Package registry tracks the OS process id of the live worker for each
// project. The pid record is the sole source of truth for "is this
// project's job currently running"; a record whose pid no longer maps to a
// live process is stale and treated as not running.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"autosave/internal/identity"
	"autosave/internal/store"
)

// Registry persists pid records in the store's pid bucket. Record format
// follows the extended pidfile convention: first line is the pid, second
// line optional JSON metadata with the process start time, used to detect
// pid reuse. Pid reuse remains a narrowed but accepted race.
type Registry struct {
	kv store.Store
}

func New(kv store.Store) *Registry { return &Registry{kv: kv} }

type handleMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// SetLive records pid as the live worker for id, overwriting any prior
// record.
func (r *Registry) SetLive(id identity.Token, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("registry: invalid pid %d for %s", pid, id)
	}
	meta, _ := json.Marshal(handleMeta{StartUnix: procStartUnix(pid)})
	rec := strconv.Itoa(pid) + "\n" + string(meta) + "\n"
	return r.kv.Put(store.BucketPids, id.String(), []byte(rec))
}

// Pid returns the recorded pid for id, or ok=false when no record exists.
// It does not probe liveness; see Live.
func (r *Registry) Pid(id identity.Token) (int, bool, error) {
	data, err := r.kv.Get(store.BucketPids, id.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pid, _, err := parseRecord(data)
	if err != nil {
		return 0, false, fmt.Errorf("registry: record for %s: %w", id, err)
	}
	return pid, true, nil
}

// Live returns the recorded pid together with a liveness verdict. A record
// whose pid is dead, or whose recorded start time disagrees with the
// current process's start time (pid reused), yields alive=false. A record
// that cannot be parsed is stale state, not an error: it is removed and
// reported as not running, so the next start or reconcile pass proceeds.
func (r *Registry) Live(id identity.Token) (int, bool, error) {
	data, err := r.kv.Get(store.BucketPids, id.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pid, meta, err := parseRecord(data)
	if err != nil {
		_ = r.kv.Delete(store.BucketPids, id.String())
		return 0, false, nil
	}
	if !PidAlive(pid) {
		return pid, false, nil
	}
	if meta.StartUnix > 0 {
		if cur := procStartUnix(pid); cur > 0 && diff(cur, meta.StartUnix) > 2 {
			return pid, false, nil // pid reused by an unrelated process
		}
	}
	return pid, true, nil
}

// Clear removes the pid record for id. Absent records are not an error.
func (r *Registry) Clear(id identity.Token) error {
	return r.kv.Delete(store.BucketPids, id.String())
}

// PidAlive reports whether a process with the given id currently exists.
// This queries the OS process table only; it cannot distinguish an
// unrelated process that inherited the pid.
func PidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

func procStartUnix(pid int) int64 {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil {
		return 0
	}
	return ms / 1000
}

func parseRecord(data []byte) (int, handleMeta, error) {
	pidLine, rest, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, handleMeta{}, fmt.Errorf("invalid pid line: %w", err)
	}
	var meta handleMeta
	if rest = strings.TrimSpace(rest); rest != "" {
		// Metadata is best-effort; an unparseable second line degrades to
		// plain pid liveness.
		_ = json.Unmarshal([]byte(rest), &meta)
	}
	return pid, meta, nil
}

func diff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
