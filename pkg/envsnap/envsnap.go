package envsnap

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pixperk/objmutex/pkg/openjd"
)

// "_" is rewritten by shells on every command, so it never counts as a change
const shellLastArg = "_"

// environment variables by name
type Snapshot map[string]string

// snapshot of the current process environment
func Current() Snapshot {
	return FromEnviron(os.Environ())
}

// parses KEY=VALUE pairs as returned by os.Environ
func FromEnviron(environ []string) Snapshot {
	s := make(Snapshot, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || k == shellLastArg {
			continue
		}
		s[k] = v
	}
	return s
}

func Save(path string, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	delete(s, shellLastArg)
	return s, nil
}

type Var struct {
	Key   string
	Value string
}

// changes between two snapshots, both lists sorted by key
type Diff struct {
	Set   []Var
	Unset []string
}

func Compare(before, after Snapshot) Diff {
	var d Diff
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			d.Set = append(d.Set, Var{Key: k, Value: v})
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			d.Unset = append(d.Unset, k)
		}
	}

	sort.Slice(d.Set, func(i, j int) bool { return d.Set[i].Key < d.Set[j].Key })
	sort.Strings(d.Unset)
	return d
}

func (d Diff) Empty() bool {
	return len(d.Set) == 0 && len(d.Unset) == 0
}

// emits the diff as openjd_env / openjd_unset_env lines
func (d Diff) Write(w io.Writer) error {
	for _, v := range d.Set {
		if err := openjd.SetEnv(w, v.Key, v.Value); err != nil {
			return err
		}
	}
	for _, k := range d.Unset {
		if err := openjd.UnsetEnv(w, k); err != nil {
			return err
		}
	}
	return nil
}
