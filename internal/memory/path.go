package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Path operation errors.
var (
	ErrPathNotFound = errors.New("path not found in memory")
	ErrNotObject    = errors.New("path does not resolve to an object")
	ErrReadOnly     = errors.New("path is read-only")
	ErrInvalidPath  = errors.New("invalid memory path")
)

// splitPath parses a dot-separated path. The empty path is the root.
func splitPath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// tree renders the whole document as generic JSON values, the same view
// the model sees when it reads memory.
func (m *Memory) tree() (map[string]any, error) {
	b, err := json.Marshal(m.Snapshot())
	if err != nil {
		return nil, err
	}
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, err
	}
	return root, nil
}

func walk(node any, segs []string) (any, bool) {
	for _, s := range segs {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[s]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// Keys returns the sorted keys of the object at path (the root when path
// is empty). Array indexes are returned for arrays. A nonexistent path
// yields an empty list; a scalar yields [ErrNotObject].
func (m *Memory) Keys(path string) ([]string, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	root, err := m.tree()
	if err != nil {
		return nil, err
	}
	node, ok := walk(root, segs)
	if !ok || node == nil {
		return []string{}, nil
	}
	switch n := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	case []any:
		keys := make([]string, len(n))
		for i := range n {
			keys[i] = strconv.Itoa(i)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotObject, displayPath(path))
	}
}

// Get returns the value at path, or [ErrPathNotFound].
func (m *Memory) Get(path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidPath)
	}
	root, err := m.tree()
	if err != nil {
		return nil, err
	}
	v, ok := walk(root, segs)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return v, nil
}

// Set stores value at path, creating intermediate objects and replacing
// any scalar found on the way. system_info holds only strings, so values
// stored there are stringified. The action log is read-only.
func (m *Memory) Set(path string, value any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("%w: cannot replace the memory root", ErrReadOnly)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch segs[0] {
	case KeyActionLog:
		return fmt.Errorf("%w: %s", ErrReadOnly, path)
	case KeyNotes:
		if len(segs) > 1 {
			return fmt.Errorf("%w: %s", ErrNotObject, KeyNotes)
		}
		m.notes = stringify(value)
		return nil
	case KeySystemInfo:
		switch len(segs) {
		case 1:
			obj, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %s must be an object", ErrNotObject, KeySystemInfo)
			}
			m.systemInfo = make(map[string]string, len(obj))
			for k, v := range obj {
				m.systemInfo[k] = stringify(v)
			}
		case 2:
			m.systemInfo[segs[1]] = stringify(value)
		default:
			return fmt.Errorf("%w: %s.%s", ErrNotObject, KeySystemInfo, segs[1])
		}
		return nil
	}

	value = deepCopy(value)
	if len(segs) == 1 {
		m.extra[segs[0]] = value
		return nil
	}
	node, ok := m.extra[segs[0]].(map[string]any)
	if !ok {
		node = map[string]any{}
		m.extra[segs[0]] = node
	}
	for _, s := range segs[1 : len(segs)-1] {
		next, ok := node[s].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[s] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = value
	return nil
}

func displayPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return "root"
	}
	return path
}
