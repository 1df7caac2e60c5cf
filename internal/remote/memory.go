package remote

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/portage/internal/model"
)

// MemClient is an in-memory Client used by tests and by the probe and
// scanner test suites. Behavior knobs let a test simulate permission
// failures, read-only servers and slow links.
type MemClient struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	Feats       Features
	ReadOnly    bool
	DeniedPaths map[string]bool
	OpDelay     time.Duration

	closed bool
}

// NewMemClient creates an empty fake with a root directory.
func NewMemClient() *MemClient {
	return &MemClient{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
		Feats: Features{Shell: true, MultiSession: true, PassiveListing: true},
	}
}

// AddFile registers a file, creating parent directories.
func (m *MemClient) AddFile(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = data
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		m.dirs[dir] = true
		if dir == "/" || dir == "." {
			break
		}
	}
}

// AddDir registers an empty directory.
func (m *MemClient) AddDir(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := p; ; dir = path.Dir(dir) {
		m.dirs[dir] = true
		if dir == "/" || dir == "." {
			break
		}
	}
}

func (m *MemClient) wait(ctx context.Context) error {
	if m.OpDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.OpDelay):
		}
	}
	return ctx.Err()
}

func (m *MemClient) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeniedPaths[dir] {
		return nil, fmt.Errorf("%w: %s", ErrPermission, dir)
	}
	if !m.dirs[dir] {
		return nil, fmt.Errorf("no such directory: %s", dir)
	}
	var infos []FileInfo
	seen := map[string]bool{}
	for p, data := range m.files {
		if path.Dir(p) == dir {
			infos = append(infos, FileInfo{Name: path.Base(p), Path: p, Size: int64(len(data))})
		}
	}
	for d := range m.dirs {
		if d != dir && path.Dir(d) == dir && !seen[d] {
			seen[d] = true
			infos = append(infos, FileInfo{Name: path.Base(d), Path: d, IsDir: true})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func (m *MemClient) Read(ctx context.Context, p string) ([]byte, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeniedPaths[p] {
		return nil, fmt.Errorf("%w: %s", ErrPermission, p)
	}
	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", p)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemClient) Write(ctx context.Context, p string, data []byte) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadOnly || m.DeniedPaths[p] {
		return fmt.Errorf("%w: %s", ErrPermission, p)
	}
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *MemClient) Delete(ctx context.Context, p string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadOnly {
		return fmt.Errorf("%w: %s", ErrPermission, p)
	}
	delete(m.files, p)
	return nil
}

func (m *MemClient) Mkdir(ctx context.Context, p string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.ReadOnly {
		return fmt.Errorf("%w: %s", ErrPermission, p)
	}
	m.AddDir(p)
	return nil
}

func (m *MemClient) Features() Features { return m.Feats }

func (m *MemClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called, for leak assertions.
func (m *MemClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MemDialer returns a Dialer that always hands out the given client,
// or fails with failErr when set.
func MemDialer(c *MemClient, failErr error) Dialer {
	return func(ctx context.Context, cfg model.ConnectionConfig, timeout time.Duration) (Client, error) {
		if failErr != nil {
			return nil, failErr
		}
		return c, nil
	}
}

// HasFile reports whether a path exists in the fake, for assertions.
func (m *MemClient) HasFile(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[p]
	return ok
}

// FileNames returns all file paths, sorted.
func (m *MemClient) FileNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for p := range m.files {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// TempMarkerCount counts probe marker files left behind, for cleanup
// assertions.
func (m *MemClient) TempMarkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for p := range m.files {
		if strings.Contains(path.Base(p), ".portage-probe-") {
			n++
		}
	}
	return n
}
