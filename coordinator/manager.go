package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Manager runs a set of coordinators keyed by device id.
type Manager struct {
	coords *xsync.MapOf[string, *Coordinator]
}

func NewManager() *Manager {
	return &Manager{coords: xsync.NewMapOf[string, *Coordinator]()}
}

// Add registers c under its id. Adding a second coordinator with the same id fails.
func (m *Manager) Add(c *Coordinator) error {
	if c == nil {
		return errors.New("coordinator: nil coordinator")
	}

	if _, loaded := m.coords.LoadOrStore(c.ID(), c); loaded {
		return fmt.Errorf("coordinator: device %q already registered", c.ID())
	}

	return nil
}

// Get returns the coordinator registered under id.
func (m *Manager) Get(id string) (*Coordinator, bool) {
	return m.coords.Load(id)
}

// Remove unregisters and returns the coordinator registered under id. It does
// not shut it down.
func (m *Manager) Remove(id string) (*Coordinator, bool) {
	return m.coords.LoadAndDelete(id)
}

// Len returns the number of registered coordinators.
func (m *Manager) Len() int {
	return m.coords.Size()
}

// IDs returns the registered device ids in sorted order.
func (m *Manager) IDs() []string {
	ids := make([]string, 0, m.coords.Size())
	m.coords.Range(func(id string, _ *Coordinator) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)

	return ids
}

// Range calls f for every coordinator until f returns false.
func (m *Manager) Range(f func(id string, c *Coordinator) bool) {
	m.coords.Range(f)
}

// Run runs every coordinator registered at call time in its own goroutine and
// returns when ctx is done and all of them have stopped.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup

	m.coords.Range(func(_ string, c *Coordinator) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx)
		}()

		return true
	})

	wg.Wait()
}

// Shutdown shuts down every coordinator and returns the joined errors.
func (m *Manager) Shutdown() error {
	var errs []error

	m.coords.Range(func(id string, c *Coordinator) bool {
		if err := c.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}

		return true
	})

	return errors.Join(errs...)
}
