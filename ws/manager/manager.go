// Package manager tracks the operations a bridged connection has started.
//
// A Manager belongs to a single connection and is only touched by that
// connection's event loop, so it does no locking of its own.
package manager

import (
	"fmt"
	"sort"
	"time"
)

// Operation is an operation started by the client and relayed upstream
type Operation struct {
	ID            string
	Type          string
	OperationName string
	StartedAt     time.Time
}

// Manager manages the active operations of one connection
type Manager struct {
	operations map[string]*Operation
}

func NewManager() *Manager {
	return &Manager{
		operations: map[string]*Operation{},
	}
}

// Count returns the number of active operations
func (m *Manager) Count() int {
	return len(m.operations)
}

// Start records an operation. Reusing an active id is reported but the new
// operation replaces the old one; the upstream engine decides what a
// duplicate id means.
func (m *Manager) Start(op *Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation has no id")
	}

	_, exists := m.operations[op.ID]
	m.operations[op.ID] = op

	if exists {
		return fmt.Errorf("operation %q already exists", op.ID)
	}
	return nil
}

// End removes a single operation
func (m *Manager) End(operationID string) *Operation {
	op, ok := m.operations[operationID]
	if ok {
		delete(m.operations, operationID)
	}

	return op
}

// EndAll removes every operation and returns the ids that were active
func (m *Manager) EndAll() []string {
	ids := make([]string, 0, len(m.operations))
	for id := range m.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m.operations = map[string]*Operation{}
	return ids
}
