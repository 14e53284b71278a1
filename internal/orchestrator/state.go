package orchestrator

import (
	"sync"

	"github.com/rapport-app/rapport/internal/customer"
)

// State is the orchestrator's in-memory working set. It is cleared in full
// when the user signs out.
type State struct {
	mu sync.Mutex

	selectedCustomer *customer.Customer
	lastSessionID    string
}

func NewState() *State {
	return &State{}
}

func (state *State) SelectCustomer(record *customer.Customer) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.selectedCustomer = record
}

func (state *State) SelectedCustomer() *customer.Customer {
	state.mu.Lock()
	defer state.mu.Unlock()

	return state.selectedCustomer
}

func (state *State) SetLastSessionID(sessionID string) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.lastSessionID = sessionID
}

func (state *State) LastSessionID() string {
	state.mu.Lock()
	defer state.mu.Unlock()

	return state.lastSessionID
}

func (state *State) Clear() {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.selectedCustomer = nil
	state.lastSessionID = ""
}
