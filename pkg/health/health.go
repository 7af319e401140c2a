// Package health tracks whether the queue and storage providers are answering, based on
// the outcome of the calls cloudkit makes to them.
package health

import (
	"fmt"
	"sync"
	"time"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

// HealthState represents the health state of a component
type HealthState int

const (
	// StateHealthy indicates provider calls are succeeding
	StateHealthy HealthState = iota

	// StateDegraded indicates repeated provider failures
	StateDegraded

	// StateUnavailable indicates the provider has failed persistently
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ComponentHealth tracks the health of a specific component
type ComponentHealth struct {
	Name              string      `json:"name"`
	State             HealthState `json:"state"`
	LastStateChange   time.Time   `json:"last_state_change"`
	LastObservation   time.Time   `json:"last_observation"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastErrorMessage  string      `json:"last_error_message,omitempty"`
}

// TrackerConfig represents health tracker configuration
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before degraded
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`
}

// StateChangeCallback is called when a component's state changes
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
	}
}

// Tracker tracks the health of multiple components. A nil Tracker ignores every call.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     TrackerConfig
	callbacks  []StateChangeCallback
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) *Tracker {
	defaults := DefaultConfig()
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = defaults.ErrorThreshold
	}
	if config.UnavailableThreshold < config.ErrorThreshold {
		config.UnavailableThreshold = config.ErrorThreshold
	}

	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
	}
}

// RegisterComponent registers a component. Observations for unregistered components
// register them implicitly.
func (t *Tracker) RegisterComponent(name string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.component(name)
}

// Observe records the outcome of a provider call. Only failures that say something about
// the provider count against it; caller mistakes and cancellations are ignored.
func (t *Tracker) Observe(component string, err error) {
	switch {
	case err == nil:
		t.RecordSuccess(component)
	case countsAgainstProvider(err):
		t.RecordError(component, err)
	}
}

// RecordSuccess records a successful operation for a component
func (t *Tracker) RecordSuccess(component string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	health := t.component(component)
	oldState := health.State
	health.LastObservation = time.Now()
	health.ConsecutiveErrors = 0
	if health.State != StateHealthy {
		t.transitionState(health, StateHealthy, "")
	}
	callbacks := t.callbacks
	t.mu.Unlock()

	notify(callbacks, component, oldState, StateHealthy, nil)
}

// RecordError records an error for a component
func (t *Tracker) RecordError(component string, err error) {
	if t == nil {
		return
	}

	t.mu.Lock()
	health := t.component(component)
	oldState := health.State
	health.LastObservation = time.Now()
	health.ConsecutiveErrors++

	message := ""
	if err != nil {
		message = err.Error()
	}
	health.LastErrorMessage = message

	newState := oldState
	switch {
	case health.ConsecutiveErrors >= t.config.UnavailableThreshold:
		newState = StateUnavailable
	case health.ConsecutiveErrors >= t.config.ErrorThreshold:
		newState = StateDegraded
	}
	if newState != oldState {
		t.transitionState(health, newState, message)
	}
	callbacks := t.callbacks
	t.mu.Unlock()

	notify(callbacks, component, oldState, newState, err)
}

// GetState returns the current health state of a component
func (t *Tracker) GetState(component string) HealthState {
	if t == nil {
		return StateHealthy
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if health, exists := t.components[component]; exists {
		return health.State
	}
	return StateHealthy
}

// GetComponentHealth returns the health information for a component
func (t *Tracker) GetComponentHealth(component string) (*ComponentHealth, error) {
	if t == nil {
		return nil, fmt.Errorf("component %s not registered", component)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	health, exists := t.components[component]
	if !exists {
		return nil, fmt.Errorf("component %s not registered", component)
	}
	copied := *health
	return &copied, nil
}

// GetAllComponents returns health information for all registered components
func (t *Tracker) GetAllComponents() map[string]*ComponentHealth {
	result := make(map[string]*ComponentHealth)
	if t == nil {
		return result
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for name, health := range t.components {
		copied := *health
		result[name] = &copied
	}
	return result
}

// GetOverallHealth returns the worst state across all components
func (t *Tracker) GetOverallHealth() HealthState {
	overall := StateHealthy
	for _, health := range t.GetAllComponents() {
		if health.State > overall {
			overall = health.State
		}
	}
	return overall
}

// IsHealthy returns true if the component is in a healthy state
func (t *Tracker) IsHealthy(component string) bool {
	return t.GetState(component) == StateHealthy
}

// AddStateChangeCallback registers a callback run on every state change
func (t *Tracker) AddStateChangeCallback(callback StateChangeCallback) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

// component returns the named component, registering it if needed (lock must be held)
func (t *Tracker) component(name string) *ComponentHealth {
	health, exists := t.components[name]
	if !exists {
		now := time.Now()
		health = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastObservation: now,
		}
		t.components[name] = health
	}
	return health
}

// transitionState transitions a component to a new state (must be called with lock held)
func (t *Tracker) transitionState(health *ComponentHealth, newState HealthState, message string) {
	health.State = newState
	health.LastStateChange = time.Now()
	if newState == StateHealthy {
		health.LastErrorMessage = ""
	} else {
		health.LastErrorMessage = message
	}
}

func notify(callbacks []StateChangeCallback, component string, oldState, newState HealthState, err error) {
	if oldState == newState {
		return
	}
	for _, callback := range callbacks {
		callback(component, oldState, newState, err)
	}
}

// countsAgainstProvider reports whether err reflects on the provider rather than the caller
func countsAgainstProvider(err error) bool {
	switch ckerrors.CodeOf(err) {
	case ckerrors.ErrCodeTransport, ckerrors.ErrCodeInternalError, "":
		return true
	default:
		return false
	}
}
