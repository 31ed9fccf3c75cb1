package skill

import (
	"strconv"
	"sync"
)

// StepContext is the per-execution key-value map the steps-mode executor
// accumulates and the template engine resolves against. Keys follow
// stepN_result / stepN_result_raw / stepN_<field>
// plus the fixed user_input/history/last_step_result(_raw) slots.
type StepContext struct {
	mu            sync.RWMutex
	userInput     string
	history       string
	values        map[string]string
	allowedFields map[int]map[string]bool
	jsonSteps     map[int]bool
	lastStep      int
}

func NewStepContext(userInput, history string) *StepContext {
	return &StepContext{
		userInput:     userInput,
		history:       history,
		values:        make(map[string]string),
		allowedFields: make(map[int]map[string]bool),
		jsonSteps:     make(map[int]bool),
	}
}

// SetStepResult records a step's raw text output and, for non-json steps,
// its sole "result" value (json steps additionally call SetStepField per
// extracted field).
func (c *StepContext) SetStepResult(step int, result, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key(step, "result")] = result
	c.values[key(step, "result_raw")] = raw
	c.values["last_step_result"] = result
	c.values["last_step_result_raw"] = raw
	if step > c.lastStep {
		c.lastStep = step
	}
}

// SetStepField records one whitelisted JSON field extracted from a step's
// output and marks the step as a json-output step.
func (c *StepContext) SetStepField(step int, field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jsonSteps[step] = true
	if c.allowedFields[step] == nil {
		c.allowedFields[step] = make(map[string]bool)
	}
	c.allowedFields[step][field] = true
	c.values[key(step, field)] = value
}

func key(step int, suffix string) string {
	return "step" + strconv.Itoa(step) + "_" + suffix
}

// AllowedFields returns the whitelisted json fields for a prior step.
func (c *StepContext) AllowedFields(step int) map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allowedFields[step]
}

// JSONSteps returns the set of step indices that ran with output_mode=json.
func (c *StepContext) JSONSteps() map[int]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]bool, len(c.jsonSteps))
	for k, v := range c.jsonSteps {
		out[k] = v
	}
	return out
}

// Lookup implements the template engine's Lookup contract against this
// context plus the fixed user_input/history slots.
func (c *StepContext) Lookup(name string) (string, bool) {
	switch name {
	case "user_input":
		return c.userInput, true
	case "history":
		return c.history, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	return v, ok
}

// LastStep returns the highest step index recorded so far.
func (c *StepContext) LastStep() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastStep
}
