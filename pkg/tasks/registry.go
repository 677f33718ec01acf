// Package tasks keeps the task headers a node knows about, its own and those
// learned from peers.
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

var ErrInvalidHeader = errors.New("tasks: invalid header")

// Registry is an in-memory task header store keyed by task id.
type Registry struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	headers map[string]session.TaskHeader
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger, headers: make(map[string]session.TaskHeader)}
}

// TaskHeaders returns every header ordered by task id.
func (r *Registry) TaskHeaders() []session.TaskHeader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]session.TaskHeader, 0, len(r.headers))
	for _, h := range r.headers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// AddTaskHeader stores h, replacing any header with the same task id.
func (r *Registry) AddTaskHeader(h session.TaskHeader) error {
	if err := validate(h); err != nil {
		return err
	}
	r.mu.Lock()
	_, known := r.headers[h.TaskID]
	r.headers[h.TaskID] = h
	r.mu.Unlock()
	if !known {
		r.logger.Debug("Task header added", zap.String("task", h.TaskID), zap.String("owner", h.ClientID))
	}
	return nil
}

func (r *Registry) RemoveTaskHeader(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.headers[taskID]; !ok {
		return false
	}
	delete(r.headers, taskID)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.headers)
}

func validate(h session.TaskHeader) error {
	switch {
	case strings.TrimSpace(h.TaskID) == "":
		return fmt.Errorf("%w: empty task id", ErrInvalidHeader)
	case strings.TrimSpace(h.ClientID) == "":
		return fmt.Errorf("%w: task %s has no owner", ErrInvalidHeader, h.TaskID)
	case h.Port < 0 || h.Port > 65535:
		return fmt.Errorf("%w: task %s port %d", ErrInvalidHeader, h.TaskID, h.Port)
	}
	return nil
}
