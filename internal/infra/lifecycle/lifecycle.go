// Package lifecycle supervises the chat client's long-running
// subsystems — the UI dispatch queue, the event client, the
// subscription-rate throttler, the subscription multiplexer — as a tree
// of named nodes. It maintains a context hierarchy, explicit dependencies
// between nodes, and guarantees a predictable start/stop order: "submux"
// depends on "emotes" and "subthrottle" being up first, and none of them
// outlive "ui" on shutdown. Each branch inherits its parent's context
// cancellation and shuts down cleanly on Shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
)

// StartFunc starts a node and may return a context that becomes the
// parent context for child nodes. If nil is returned, the manager uses
// its own child context. An error marks the node failed and aborts its
// start.
type StartFunc func(ctx context.Context) (context.Context, error)

// StopFunc stops a node. By the time it's called the node's context is
// already cancelled, so the implementation must wind down background
// work and release resources.
type StopFunc func(ctx context.Context) error

// nodeStatus describes a node's current state in the manager's lifecycle.
type nodeStatus int

const (
	statusRegistered nodeStatus = iota // registered, not yet started
	statusStarting                     // starting, or waiting on dependencies
	statusRunning                      // started successfully, context active
	statusStopping                     // stop requested, context cancelled
	statusStopped                      // stopped cleanly
	statusFailed                       // failed during start/stop
)

// String renders a status the way /debug wants it: a short, stable word
// rather than nodeStatus's unexported int value.
func (s nodeStatus) String() string {
	switch s {
	case statusRegistered:
		return "registered"
	case statusStarting:
		return "starting"
	case statusRunning:
		return "running"
	case statusStopping:
		return "stopping"
	case statusStopped:
		return "stopped"
	case statusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const rootName = "root"

type node struct {
	name   string
	parent string
	deps   []string

	start StartFunc
	stop  StopFunc

	ctx    context.Context
	cancel context.CancelFunc
	status nodeStatus
	err    error
}

// Manager supervises the lifecycle of a set of nodes and guarantees a
// correct start/stop order given their dependencies and hierarchy.
// Thread-safe.
type Manager struct {
	mu         sync.Mutex       // guards nodes/startOrder
	nodes      map[string]*node // all registered nodes, including root
	startOrder []string         // actual start order, used to reverse for stop
}

// Logger is the minimal logging interface used by the manager.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// New creates a manager with a root node already in the Running state.
// If rootCtx is nil, context.Background() is used. Root is the invisible
// parent of every other node and anchors their lifecycle.
func New(rootCtx context.Context) *Manager {
	if rootCtx == nil {
		rootCtx = context.Background()
	}

	rootNode := &node{
		name:   rootName,
		parent: "",
		deps:   nil,
		ctx:    rootCtx,
		cancel: nil,
		status: statusRunning,
	}

	return &Manager{
		nodes: map[string]*node{
			rootName: rootNode,
		},
	}
}

// Register adds a new node name. If parent is empty, root is used. deps
// are additional dependencies that must be started BEFORE this node.
// Checks: unique name, parent exists, duplicates/parent stripped from
// deps, no self-dependency. The node starts out Registered.
func (m *Manager) Register(name string, parent string, deps []string, start StartFunc, stop StopFunc) error {
	if name == "" || name == rootName {
		return fmt.Errorf("lifecycle: invalid node name %q", name)
	}
	if parent == "" {
		// Default to anchoring the node at the root of the context tree.
		parent = rootName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodes[name]; exists {
		return fmt.Errorf("lifecycle: node %q already registered", name)
	}
	if _, parentExists := m.nodes[parent]; !parentExists {
		return fmt.Errorf("lifecycle: parent %q not found for node %q", parent, name)
	}

	// Strip adjacent duplicates and the parent itself (already above it in the hierarchy).
	uniqueDeps := slices.Compact(slices.Clone(deps))
	uniqueDeps = slices.DeleteFunc(uniqueDeps, func(d string) bool { return d == parent })
	if slices.Contains(uniqueDeps, name) {
		return fmt.Errorf("lifecycle: node %q cannot depend on itself", name)
	}

	m.nodes[name] = &node{
		name:   name,
		parent: parent,
		deps:   uniqueDeps,
		start:  start,
		stop:   stop,
		status: statusRegistered,
	}
	return nil
}

// StartAll starts every registered node (except root), honoring
// dependencies. The initial pass order is deterministic (names sorted
// alphabetically), but the actual startOrder reflects recursive startup
// of parents/deps. Returns a joined error if any node failed to start.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.nodes))
	for name := range m.nodes {
		if name != rootName {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	// Predictable pass order keeps logs stable across runs.
	slices.Sort(names)

	var errs error
	for _, name := range names {
		if err := m.startNode(name); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	logger.Debugf("lifecycle start order: %v", m.startOrder)
	return errs
}

// startNode recursively starts a node: ensures its parent and all deps
// are started, creates a child context, and "bridges" it to whatever
// context StartFunc returns, if different. Guards against cycles: a
// re-entrant Starting state is treated as a dependency cycle.
func (m *Manager) startNode(name string) error {
	m.mu.Lock()
	n, exists := m.nodes[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("lifecycle: node %q not registered", name)
	}

	switch n.status { //nolint:exhaustive // full status machine, not every state branches here
	case statusRunning:
		m.mu.Unlock()
		return nil
	case statusStarting:
		m.mu.Unlock()
		return fmt.Errorf("lifecycle: detected cycle while starting %q", name)
	}
	n.status = statusStarting
	m.mu.Unlock()

	logger.Debugf("starting node %s", name)

	if n.parent != "" {
		if err := m.startNode(n.parent); err != nil {
			m.setNodeFailed(name, err)
			logger.Errorf("failed to start node %s: %v", name, err)
			return err
		}
	}
	// Ensure every dependency is up before this node.
	for _, dep := range n.deps {
		if err := m.startNode(dep); err != nil {
			m.setNodeFailed(name, err)
			logger.Errorf("failed to start node %s: %v", name, err)
			return err
		}
	}

	parentCtx, err := m.nodeContext(n.parent)
	if err != nil {
		m.setNodeFailed(name, err)
		return err
	}

	// Inherit the parent's cancellation and give the node its own cancel.
	childCtx, cancel := context.WithCancel(parentCtx)
	finalCtx := childCtx

	if n.start != nil {
		if startedCtx, errStart := n.start(childCtx); errStart != nil {
			cancel()
			m.setNodeFailed(name, errStart)
			return errStart
		} else if startedCtx != nil && startedCtx != childCtx {
			// The node returned a derived context. Bridge its cancellation to
			// childCtx's so Shutdown reliably tears down the subtree even
			// through wrapping.
			bridged, bridgedCancel := context.WithCancel(startedCtx)
			stopAfter := context.AfterFunc(childCtx, bridgedCancel)

			// Redefine cancel so it closes both branches and stops the deferred func.
			oldCancel := cancel
			cancel = func() {
				oldCancel()
				stopAfter()
				bridgedCancel()
			}
			finalCtx = bridged
		}
	}

	m.mu.Lock()
	n.ctx = finalCtx
	n.cancel = cancel
	n.status = statusRunning
	n.err = nil
	// Record start order, skipping duplicates (a node may already have
	// been brought up as someone else's dependency).
	if !slices.Contains(m.startOrder, name) {
		m.startOrder = append(m.startOrder, name)
	}
	m.mu.Unlock()

	logger.Debugf("node %s is running", name)

	return nil
}

// nodeContext returns a node's context, or an error if the node doesn't
// exist or hasn't started yet.
func (m *Manager) nodeContext(name string) (context.Context, error) {
	if name == "" {
		name = rootName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[name]
	if !ok {
		return nil, fmt.Errorf("node %q not registered", name)
	}
	if n.ctx == nil {
		return nil, fmt.Errorf("node %q has no context", name)
	}
	return n.ctx, nil
}

// Status reports the current status of a named node (e.g. "ui",
// "emotes", "subthrottle", "submux") as a stable string, and whether
// that node is registered at all. Used by the console's /debug command
// to show the operator which subsystems are actually up.
func (m *Manager) Status(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[name]
	if !ok {
		return "", false
	}
	return n.status.String(), true
}

// Shutdown stops every started node in reverse start order, guaranteeing
// children wind down before their parents. Returns a joined error if any
// stop hook failed.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	order := append([]string(nil), m.startOrder...)
	m.mu.Unlock()
	logger.Debugf("shutdown order: %v", order)

	var errs error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := m.stopNode(name); err != nil {
			errs = errors.Join(errs, err)
		}
		logger.Debugf("node %s stop processed", name)
	}
	return errs
}

// stopNode stops a Running node: cancels its context, calls StopFunc,
// and moves it to Stopped or Failed based on the result.
func (m *Manager) stopNode(name string) error {
	m.mu.Lock()
	n, exists := m.nodes[name]
	if !exists || n.status != statusRunning {
		m.mu.Unlock()
		return nil
	}
	n.status = statusStopping
	cancel := n.cancel
	stopFn := n.stop
	nodeCtx := n.ctx
	m.mu.Unlock()

	logger.Debugf("stopping node %s", name)

	// Cancel the context first — the right signal for the node's background goroutines.
	if cancel != nil {
		cancel()
	}

	var err error
	if stopFn != nil {
		err = stopFn(nodeCtx)
	}

	m.mu.Lock()
	if err != nil {
		n.status = statusFailed
		n.err = err
	} else {
		n.status = statusStopped
		n.err = nil
	}
	m.mu.Unlock()

	if err != nil {
		logger.Errorf("node %s stopped with error: %v", name, err)
	} else {
		logger.Debugf("node %s stopped", name)
	}
	return err
}

// setNodeFailed marks a node Failed and stores the error under the mutex.
func (m *Manager) setNodeFailed(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.nodes[name]; ok {
		n.status = statusFailed
		n.err = err
	}
}
