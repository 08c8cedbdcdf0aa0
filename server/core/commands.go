package core

import "sync"

// Command is work queued by a network goroutine for the simulation
// goroutine. It runs at the start of the next tick.
type Command func(s *Server)

// CommandQueue hands work from router callbacks to the game loop.
type CommandQueue struct {
	mu      sync.Mutex
	pending []Command
}

// Push queues c.
func (q *CommandQueue) Push(c Command) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// Drain returns the queued commands in arrival order and empties the queue.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ProcessCommands runs every queued command on the calling goroutine.
func (s *Server) ProcessCommands() {
	for _, c := range s.commands.Drain() {
		c(s)
	}
}
