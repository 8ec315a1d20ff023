package graph

import "errors"

var (
	ErrInvalidTransition = errors.New("graph: invalid node state transition")
	ErrPortDirection     = errors.New("graph: port direction mismatch")
	ErrAlreadyLinked     = errors.New("graph: port already linked")
	ErrNotLinked         = errors.New("graph: port not linked")
	ErrWouldCycle        = errors.New("graph: link would introduce a cycle")
	ErrForeignPort       = errors.New("graph: port does not belong to this graph")
	ErrNodeNotFound      = errors.New("graph: node not found")
	ErrNoDriver          = errors.New("graph: graph has no driver node")
)
