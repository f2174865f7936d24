package board

import "fmt"

// MalformedTopologyError reports a node/edge set that cannot form a board.
// Build returns it without producing a partial graph.
type MalformedTopologyError struct {
	Reason string
	Edge   *Edge
	Node   string
}

func (e *MalformedTopologyError) Error() string {
	switch {
	case e.Edge != nil:
		return fmt.Sprintf("malformed topology: %s: edge %s", e.Reason, e.Edge)
	case e.Node != "":
		return fmt.Sprintf("malformed topology: %s: node %q", e.Reason, e.Node)
	default:
		return "malformed topology: " + e.Reason
	}
}
