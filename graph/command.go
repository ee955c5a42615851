package graph

import "fmt"

// Op discriminates command variants
type Op uint8

const (
	OpInsert Op = iota + 1
	OpRemove
	OpConnect
	OpDisconnect
	OpEvent
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	case OpConnect:
		return "connect"
	case OpDisconnect:
		return "disconnect"
	case OpEvent:
		return "event"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Command is one deferred graph operation, closed to the variants below
type Command interface {
	Op() Op
	// Target returns the node the command is primarily about
	Target() NodeID
	fmt.Stringer
	command()
}

// InsertNode creates a node with the given ID
type InsertNode struct {
	ID         NodeID
	Descriptor Descriptor
}

// RemoveNode deletes a node and its connections; removing a missing node is a no-op
type RemoveNode struct {
	ID NodeID
}

// Connect routes From's outputs into To's inputs
type Connect struct {
	From, To NodeID
	Ports    PortMap
}

// Disconnect removes the From->To connection; missing connections are a no-op
type Disconnect struct {
	From, To NodeID
}

// SendEvent delivers a payload to a live node
type SendEvent struct {
	Node    NodeID
	Payload Event
}

func (InsertNode) command() {}
func (RemoveNode) command() {}
func (Connect) command()    {}
func (Disconnect) command() {}
func (SendEvent) command()  {}

func (InsertNode) Op() Op { return OpInsert }
func (RemoveNode) Op() Op { return OpRemove }
func (Connect) Op() Op    { return OpConnect }
func (Disconnect) Op() Op { return OpDisconnect }
func (SendEvent) Op() Op  { return OpEvent }

func (c InsertNode) Target() NodeID { return c.ID }
func (c RemoveNode) Target() NodeID { return c.ID }
func (c Connect) Target() NodeID    { return c.To }
func (c Disconnect) Target() NodeID { return c.To }
func (c SendEvent) Target() NodeID  { return c.Node }

func (c InsertNode) String() string { return fmt.Sprintf("insert %s %s", c.ID, c.Descriptor) }
func (c RemoveNode) String() string { return fmt.Sprintf("remove %s", c.ID) }
func (c Connect) String() string    { return fmt.Sprintf("connect %s->%s", c.From, c.To) }
func (c Disconnect) String() string { return fmt.Sprintf("disconnect %s->%s", c.From, c.To) }
func (c SendEvent) String() string {
	return fmt.Sprintf("event %s to %s", EventName(c.Payload), c.Node)
}

// Batch is an ordered group of commands submitted as one logical operation
type Batch []Command

// Insert appends an InsertNode
func (b *Batch) Insert(id NodeID, d Descriptor) {
	*b = append(*b, InsertNode{ID: id, Descriptor: d})
}

// Remove appends a RemoveNode
func (b *Batch) Remove(id NodeID) {
	*b = append(*b, RemoveNode{ID: id})
}

// Connect appends a Connect, nil ports select StereoPorts
func (b *Batch) Connect(from, to NodeID, ports PortMap) {
	if ports == nil {
		ports = StereoPorts
	}
	*b = append(*b, Connect{From: from, To: to, Ports: ports.Clone()})
}

// Disconnect appends a Disconnect
func (b *Batch) Disconnect(from, to NodeID) {
	*b = append(*b, Disconnect{From: from, To: to})
}

// Send appends a SendEvent
func (b *Batch) Send(target NodeID, ev Event) {
	*b = append(*b, SendEvent{Node: target, Payload: ev})
}

// Submitter accepts command batches; implemented by CommandQueue
type Submitter interface {
	SubmitBatch(b Batch)
}
