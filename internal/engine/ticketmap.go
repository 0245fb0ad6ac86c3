package engine

import "sort"

// Mapping is the slave-side record for one mirrored master ticket: the
// slave ticket plus the SL/TP pair last known to be applied on the slave.
// Caching the applied SL/TP lets the engine derive modification events from
// master snapshots alone, without a slave round-trip per poll.
type Mapping struct {
	SlaveTicket uint64
	SL          float64
	TP          float64
}

// TicketMap is the bidirectional master-ticket to slave-ticket relation.
// Entries are added on successful open, removed on successful close, and
// otherwise immutable apart from the applied SL/TP record.
type TicketMap struct {
	forward map[uint64]Mapping
	reverse map[uint64]uint64
}

// NewTicketMap creates an empty ticket map.
func NewTicketMap() *TicketMap {
	return &TicketMap{
		forward: make(map[uint64]Mapping),
		reverse: make(map[uint64]uint64),
	}
}

// Add records a freshly mirrored ticket with the SL/TP the open carried.
func (m *TicketMap) Add(masterTicket, slaveTicket uint64, sl, tp float64) {
	m.forward[masterTicket] = Mapping{SlaveTicket: slaveTicket, SL: sl, TP: tp}
	m.reverse[slaveTicket] = masterTicket
}

// SetSLTP updates the applied SL/TP record for a mirrored ticket.
func (m *TicketMap) SetSLTP(masterTicket uint64, sl, tp float64) {
	entry, ok := m.forward[masterTicket]
	if !ok {
		return
	}
	entry.SL, entry.TP = sl, tp
	m.forward[masterTicket] = entry
}

// Remove drops a mirrored ticket from both directions of the relation.
func (m *TicketMap) Remove(masterTicket uint64) {
	if entry, ok := m.forward[masterTicket]; ok {
		delete(m.reverse, entry.SlaveTicket)
		delete(m.forward, masterTicket)
	}
}

// Lookup returns the mapping for a master ticket.
func (m *TicketMap) Lookup(masterTicket uint64) (Mapping, bool) {
	entry, ok := m.forward[masterTicket]
	return entry, ok
}

// MasterForSlave returns the master ticket mirrored by a slave ticket.
func (m *TicketMap) MasterForSlave(slaveTicket uint64) (uint64, bool) {
	t, ok := m.reverse[slaveTicket]
	return t, ok
}

// Contains reports whether a master ticket is mirrored.
func (m *TicketMap) Contains(masterTicket uint64) bool {
	_, ok := m.forward[masterTicket]
	return ok
}

// MasterTickets returns all mirrored master tickets in ascending order.
func (m *TicketMap) MasterTickets() []uint64 {
	tickets := make([]uint64, 0, len(m.forward))
	for t := range m.forward {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
	return tickets
}

// Len returns the number of mirrored tickets.
func (m *TicketMap) Len() int { return len(m.forward) }
