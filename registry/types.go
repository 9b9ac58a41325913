package registry

// Handle is an opaque reference to a live simulation. Handle 0 is
// reserved and always invalid. The low 16 bits carry the slot index, the
// bits above it the slot's generation at insert time, keeping the value a
// small non-negative int32.
type Handle int32

// Ref is the engine's own reference to a simulation state object. The
// host stores it but never interprets it.
type Ref int32

const (
	indexBits = 16
	indexMask = (1 << indexBits) - 1
	genMask   = 0x7fff // generations wrap at 15 bits to keep handles positive

	// maxSlots bounds the arena; slot indices must fit in indexBits
	// together with the +1 offset that keeps handle 0 invalid.
	maxSlots = indexMask - 1
)

func makeHandle(idx int, gen uint16) Handle {
	return Handle(int32(gen)<<indexBits | int32(idx+1))
}

func splitHandle(h Handle) (idx int, gen uint16, ok bool) {
	if h <= 0 {
		return 0, 0, false
	}
	slot := int32(h) & indexMask
	if slot == 0 {
		return 0, 0, false
	}
	return int(slot - 1), uint16(int32(h) >> indexBits), true
}

// EventType identifies a handle lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

// Event describes one handle lifecycle transition.
type Event struct {
	Type   EventType
	Handle Handle
	Ref    Ref
}

// Observer receives handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}
