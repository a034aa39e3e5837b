package diffmap

// Class is the outcome of classifying a single key during a diff.
type Class uint8

const (
	OnlyInA Class = iota
	OnlyInB
	Descended
	Same
	Changed
)

func (c Class) String() string {
	switch c {
	case OnlyInA:
		return "only-in-a"
	case OnlyInB:
		return "only-in-b"
	case Descended:
		return "descended"
	case Same:
		return "equal"
	case Changed:
		return "differing"
	default:
		return "unknown"
	}
}

// Event is emitted once per classified key.
type Event struct {
	Path  Path
	Depth int
	Class Class
}

// EventSink receives classification events. With [WithParallelism] it is
// called from several goroutines.
type EventSink func(Event)
