package indexer

import "fmt"

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventDiscovered carries one image path and its thumbnail.
	EventDiscovered EventKind = iota
	// EventFinished is sent once after a complete walk.
	EventFinished
	// EventFailed is sent once when the walk itself fails.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventDiscovered:
		return "discovered"
	case EventFinished:
		return "finished"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one notification from a running job.
type Event struct {
	Kind      EventKind
	Path      string
	Thumbnail []byte
	Err       error
}

// Message returns the failure text for EventFailed, or "".
func (e Event) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Handler receives events through callbacks.
type Handler interface {
	OnDiscovered(path string, thumbnail []byte)
	OnFinished()
	OnFailed(message string)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Discovered func(path string, thumbnail []byte)
	Finished   func()
	Failed     func(message string)
}

func (h HandlerFuncs) OnDiscovered(path string, thumbnail []byte) {
	if h.Discovered != nil {
		h.Discovered(path, thumbnail)
	}
}

func (h HandlerFuncs) OnFinished() {
	if h.Finished != nil {
		h.Finished()
	}
}

func (h HandlerFuncs) OnFailed(message string) {
	if h.Failed != nil {
		h.Failed(message)
	}
}

// Dispatch feeds every event from events to h until the channel closes.
// Handlers should hand work off quickly; the scan waits on a full buffer.
func Dispatch(events <-chan Event, h Handler) {
	for ev := range events {
		switch ev.Kind {
		case EventDiscovered:
			h.OnDiscovered(ev.Path, ev.Thumbnail)
		case EventFinished:
			h.OnFinished()
		case EventFailed:
			h.OnFailed(ev.Message())
		}
	}
}
