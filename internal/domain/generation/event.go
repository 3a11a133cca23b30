package generation

import "encoding/json"

// EventKind tags a progress event variant.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventFile     EventKind = "file"
	EventError    EventKind = "error"
	EventComplete EventKind = "complete"
)

// Event is one progress event of a job. Which fields are meaningful depends
// on Kind; use the constructors instead of building it directly.
type Event struct {
	Kind     EventKind
	Message  string
	Path     string // EventFile
	UnitID   string // non-terminal EventError
	Terminal bool   // EventError
	URL      string // EventComplete, or a partial archive on a terminal EventError
}

// StartEvent opens a job's stream.
func StartEvent(message string) Event {
	return Event{Kind: EventStart, Message: message}
}

// FileEvent reports one settled unit.
func FileEvent(path string) Event {
	return Event{Kind: EventFile, Path: path}
}

// UnitErrorEvent reports a failed unit without ending the stream.
func UnitErrorEvent(unitID, message string) Event {
	return Event{Kind: EventError, Message: message, UnitID: unitID}
}

// TerminalErrorEvent ends the stream with a failure. partialURL may be empty.
func TerminalErrorEvent(message, partialURL string) Event {
	return Event{Kind: EventError, Message: message, Terminal: true, URL: partialURL}
}

// CompleteEvent ends the stream successfully.
func CompleteEvent(message, url string) Event {
	return Event{Kind: EventComplete, Message: message, URL: url}
}

// IsTerminal reports whether no event may follow e.
func (e Event) IsTerminal() bool {
	return e.Kind == EventComplete || (e.Kind == EventError && e.Terminal)
}

// wireEvent is the JSON frame sent to clients.
type wireEvent struct {
	Type    EventKind `json:"type"`
	Message string    `json:"message,omitempty"`
	File    string    `json:"file,omitempty"`
	Error   string    `json:"error,omitempty"`
	UnitID  string    `json:"unitId,omitempty"`
	ZipURL  string    `json:"zipUrl,omitempty"`
}

// MarshalJSON encodes the event in the client wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Kind}
	switch e.Kind {
	case EventStart:
		w.Message = e.Message
	case EventFile:
		w.File = e.Path
	case EventError:
		w.Error = e.Message
		w.UnitID = e.UnitID
		w.ZipURL = e.URL
	case EventComplete:
		w.Message = e.Message
		w.ZipURL = e.URL
	}
	return json.Marshal(w)
}
