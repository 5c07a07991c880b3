package ovsdb

// Event is a membership notification delivered to a Tracker. The set of
// events is closed: only the types in this package implement it.
type Event interface {
	// Kind is a short lowercase name, used as a log field and metric label.
	Kind() string
	isEvent()
}

// Joined reports that a remote unit joined a relation.
type Joined struct {
	RelationID string
	UnitID     string
}

// DataPublished reports key/value data received from a remote unit. An
// empty value removes the key.
type DataPublished struct {
	RelationID string
	UnitID     string
	Data       map[string]string
}

// Departed reports that a remote unit left a relation.
type Departed struct {
	RelationID string
	UnitID     string
}

// Broken reports that the local unit left a relation. An empty RelationID
// breaks every relation of the endpoint.
type Broken struct {
	RelationID string
}

func (Joined) Kind() string        { return "joined" }
func (DataPublished) Kind() string { return "data_published" }
func (Departed) Kind() string      { return "departed" }
func (Broken) Kind() string        { return "broken" }

func (Joined) isEvent()        {}
func (DataPublished) isEvent() {}
func (Departed) isEvent()      {}
func (Broken) isEvent()        {}

// Ensure event types satisfy the interface.
var (
	_ Event = Joined{}
	_ Event = DataPublished{}
	_ Event = Departed{}
	_ Event = Broken{}
)
