package esl

import "strconv"

// Event represents a decoded switch event as an ordered set of key-value
// pairs. Channel variables appear with a "variable_" key prefix.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a flat list of key-value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// Get returns the value for the given key, or empty string if not found.
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// Name returns the Event-Name header value (the switch event type).
func (e Event) Name() string {
	return e.Get("Event-Name")
}

// Variable returns the value of a channel variable set on the session.
func (e Event) Variable(name string) string {
	return e.Get("variable_" + name)
}

// GetInt returns the integer value for the given key, or 0 if not
// found/parseable.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(e.Get(key))
	return v
}
