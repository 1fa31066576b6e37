// Package homie describes a device following the Homie 4 MQTT convention
// and publishes its attribute tree and property values.
//
// Topics are laid out as
//
//	<base>/<device>/$<attr>
//	<base>/<device>/<node>/$<attr>
//	<base>/<device>/<node>/<property>
//	<base>/<device>/<node>/<property>/$<attr>
package homie

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Publisher sends a single MQTT message.
type Publisher interface {
	Publish(topic, payload string, retained bool) error
}

// State is a device lifecycle state published to $state.
type State string

const (
	StateInit         State = "init"
	StateReady        State = "ready"
	StateDisconnected State = "disconnected"
	StateLost         State = "lost"
)

// Datatype is a Homie property datatype.
type Datatype string

const (
	TypeString   Datatype = "string"
	TypeInteger  Datatype = "integer"
	TypeBoolean  Datatype = "boolean"
	TypeDatetime Datatype = "datetime"
)

// announced returns the datatype advertised in $datatype. Datetimes are
// advertised as strings carrying ISO-8601 text.
func (d Datatype) announced() Datatype {
	if d == TypeDatetime {
		return TypeString
	}
	return d
}

// Property is a single value exposed by a node.
type Property struct {
	ID       string
	Name     string
	Datatype Datatype
	Format   string
	Unit     string
	Settable bool
	Retained bool
}

// Node groups related properties.
type Node struct {
	ID         string
	Name       string
	Type       string
	Properties []Property
}

// Property returns the property with the given id.
func (n Node) Property(id string) (Property, bool) {
	for _, p := range n.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// Device is the root of the Homie tree.
type Device struct {
	BaseTopic      string
	ID             string
	Name           string
	Version        string
	Extensions     string
	Implementation string
	Nodes          []Node
}

// Node returns the node with the given id.
func (d Device) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Topic joins the device prefix with the given levels.
func (d Device) Topic(levels ...string) string {
	parts := make([]string, 0, len(levels)+2)
	parts = append(parts, d.BaseTopic, d.ID)
	parts = append(parts, levels...)
	return strings.Join(parts, "/")
}

// StateTopic is the $state topic, also used for the last will.
func (d Device) StateTopic() string { return d.Topic("$state") }

// SetTopicFilter matches command topics of every device under the base topic.
func (d Device) SetTopicFilter() string {
	return strings.Join([]string{d.BaseTopic, "+", "+", "+", "set", "#"}, "/")
}

func (d Device) nodeIDs() string {
	ids := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		ids[i] = n.ID
	}
	return strings.Join(ids, ",")
}

// PublishState publishes the lifecycle state.
func (d Device) PublishState(pub Publisher, s State) error {
	return pub.Publish(d.StateTopic(), string(s), true)
}

// Announce publishes the full attribute tree: device attributes with
// $state=init, every node and property, then $state=ready. Publishing
// continues past individual failures; all errors are returned joined.
func (d Device) Announce(pub Publisher) error {
	var errs []error
	put := func(topic, payload string) {
		if err := pub.Publish(topic, payload, true); err != nil {
			errs = append(errs, err)
		}
	}

	put(d.Topic("$homie"), d.Version)
	put(d.Topic("$name"), d.Name)
	put(d.StateTopic(), string(StateInit))
	put(d.Topic("$nodes"), d.nodeIDs())
	put(d.Topic("$extensions"), d.Extensions)
	put(d.Topic("$implementation"), d.Implementation)

	for _, n := range d.Nodes {
		put(d.Topic(n.ID, "$name"), n.Name)
		if n.Type != "" {
			put(d.Topic(n.ID, "$type"), n.Type)
		}
		ids := make([]string, len(n.Properties))
		for i, p := range n.Properties {
			ids[i] = p.ID
		}
		put(d.Topic(n.ID, "$properties"), strings.Join(ids, ","))

		for _, p := range n.Properties {
			put(d.Topic(n.ID, p.ID, "$name"), p.Name)
			put(d.Topic(n.ID, p.ID, "$datatype"), string(p.Datatype.announced()))
			if p.Format != "" {
				put(d.Topic(n.ID, p.ID, "$format"), p.Format)
			}
			put(d.Topic(n.ID, p.ID, "$settable"), Bool(p.Settable))
			put(d.Topic(n.ID, p.ID, "$retained"), Bool(p.Retained))
			if p.Unit != "" {
				put(d.Topic(n.ID, p.ID, "$unit"), p.Unit)
			}
		}
	}

	put(d.StateTopic(), string(StateReady))
	return errors.Join(errs...)
}

// Value is an encoded property payload.
type Value struct {
	Property string
	Payload  string
}

// PublishValues publishes the given values of node. Values for properties
// the node does not declare are skipped with ErrUnknownProperty.
func (d Device) PublishValues(pub Publisher, nodeID string, values []Value) error {
	node, ok := d.Node(nodeID)
	if !ok {
		return &UnknownError{Kind: "node", ID: nodeID}
	}
	var errs []error
	for _, v := range values {
		p, ok := node.Property(v.Property)
		if !ok {
			errs = append(errs, &UnknownError{Kind: "property", ID: nodeID + "/" + v.Property})
			continue
		}
		if err := pub.Publish(d.Topic(nodeID, p.ID), v.Payload, p.Retained); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrUnknownProperty is matched by errors for undeclared nodes or properties.
var ErrUnknownProperty = errors.New("unknown homie property")

// UnknownError names the undeclared node or property.
type UnknownError struct {
	Kind string
	ID   string
}

func (e *UnknownError) Error() string { return "unknown homie " + e.Kind + " " + e.ID }

// Is makes errors.Is(err, ErrUnknownProperty) true.
func (e *UnknownError) Is(target error) bool { return target == ErrUnknownProperty }

// Bool encodes a boolean payload.
func Bool(b bool) string { return strconv.FormatBool(b) }

// Int encodes an integer payload.
func Int(i int) string { return strconv.Itoa(i) }

// DateTimeLayout is ISO-8601 with a numeric UTC offset.
const DateTimeLayout = "2006-01-02T15:04:05-07:00"

// DateTime encodes t in loc; the zero time encodes as "".
func DateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateTimeLayout)
}
