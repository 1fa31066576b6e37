package poller

import (
	"fmt"

	"github.com/kilianp07/loadshed-mqtt/core/homie"
)

// Node and property identifiers of the published device.
const (
	NodeArea   = "area"
	NodeAPI    = "api"
	NodeStatus = "status"

	PropAreaID     = "areaid"
	PropAreaName   = "areaname"
	PropRegionName = "regionname"

	PropLastAPIUpdate = "lastapiupdate"
	PropAPICount      = "apicount"
	PropAPILimit      = "apilimit"
	PropAPILimitType  = "apilimittype"

	PropLoadShedding = "loadshedding"
	PropWarning15Min = "warning15min"
	PropWarning5Min  = "warning5min"
	PropNextStart    = "loadsheddingnextstart"
	PropNextEnd      = "loadsheddingnextend"
	PropEndOfCurrent = "loadsheddingend"
	PropNote         = "note"

	PropEventStart = "start"
	PropEventEnd   = "end"
	PropEventNote  = "note"
)

// DeviceInfo holds the device level Homie attributes.
type DeviceInfo struct {
	BaseTopic      string
	ID             string
	Name           string
	Version        string
	Extensions     string
	Implementation string
}

func prop(id, name string, dt homie.Datatype) homie.Property {
	return homie.Property{ID: id, Name: name, Datatype: dt, Retained: true}
}

// EventNodeID returns the id of the i-th (1-based) event node.
func EventNodeID(i int) string { return fmt.Sprintf("event%d", i) }

// NewDevice builds the Homie tree published by the poller. maxEvents adds
// that many eventN nodes listing the raw schedule.
func NewDevice(info DeviceInfo, maxEvents int) homie.Device {
	nodes := []homie.Node{
		{
			ID:   NodeArea,
			Name: "Area",
			Properties: []homie.Property{
				prop(PropAreaID, "Area ID", homie.TypeString),
				prop(PropAreaName, "Area Name", homie.TypeString),
				prop(PropRegionName, "Region Name", homie.TypeString),
			},
		},
		{
			ID:   NodeAPI,
			Name: "API",
			Properties: []homie.Property{
				prop(PropLastAPIUpdate, "Last Update", homie.TypeDatetime),
				prop(PropAPICount, "API Count", homie.TypeInteger),
				prop(PropAPILimit, "API Limit", homie.TypeInteger),
				prop(PropAPILimitType, "API Limit Type", homie.TypeString),
			},
		},
		{
			ID:   NodeStatus,
			Name: "Loadshedding status",
			Properties: []homie.Property{
				prop(PropLoadShedding, "Current Loadshedding", homie.TypeBoolean),
				prop(PropWarning15Min, "Loadshedding 15 minute Warning", homie.TypeBoolean),
				prop(PropWarning5Min, "Loadshedding 5 minute Warning", homie.TypeBoolean),
				prop(PropNextStart, "Loadshedding Start Time", homie.TypeDatetime),
				prop(PropNextEnd, "Loadshedding End Time", homie.TypeDatetime),
				prop(PropEndOfCurrent, "Loadshedding End Time", homie.TypeDatetime),
				prop(PropNote, "Status Note", homie.TypeString),
			},
		},
	}
	for i := 1; i <= maxEvents; i++ {
		nodes = append(nodes, homie.Node{
			ID:   EventNodeID(i),
			Name: fmt.Sprintf("Event %d", i),
			Properties: []homie.Property{
				prop(PropEventStart, "Start Time", homie.TypeDatetime),
				prop(PropEventEnd, "End Time", homie.TypeDatetime),
				prop(PropEventNote, "Note", homie.TypeString),
			},
		})
	}
	return homie.Device{
		BaseTopic:      info.BaseTopic,
		ID:             info.ID,
		Name:           info.Name,
		Version:        info.Version,
		Extensions:     info.Extensions,
		Implementation: info.Implementation,
		Nodes:          nodes,
	}
}
