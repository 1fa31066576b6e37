package event

// Schedule is the outage schedule of one area as returned by the feed.
type Schedule struct {
	AreaName   string  `json:"area_name" yaml:"area_name"`
	RegionName string  `json:"region_name" yaml:"region_name"`
	Events     []Event `json:"events" yaml:"events"`
}
