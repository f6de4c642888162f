package domain

import (
	"errors"
	"time"
)

// MaxZonePoints is the number of point slots a geozone carries.
const MaxZonePoints = 6

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// GeozoneSpec is one editable point-radius circle.
type GeozoneSpec struct {
	Center       GeoPoint `json:"center"`
	RadiusMeters float64  `json:"radius_meters"`
	Editable     bool     `json:"editable"`
}

// Contains reports whether a point at distance meters from the center lies
// inside the circle.
func (s GeozoneSpec) Contains(distance float64) bool {
	return distance <= s.RadiusMeters
}

// Geozone is a persisted multi-point fence. All points share one radius;
// unused slots hold the (0,0) sentinel.
type Geozone struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id"`
	Description    string     `json:"description"`
	Points         []GeoPoint `json:"points"`
	RadiusMeters   float64    `json:"radius_meters"`
	Priority       int        `json:"priority"`
	ReverseGeocode bool       `json:"reverse_geocode"`
	ArriveNotify   bool       `json:"arrive_notify"`
	DepartNotify   bool       `json:"depart_notify"`
	ClientUploadID int        `json:"client_upload_id,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Spec returns the circle for point i. Out-of-range indexes yield the unset point.
func (z *Geozone) Spec(i int, editable bool) GeozoneSpec {
	var center GeoPoint
	if i >= 0 && i < len(z.Points) {
		center = z.Points[i]
	}
	return GeozoneSpec{Center: center, RadiusMeters: z.RadiusMeters, Editable: editable}
}

// ActivePoints returns the indexes of all set points.
func (z *Geozone) ActivePoints() []int {
	var idx []int
	for i, p := range z.Points {
		if !p.IsUnset() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Clone returns a deep copy.
func (z *Geozone) Clone() *Geozone {
	c := *z
	c.Points = append([]GeoPoint(nil), z.Points...)
	return &c
}

// Pushpin is a labeled device marker on the map.
type Pushpin struct {
	DeviceID   string    `json:"device_id"`
	Label      string    `json:"label,omitempty"`
	Time       time.Time `json:"time"`
	Location   GeoPoint  `json:"location"`
	Heading    float64   `json:"heading"`
	SpeedKPH   float64   `json:"speed_kph"`
	StatusCode int       `json:"status_code,omitempty"`
	Icon       string    `json:"icon,omitempty"`
	Popup      string    `json:"popup,omitempty"`
}

// DevicePosition is a single GPS fix reported by a tracked device.
type DevicePosition struct {
	Time       time.Time      `json:"time"`
	DeviceID   string         `json:"device_id"`
	AccountID  string         `json:"account_id"`
	Location   GeoPoint       `json:"location"`
	Heading    float64        `json:"heading"`
	SpeedKPH   float64        `json:"speed_kph"`
	StatusCode int            `json:"status_code"`
	Address    string         `json:"address,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Pushpin converts the fix into a map marker.
func (p DevicePosition) Pushpin() Pushpin {
	return Pushpin{
		DeviceID:   p.DeviceID,
		Label:      p.DeviceID,
		Time:       p.Time,
		Location:   p.Location,
		Heading:    p.Heading,
		SpeedKPH:   p.SpeedKPH,
		StatusCode: p.StatusCode,
		Popup:      p.Address,
	}
}

// ChangeKind names what happened to a geozone.
type ChangeKind string

const (
	ChangeUpserted ChangeKind = "upserted"
	ChangeDeleted  ChangeKind = "deleted"
)

// GeozoneChange is published whenever a geozone is written or removed.
type GeozoneChange struct {
	Kind      ChangeKind `json:"kind"`
	ZoneID    string     `json:"zone_id"`
	AccountID string     `json:"account_id"`
	Zone      *Geozone   `json:"zone,omitempty"`
	At        time.Time  `json:"at"`
}

// FenceTransition is the direction of a geofence crossing.
type FenceTransition string

const (
	FenceArrive FenceTransition = "arrive"
	FenceDepart FenceTransition = "depart"
)

// FenceEvent is emitted when a device enters or leaves a geozone.
type FenceEvent struct {
	DeviceID   string          `json:"device_id"`
	ZoneID     string          `json:"zone_id"`
	Transition FenceTransition `json:"transition"`
	Location   GeoPoint        `json:"location"`
	Time       time.Time       `json:"time"`
}

// ReplayMode selects how the console presents each replayed point.
type ReplayMode string

const (
	ReplayHighlight ReplayMode = "highlight"
	ReplayPopup     ReplayMode = "popup"
)

// ReplayFrame is one emitted step of a track replay.
type ReplayFrame struct {
	SessionID string     `json:"session_id"`
	Index     int        `json:"index"`
	Total     int        `json:"total"`
	Mode      ReplayMode `json:"mode"`
	Pushpin   Pushpin    `json:"pushpin"`
}

// ReplayStatus is the lifecycle snapshot of a replay session.
type ReplayStatus struct {
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	State     string    `json:"state"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at"`
}
