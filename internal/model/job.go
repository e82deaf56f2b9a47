// Package model defines the canonical entities shared across the ingestion
// and query paths.
package model

import "time"

// Coordinates is a WGS84 point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Job is the canonical posting record produced by the normalizer.
//
// Lat and Lon are always set or unset together; a job with only one of the
// two is a bug. UniqHash is the natural key for upsert — two jobs with equal
// hashes are the same logical posting and the later write wins.
type Job struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"sourceId"`
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	City        string     `json:"city"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	PostedAt    *time.Time `json:"postedAt,omitempty"`
	SalaryMin   *int       `json:"salaryMin,omitempty"`
	SalaryMax   *int       `json:"salaryMax,omitempty"`
	Lat         *float64   `json:"lat,omitempty"`
	Lon         *float64   `json:"lon,omitempty"`
	Remote      bool       `json:"remote"`
	UniqHash    string     `json:"uniqHash"`
}

// HasCoordinates reports whether the job carries a resolved location.
func (j *Job) HasCoordinates() bool {
	return j.Lat != nil && j.Lon != nil
}

// SetCoordinates fills the job's location. Used only to fill a gap after
// geocoding; callers must not override an existing location.
func (j *Job) SetCoordinates(c Coordinates) {
	lat, lon := c.Lat, c.Lon
	j.Lat = &lat
	j.Lon = &lon
}

// Location returns the job's coordinates, or nil when unresolved.
func (j *Job) Location() *Coordinates {
	if !j.HasCoordinates() {
		return nil
	}
	return &Coordinates{Lat: *j.Lat, Lon: *j.Lon}
}
