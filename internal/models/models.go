package models

import (
	"fmt"
	"time"
)

// Job represents one job posting upserted from an external feed.
type Job struct {
	JobID       string    `json:"jobId,omitempty" bson:"jobId,omitempty"`
	Title       string    `json:"title" bson:"title"`
	Company     string    `json:"company,omitempty" bson:"company,omitempty"`
	Location    string    `json:"location,omitempty" bson:"location,omitempty"`
	URL         string    `json:"url" bson:"url"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Source      string    `json:"source" bson:"source"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// IdentityKey returns the key used to decide insert vs. update: the external
// job ID plus source when the feed provides an ID, otherwise title plus
// source. The first field is length-prefixed so no separator character inside
// a title or ID can collide with another identity.
func (j Job) IdentityKey() string {
	if j.JobID != "" {
		return fmt.Sprintf("id:%d:%s:%s", len(j.JobID), j.JobID, j.Source)
	}
	return fmt.Sprintf("title:%d:%s:%s", len(j.Title), j.Title, j.Source)
}

// RawItem is one <item> element of a feed document, read as flat fields.
type RawItem struct {
	ID          string `xml:"id"`
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Company     string `xml:"company"`
	Location    string `xml:"location"`
	URL         string `xml:"url"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
}

// WorkItem is one queued unit of ingestion work: the raw item fields plus the
// resolved URL and the originating feed URL.
type WorkItem struct {
	JobID       string `json:"jobId,omitempty"`
	Title       string `json:"title"`
	Company     string `json:"company,omitempty"`
	Location    string `json:"location,omitempty"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}

// Job converts the work item into the posting to be upserted.
func (w WorkItem) Job(now time.Time) Job {
	return Job{
		JobID:       w.JobID,
		Title:       w.Title,
		Company:     w.Company,
		Location:    w.Location,
		URL:         w.URL,
		Description: w.Description,
		Source:      w.Source,
		UpdatedAt:   now,
	}
}

// ImportLog is the persisted merged summary for one source feed within a
// rolling 60-minute window.
type ImportLog struct {
	FileName       string    `json:"fileName" bson:"fileName"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
	TotalFetched   int       `json:"totalFetched" bson:"totalFetched"`
	NewJobs        int       `json:"newJobs" bson:"newJobs"`
	UpdatedJobs    int       `json:"updatedJobs" bson:"updatedJobs"`
	FailedJobs     int       `json:"failedJobs" bson:"failedJobs"`
	FailureReasons []string  `json:"failureReasons" bson:"failureReasons"`
}

// ImportDelta is an additive set of counters merged into an ImportLog entry.
type ImportDelta struct {
	TotalFetched   int
	NewJobs        int
	UpdatedJobs    int
	FailedJobs     int
	FailureReasons []string
}

// IsZero reports whether the delta carries nothing to merge.
func (d ImportDelta) IsZero() bool {
	return d.TotalFetched == 0 && d.NewJobs == 0 && d.UpdatedJobs == 0 &&
		d.FailedJobs == 0 && len(d.FailureReasons) == 0
}

// Pagination describes one page of the import-log listing.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}
