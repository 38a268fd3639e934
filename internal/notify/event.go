package notify

import (
	"encoding/json"
	"strings"
	"time"
)

// Event names published by the satellite.
const (
	BucketCreated   = "bucket:Created"
	BucketRemoved   = "bucket:Removed"
	ObjectCommitted = "object:Created:Upload"
	ObjectAssembled = "object:Created:Multipart"
	ObjectRemoved   = "object:Removed:Delete"
	UploadBegun     = "upload:Begun"
	UploadAborted   = "upload:Aborted"
)

// Event is the JSON document delivered to every backend.
type Event struct {
	Version  string `json:"version"`
	Source   string `json:"source"`
	Time     string `json:"time"`
	Name     string `json:"name"`
	Project  string `json:"project"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key,omitempty"`
	Size     int64  `json:"size,omitempty"`
	StreamID string `json:"stream_id,omitempty"`
	UploadID string `json:"upload_id,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(name, project, bucket, key string) Event {
	return Event{
		Version: "1.0",
		Source:  "vaultuplink",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Name:    name,
		Project: project,
		Bucket:  bucket,
		Key:     key,
	}
}

// peek decodes the routing fields of an encoded event. Backends receive
// payloads, not events, so they look inside for partition keys and subjects.
func peek(payload []byte) (Event, bool) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Name == "" {
		return Event{}, false
	}
	return ev, true
}

// subjectToken turns an event name such as object:Created:Upload into the
// dot-separated form brokers use for wildcards.
func subjectToken(name string) string {
	return strings.ReplaceAll(name, ":", ".")
}
