package native

import (
	"time"

	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/satellite"
)

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func bucketToC(b *satellite.Bucket) *Bucket {
	return &Bucket{Name: b.Name, Created: unixOrZero(b.Created)}
}

func systemToC(s satellite.SystemMetadata) SystemMetadata {
	return SystemMetadata{
		Created:       unixOrZero(s.Created),
		Expires:       unixOrZero(s.Expires),
		ContentLength: s.ContentLength,
	}
}

func customToC(entries []metadata.MetaEntry) CustomMetadata {
	if len(entries) == 0 {
		return CustomMetadata{}
	}
	out := CustomMetadata{Entries: make([]CustomMetadataEntry, len(entries))}
	for i, e := range entries {
		out.Entries[i] = CustomMetadataEntry{Key: e.Key, Value: e.Value}
	}
	return out
}

func customFromC(c CustomMetadata) []metadata.MetaEntry {
	if len(c.Entries) == 0 {
		return nil
	}
	out := make([]metadata.MetaEntry, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = metadata.MetaEntry{Key: e.Key, Value: e.Value}
	}
	return out
}

func objectToC(o *satellite.Object) *Object {
	return &Object{
		Key:      o.Key,
		IsPrefix: o.IsPrefix,
		System:   systemToC(o.System),
		Custom:   customToC(o.Custom),
	}
}

func uploadInfoToC(u *satellite.UploadInfo) *UploadInfo {
	return &UploadInfo{
		UploadID: u.UploadID,
		Key:      u.Key,
		IsPrefix: u.IsPrefix,
		System:   systemToC(u.System),
		Custom:   customToC(u.Custom),
	}
}

func partToC(p *satellite.Part) *Part {
	return &Part{
		PartNumber: uint32(p.PartNumber),
		Size:       p.Size,
		Modified:   unixOrZero(p.Modified),
		ETag:       p.ETag,
	}
}

func permissionFromC(p Permission) satellite.Permission {
	return satellite.Permission{
		AllowDownload: p.AllowDownload,
		AllowUpload:   p.AllowUpload,
		AllowList:     p.AllowList,
		AllowDelete:   p.AllowDelete,
		NotBefore:     timeOrZero(p.NotBefore),
		NotAfter:      timeOrZero(p.NotAfter),
	}
}
