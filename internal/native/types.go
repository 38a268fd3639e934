package native

// The structs below mirror the library's C ABI: times are Unix seconds,
// zero means unset, and every call returns a result carrying either a
// payload or an *Error.

type Config struct {
	UserAgent         string
	DialTimeoutMillis int32
	TempDirectory     string
}

type Permission struct {
	AllowDownload bool
	AllowUpload   bool
	AllowList     bool
	AllowDelete   bool
	NotBefore     int64
	NotAfter      int64
}

type SharePrefix struct {
	Bucket string
	Prefix string
}

type Bucket struct {
	Name    string
	Created int64
}

type SystemMetadata struct {
	Created       int64
	Expires       int64
	ContentLength int64
}

type CustomMetadataEntry struct {
	Key   string
	Value string
}

type CustomMetadata struct {
	Entries []CustomMetadataEntry
}

type Object struct {
	Key      string
	IsPrefix bool
	System   SystemMetadata
	Custom   CustomMetadata
}

type UploadOptions struct {
	Expires int64
}

// DownloadOptions selects a byte range; a negative Length reads to the end.
type DownloadOptions struct {
	Offset int64
	Length int64
}

type ListBucketsOptions struct {
	Cursor string
}

type ListObjectsOptions struct {
	Prefix    string
	Cursor    string
	Recursive bool
	System    bool
	Custom    bool
}

type ListUploadsOptions struct {
	Prefix    string
	Cursor    string
	Recursive bool
	System    bool
	Custom    bool
}

type ListUploadPartsOptions struct {
	Cursor uint32
}

type UploadInfo struct {
	UploadID string
	Key      string
	IsPrefix bool
	System   SystemMetadata
	Custom   CustomMetadata
}

type Part struct {
	PartNumber uint32
	Size       int64
	Modified   int64
	ETag       string
}

type CommitUploadOptions struct {
	CustomMetadata CustomMetadata
}

type AccessResult struct {
	Access Handle
	Error  *Error
}

type ProjectResult struct {
	Project Handle
	Error   *Error
}

type StringResult struct {
	String string
	Error  *Error
}

type BucketResult struct {
	Bucket *Bucket
	Error  *Error
}

type ObjectResult struct {
	Object *Object
	Error  *Error
}

type UploadResult struct {
	Upload Handle
	Error  *Error
}

type DownloadResult struct {
	Download Handle
	Error    *Error
}

type WriteResult struct {
	BytesWritten int
	Error        *Error
}

type ReadResult struct {
	BytesRead int
	Error     *Error
}

type UploadInfoResult struct {
	Info  *UploadInfo
	Error *Error
}

type CommitUploadResult struct {
	Object *Object
	Error  *Error
}

type PartUploadResult struct {
	PartUpload Handle
	Error      *Error
}

type PartResult struct {
	Part  *Part
	Error *Error
}
