package types

import "time"

// Descriptor is one cached resource record from the client's database.
// Several descriptors can share ResourceName and OriginalFilename; those are
// versions of the same logical resource.
type Descriptor struct {
	From             string // Remote url the resource was downloaded from
	Filename         string // Blob name inside the cache directory
	OriginalFilename string
	ResourceName     string
	Hash             string
	Key              [32]byte
	IV               [8]byte
}

// Version pairs a descriptor with the blob it points at.
type Version struct {
	Descriptor Descriptor
	BlobPath   string
	ModTime    time.Time
}

// ArchiveFile is a leaf of a flattened archive. Path is slash-joined.
type ArchiveFile struct {
	Path string
	Data []byte
}

// Chunk represents a content-defined piece of a file's data.
type Chunk struct {
	Digest string
	Size   int64
	Data   []byte
}

// ResourceStatus is the outcome of one resource in a decode or encode run.
type ResourceStatus string

const (
	StatusExtracted   ResourceStatus = "extracted"
	StatusSkipped     ResourceStatus = "skipped"
	StatusUnchanged   ResourceStatus = "unchanged"
	StatusChanged     ResourceStatus = "changed" // modified on disk, blob left alone (dry run)
	StatusOverwritten ResourceStatus = "overwritten"
	StatusFailed      ResourceStatus = "failed"
)

// FileChange describes a modified file inside an extracted archive.
type FileChange struct {
	Path          string
	ChangedChunks int
	TotalChunks   int
}

// ResourceReport is the outcome of processing one resource version.
type ResourceReport struct {
	ResourceName     string
	OriginalFilename string
	Blob             string
	ModTime          time.Time
	Status           ResourceStatus
	Reason           string
	OutputPath       string
	Files            int

	// Only set by resync of archive resources.
	Changed []FileChange
	New     []string
	Removed []string
}
