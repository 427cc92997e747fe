package mirror

import "context"

// BlobFetcher retrieves the bytes of one file at one commit.
// Implementations must be safe for concurrent use.
type BlobFetcher interface {
	Fetch(ctx context.Context, commit CommitContext, rec ChangeRecord) ([]byte, error)
}

// ArchiveFetcher downloads a gzipped tarball of the repository at a commit.
type ArchiveFetcher interface {
	Archive(ctx context.Context, commit CommitContext) ([]byte, error)
}

// ChangeLister returns the raw file list of the change a CommitContext names.
type ChangeLister interface {
	ChangedFiles(ctx context.Context, commit CommitContext) ([]RawFile, error)
}

// StorageGateway writes and deletes objects in the destination store.
// Put fully replaces an existing object; Delete of an absent key succeeds.
type StorageGateway interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// CredentialProvider supplies the access token for the source repository.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// DeliveryGuard reports whether an event delivery ID is seen for the first time.
// Release drops a claim so a redelivery of a run that failed is processed again.
type DeliveryGuard interface {
	FirstDelivery(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

// Run listing bounds shared by every RunStore and the runs API.
const (
	DefaultRunListLimit = 20
	MaxRunListLimit     = 100
)

// ClampRunLimit maps a requested list size onto (0, MaxRunListLimit]. Zero or
// negative sizes fall back to DefaultRunListLimit.
func ClampRunLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRunListLimit
	case limit > MaxRunListLimit:
		return MaxRunListLimit
	}
	return limit
}

// RunStore persists completed runs.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
