package mirror_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

func TestBuildChangeSet_MapsStatuses(t *testing.T) {
	records, err := mirror.BuildChangeSet([]mirror.RawFile{
		{Filename: "a.txt", Status: "added", SHA: "sha-a"},
		{Filename: "b.txt", Status: "modified", SHA: "sha-b"},
		{Filename: "c.txt", Status: "removed", SHA: "sha-c"},
		{Filename: "new.md", PreviousFilename: "old.md", Status: "renamed", SHA: "sha-n"},
		{Filename: "copy.txt", Status: "copied", SHA: "sha-copy"},
		{Filename: "link", Status: "changed", SHA: "sha-link"},
	})
	require.NoError(t, err)
	assert.Equal(t, []mirror.ChangeRecord{
		{Path: "a.txt", Kind: mirror.ChangeAdded, ContentRef: "sha-a"},
		{Path: "b.txt", Kind: mirror.ChangeModified, ContentRef: "sha-b"},
		{Path: "c.txt", Kind: mirror.ChangeRemoved},
		{Path: "new.md", PreviousPath: "old.md", Kind: mirror.ChangeRenamed, ContentRef: "sha-n"},
		{Path: "copy.txt", Kind: mirror.ChangeAdded, ContentRef: "sha-copy"},
		{Path: "link", Kind: mirror.ChangeModified, ContentRef: "sha-link"},
	}, records)
}

func TestBuildChangeSet_Empty(t *testing.T) {
	_, err := mirror.BuildChangeSet(nil)

	var runErr *mirror.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, mirror.KindEmptyChangeSet, runErr.Kind)
}

func TestBuildChangeSet_RejectsUnknownStatus(t *testing.T) {
	for _, status := range []string{"unchanged", "", "Modified", "deleted"} {
		t.Run(status, func(t *testing.T) {
			_, err := mirror.BuildChangeSet([]mirror.RawFile{
				{Filename: "ok.txt", Status: "added", SHA: "x"},
				{Filename: "weird.txt", Status: status},
			})
			assert.Equal(t, mirror.KindUnrecognizedChangeStatus, mirror.KindOf(err))
		})
	}
}

func TestBuildChangeSet_RenameWithoutPreviousPath(t *testing.T) {
	_, err := mirror.BuildChangeSet([]mirror.RawFile{
		{Filename: "new.md", Status: "renamed", SHA: "x"},
	})
	assert.Equal(t, mirror.KindUnrecognizedChangeStatus, mirror.KindOf(err))
}

func TestBuildChangeSet_MissingFilename(t *testing.T) {
	_, err := mirror.BuildChangeSet([]mirror.RawFile{{Status: "added", SHA: "x"}})
	assert.Equal(t, mirror.KindUnrecognizedChangeStatus, mirror.KindOf(err))
}

func TestBuildChangeSet_PreviousPathOnlyOnRename(t *testing.T) {
	records, err := mirror.BuildChangeSet([]mirror.RawFile{
		{Filename: "a.txt", PreviousFilename: "stale.txt", Status: "modified", SHA: "x"},
	})
	require.NoError(t, err)
	assert.Empty(t, records[0].PreviousPath)
}

func TestTouchedPaths(t *testing.T) {
	paths := mirror.TouchedPaths([]mirror.ChangeRecord{
		{Path: "a", Kind: mirror.ChangeAdded},
		{Path: "b", PreviousPath: "z", Kind: mirror.ChangeRenamed},
	})
	assert.Equal(t, []string{"a", "b"}, paths)
}
