package mirror

import (
	"errors"
	"fmt"
)

// statusKinds maps GitHub commit file statuses to change kinds. A copy lands
// new content at its path and a type change rewrites it, so both are
// reconciled like their plain counterparts.
var statusKinds = map[string]ChangeKind{
	"added":    ChangeAdded,
	"copied":   ChangeAdded,
	"modified": ChangeModified,
	"changed":  ChangeModified,
	"removed":  ChangeRemoved,
	"renamed":  ChangeRenamed,
}

// BuildChangeSet normalizes a commit's raw file list into change records.
// An empty list fails with KindEmptyChangeSet; any status outside statusKinds
// fails the whole set with KindUnrecognizedChangeStatus.
func BuildChangeSet(raw []RawFile) ([]ChangeRecord, error) {
	if len(raw) == 0 {
		return nil, &RunError{Kind: KindEmptyChangeSet, Err: errors.New("commit has no changed files")}
	}

	records := make([]ChangeRecord, 0, len(raw))
	for _, f := range raw {
		if f.Filename == "" {
			return nil, &RunError{Kind: KindUnrecognizedChangeStatus, Err: fmt.Errorf("file entry with status %q has no path", f.Status)}
		}
		kind, ok := statusKinds[f.Status]
		if !ok {
			return nil, &RunError{Kind: KindUnrecognizedChangeStatus, Err: fmt.Errorf("%s: unrecognized status %q", f.Filename, f.Status)}
		}

		rec := ChangeRecord{Path: f.Filename, Kind: kind}
		switch kind {
		case ChangeRenamed:
			if f.PreviousFilename == "" {
				return nil, &RunError{Kind: KindUnrecognizedChangeStatus, Err: fmt.Errorf("%s: renamed without a previous path", f.Filename)}
			}
			rec.PreviousPath = f.PreviousFilename
			rec.ContentRef = f.SHA
		case ChangeRemoved:
		default:
			rec.ContentRef = f.SHA
		}
		records = append(records, rec)
	}
	return records, nil
}

// TouchedPaths returns the final path of every record.
func TouchedPaths(records []ChangeRecord) []string {
	paths := make([]string, 0, len(records))
	for _, r := range records {
		paths = append(paths, r.Path)
	}
	return paths
}
