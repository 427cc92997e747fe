package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha1" //nolint:gosec // git object ids are sha1
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	errRepoNotFound   = errors.New("repository not found")
	errCommitNotFound = errors.New("commit not found")
)

// Commit is one snapshot of a repository's tree.
type Commit struct {
	SHA     string
	Parent  string
	Message string
	Time    time.Time
	Tree    map[string]string // path -> blob sha
}

// FileChange is a file entry in GitHub's commit and compare responses.
type FileChange struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename,omitempty"`
	Status           string `json:"status"`
	SHA              string `json:"sha"`
}

// repoStore holds repositories as linear commit histories.
type repoStore struct {
	mu      sync.RWMutex
	commits map[string]map[string]*Commit // "owner/repo" -> sha -> commit
	heads   map[string]string             // "owner/repo" -> head sha
	order   map[string][]string           // "owner/repo" -> shas, oldest first
	blobs   map[string][]byte             // blob sha -> content
}

func newRepoStore() *repoStore {
	return &repoStore{
		commits: make(map[string]map[string]*Commit),
		heads:   make(map[string]string),
		order:   make(map[string][]string),
		blobs:   make(map[string][]byte),
	}
}

// commit applies changes on top of the repository head. A nil value deletes
// the path.
func (s *repoStore) commit(owner, repo, message string, changes map[string]*string) *Commit {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := owner + "/" + repo
	if s.commits[key] == nil {
		s.commits[key] = make(map[string]*Commit)
	}

	parent := s.heads[key]
	tree := make(map[string]string)
	if p := s.commits[key][parent]; p != nil {
		for path, blob := range p.Tree {
			tree[path] = blob
		}
	}
	for path, content := range changes {
		if content == nil {
			delete(tree, path)
			continue
		}
		blob := blobSHA([]byte(*content))
		s.blobs[blob] = []byte(*content)
		tree[path] = blob
	}

	c := &Commit{
		Parent:  parent,
		Message: message,
		Time:    time.Now().UTC(),
		Tree:    tree,
	}
	c.SHA = commitSHA(c)
	s.commits[key][c.SHA] = c
	s.heads[key] = c.SHA
	s.order[key] = append(s.order[key], c.SHA)
	return c
}

func (s *repoStore) get(owner, repo, sha string) (*Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	commits, ok := s.commits[owner+"/"+repo]
	if !ok {
		return nil, errRepoNotFound
	}
	if sha == "HEAD" || sha == "main" {
		sha = s.heads[owner+"/"+repo]
	}
	if c, ok := commits[sha]; ok {
		return c, nil
	}
	// Abbreviated SHAs resolve when unambiguous.
	var found *Commit
	for full, c := range commits {
		if strings.HasPrefix(full, sha) {
			if found != nil {
				return nil, fmt.Errorf("ambiguous sha %q", sha)
			}
			found = c
		}
	}
	if found == nil {
		return nil, errCommitNotFound
	}
	return found, nil
}

// changes returns the files that differ between base and head. A nil base
// means the empty tree.
func (s *repoStore) changes(owner, repo string, base, head *Commit) []FileChange {
	var baseTree map[string]string
	if base != nil {
		baseTree = base.Tree
	} else if head.Parent != "" {
		if p, err := s.get(owner, repo, head.Parent); err == nil {
			baseTree = p.Tree
		}
	}
	return diffTrees(baseTree, head.Tree)
}

func (s *repoStore) blob(sha string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[sha]
	return b, ok
}

func (s *repoStore) history() map[string][]*Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]*Commit, len(s.order))
	for key, shas := range s.order {
		for i := len(shas) - 1; i >= 0; i-- {
			out[key] = append(out[key], s.commits[key][shas[i]])
		}
	}
	return out
}

// tarball packs the tree of owner/repo at sha into a gzipped tar whose entries
// sit under a single "<owner>-<repo>-<short sha>/" directory, as GitHub lays
// out repository archives.
func (s *repoStore) tarball(owner, repo, sha string) ([]byte, error) {
	c, err := s.get(owner, repo, sha)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(c.Tree))
	for p := range c.Tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	root := fmt.Sprintf("%s-%s-%s/", owner, repo, c.SHA[:min(7, len(c.SHA))])
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, p := range paths {
		content, _ := s.blob(c.Tree[p])
		hdr := &tar.Header{Name: root + p, Mode: 0o644, Size: int64(len(content)), ModTime: c.Time}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("tar header %s: %w", p, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("tar entry %s: %w", p, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// diffTrees reports additions, modifications and removals, pairing a removed
// and an added path with the same blob as a rename.
func diffTrees(base, head map[string]string) []FileChange {
	var added, removed []string
	var out []FileChange
	for path, blob := range head {
		prev, ok := base[path]
		switch {
		case !ok:
			added = append(added, path)
		case prev != blob:
			out = append(out, FileChange{Filename: path, Status: "modified", SHA: blob})
		}
	}
	for path := range base {
		if _, ok := head[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	renamedFrom := make(map[string]bool)
	for _, path := range added {
		blob := head[path]
		change := FileChange{Filename: path, Status: "added", SHA: blob}
		for _, old := range removed {
			if !renamedFrom[old] && base[old] == blob {
				renamedFrom[old] = true
				change.Status = "renamed"
				change.PreviousFilename = old
				break
			}
		}
		out = append(out, change)
	}
	for _, path := range removed {
		if !renamedFrom[path] {
			out = append(out, FileChange{Filename: path, Status: "removed", SHA: base[path]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

func blobSHA(content []byte) string {
	h := sha1.New() //nolint:gosec // git object ids are sha1
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func commitSHA(c *Commit) string {
	paths := make([]string, 0, len(c.Tree))
	for p := range c.Tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	h := sha1.New() //nolint:gosec // git object ids are sha1
	fmt.Fprintf(h, "parent %s\n%s\n%d\n", c.Parent, c.Message, c.Time.UnixNano())
	for _, p := range paths {
		fmt.Fprintf(h, "%s %s\n", c.Tree[p], p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
