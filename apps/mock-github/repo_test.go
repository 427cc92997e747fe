package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffTrees(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2", "old": "3"}
	head := map[string]string{"a": "1", "b": "9", "new": "3", "c": "4"}

	assert.Equal(t, []FileChange{
		{Filename: "b", Status: "modified", SHA: "9"},
		{Filename: "c", Status: "added", SHA: "4"},
		{Filename: "new", PreviousFilename: "old", Status: "renamed", SHA: "3"},
	}, diffTrees(base, head))
}

func TestDiffTrees_Removal(t *testing.T) {
	assert.Equal(t, []FileChange{{Filename: "a", Status: "removed", SHA: "1"}},
		diffTrees(map[string]string{"a": "1"}, map[string]string{}))
}

func TestSeed_SecondCommitChanges(t *testing.T) {
	s := newRepoStore()
	seedRepos(s)

	head, err := s.get("octo", "site", "HEAD")
	require.NoError(t, err)

	byName := make(map[string]FileChange)
	for _, f := range s.changes("octo", "site", nil, head) {
		byName[f.Filename] = f
	}
	assert.Equal(t, "modified", byName["docs/guide.md"].Status)
	assert.Equal(t, "removed", byName["docs/faq.md"].Status)
	assert.Equal(t, "renamed", byName["README.md"].Status)
	assert.Equal(t, "README", byName["README.md"].PreviousFilename)
	assert.Len(t, byName, 4)
}

func TestGet_AbbreviatedSHA(t *testing.T) {
	s := newRepoStore()
	c := s.commit("octo", "site", "one", map[string]*string{"a": str("x")})

	got, err := s.get("octo", "site", c.SHA[:7])
	require.NoError(t, err)
	assert.Equal(t, c.SHA, got.SHA)

	_, err = s.get("octo", "site", "ffffffffff")
	require.ErrorIs(t, err, errCommitNotFound)
	_, err = s.get("octo", "nope", c.SHA)
	require.ErrorIs(t, err, errRepoNotFound)
}

func TestBlobSHA_MatchesGit(t *testing.T) {
	// git hash-object of "hello\n"
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", blobSHA([]byte("hello\n")))
}

func TestTarball_HoldsTreeUnderRootDir(t *testing.T) {
	s := newRepoStore()
	c := s.commit("octo", "site", "one", map[string]*string{"a.md": str("A"), "docs/b.md": str("B")})

	data, err := s.tarball("octo", "site", c.SHA)
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	root := "octo-site-" + c.SHA[:7] + "/"
	got := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(body)
	}
	assert.Equal(t, map[string]string{root + "a.md": "A", root + "docs/b.md": "B"}, got)

	_, err = s.tarball("octo", "site", "ffffffffff")
	assert.ErrorIs(t, err, errCommitNotFound)
}
