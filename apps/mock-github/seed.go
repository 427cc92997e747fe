package main

// seedRepos creates octo/site with a short history covering every change
// status the mirror handles.
func seedRepos(s *repoStore) {
	const owner, repo = "octo", "site"

	s.commit(owner, repo, "Initial site", map[string]*string{
		"index.html":        str(indexHTML),
		"docs/guide.md":     str("# Guide\n\nGetting started.\n"),
		"docs/faq.md":       str("# FAQ\n"),
		"assets/site.css":   str("body { margin: 0; }\n"),
		"assets/logo.png":   str("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"),
		"README":            str("octo site\n"),
		"data/feed.json":    str(`{"items":[]}`),
		"scripts/deploy.sh": str("#!/bin/sh\necho deploy\n"),
	})

	s.commit(owner, repo, "Expand guide, rename README, drop FAQ", map[string]*string{
		"docs/guide.md":  str("# Guide\n\nGetting started.\n\n## Install\n"),
		"README":         nil,
		"README.md":      str("octo site\n"),
		"docs/faq.md":    nil,
		"data/feed.json": str(`{"items":[{"title":"hello"}]}`),
	})
}

func str(s string) *string { return &s }

const indexHTML = `<!doctype html>
<html><head><link rel="stylesheet" href="assets/site.css"></head>
<body><h1>octo</h1></body></html>
`
