package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/hashicorp/go-hclog"
)

var skipDirs = map[string]bool{".git": true, "node_modules": true}

// discoverFiles expands paths into the Solidity files to scan. Explicit file
// arguments are kept whatever their extension, and missing ones are kept too
// so that the read failure shows up in the report.
func discoverFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, root := range paths {
		fi, err := os.Stat(root)
		if err != nil || !fi.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.EqualFold(filepath.Ext(d.Name()), ".sol") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

// changedFiles returns the absolute paths of files the git worktree around
// root reports as added, modified or untracked.
func changedFiles(root string) (map[string]bool, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for rel, st := range status {
		if st.Worktree == git.Deleted || (st.Worktree == git.Unmodified && st.Staging == git.Unmodified) {
			continue
		}
		out[filepath.Join(wt.Filesystem.Root(), filepath.FromSlash(rel))] = true
	}
	return out, nil
}

// deltaFilter keeps the files git reports as changed. Outside a repository
// it falls back to the full file list.
func (e *Engine) deltaFilter(roots, files []string, log hclog.Logger) []string {
	if len(roots) == 0 {
		roots = []string{"."}
	}
	changed := map[string]bool{}
	for _, root := range roots {
		m, err := changedFiles(root)
		if err != nil {
			log.Warn("delta scan unavailable, scanning all files", "root", root, "error", err)
			return files
		}
		for k := range m {
			changed[k] = true
		}
	}
	var out []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		if changed[abs] {
			out = append(out, f)
		}
	}
	log.Debug("delta scan", "changed", len(out), "total", len(files))
	return out
}
