package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"textcast/internal/errs"
	"textcast/internal/models"
)

const gitCloneTimeout = 120 * time.Second

var readmeHeading = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// Git shallow-clones a repository into a temporary workspace and
// concatenates its markdown and text files in depth-first lexicographic
// order. An optional subpath narrows the traversal.
func (ig *Ingestor) Git(ctx context.Context, repoURL, subpath string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, gitCloneTimeout)
	defer cancel()

	workdir, err := os.MkdirTemp("", "textcast-git-*")
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, err, "could not create clone workspace")
	}
	defer os.RemoveAll(workdir)

	_, err = git.PlainCloneContext(ctx, workdir, false, &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, errs.E(errs.KindTimeout, "cloning %q timed out after %s", repoURL, gitCloneTimeout)
		}
		return Result{}, errs.Wrap(errs.KindFetchFailed, err, "could not clone %q", repoURL)
	}

	root := workdir
	if subpath != "" {
		clean := filepath.Clean(subpath)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return Result{}, errs.E(errs.KindFetchFailed, "invalid subpath %q", subpath)
		}
		root = filepath.Join(workdir, clean)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return Result{}, errs.E(errs.KindNotFound, "subpath %q not found in repository", subpath)
		}
	}

	type repoFile struct {
		path    string
		content string
	}
	var files []repoFile
	total := 0

	// WalkDir visits entries in lexical order, which gives the stable
	// depth-first traversal the chunk plan depends on.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !allowedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(workdir, path)
		if err != nil {
			return err
		}

		content := strings.ToValidUTF8(string(data), "�")
		total += len(content)
		if total > MaxContentBytes {
			return errs.E(errs.KindTooLarge,
				"repository content exceeds %d bytes; try a specific subdirectory", MaxContentBytes)
		}
		files = append(files, repoFile{path: filepath.ToSlash(rel), content: content})
		return nil
	})
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return Result{}, e
		}
		return Result{}, errs.Wrap(errs.KindFetchFailed, err, "could not read repository files")
	}

	if len(files) == 0 {
		return Result{}, errs.E(errs.KindEmptyContent, "no text files found in repository")
	}

	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "\n\n## File: %s\n\n", f.path)
		b.WriteString(f.content)
	}

	title := ""
	for _, f := range files {
		if strings.EqualFold(filepath.Base(f.path), "readme.md") {
			if m := readmeHeading.FindStringSubmatch(f.content); m != nil {
				title = cleanTitle(truncate(m[1], 100))
			}
			break
		}
	}
	if title == "" {
		title = repoNameFromURL(repoURL)
	}

	ig.log.Info("ingested git repository",
		zap.String("url", repoURL), zap.Int("files", len(files)), zap.Int("bytes", total))

	u := repoURL
	return Result{
		Title:       title,
		RawText:     strings.TrimSpace(b.String()),
		SourceType:  models.SourceTypeGit,
		OriginalURL: &u,
	}, nil
}

func repoNameFromURL(repoURL string) string {
	name := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	words := strings.Fields(name)
	if len(words) == 0 {
		return "Git Repository"
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return truncate(strings.Join(words, " "), 100)
}
