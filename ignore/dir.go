package ignore

import (
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/go-git/gcfg"
	billy "github.com/go-git/go-billy/v5"
)

const (
	commentPrefix = "#"
	gitDir        = ".git"
	gitignoreFile = ".gitignore"
	gitconfigFile = ".gitconfig"
	systemFile    = "/etc/gitconfig"
)

type gitconfigCore struct {
	Core struct {
		Excludesfile string
	}
}

// ReadPatterns reads a .gitignore file at path (a slice of path
// components, the domain every resulting Pattern is scoped to) and
// recurses into every non-".git" subdirectory, appending their
// patterns in encounter order so nested files can override parents.
func ReadPatterns(fs billy.Filesystem, path []string) ([]Pattern, error) {
	ps, err := readIgnoreFile(fs, path, gitignoreFile)
	if err != nil {
		return nil, err
	}

	dir := fs.Join(path...)
	infos, err := fs.ReadDir(dir)
	if err != nil {
		return ps, nil
	}

	for _, fi := range infos {
		if !fi.IsDir() || fi.Name() == gitDir {
			continue
		}
		subPath := append(append([]string{}, path...), fi.Name())
		sub, err := ReadPatterns(fs, subPath)
		if err != nil {
			return nil, err
		}
		ps = append(ps, sub...)
	}
	return ps, nil
}

// readIgnoreFile parses a single ignore file at path/name, scoping
// every resulting Pattern to path as its domain. A missing file is not
// an error: it simply contributes no patterns.
func readIgnoreFile(fs billy.Filesystem, path []string, name string) ([]Pattern, error) {
	full := fs.Join(append(append([]string{}, path...), name)...)
	f, err := fs.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var ps []Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, commentPrefix) || strings.TrimSpace(line) == "" {
			continue
		}
		ps = append(ps, ParsePattern(line, path))
	}
	return ps, nil
}

// LoadGlobalPatterns reads the current user's ~/.gitconfig for a
// core.excludesfile entry and parses the file it points at, expanding
// a leading "~" or "~user" the way the shell would.
func LoadGlobalPatterns(fs billy.Filesystem) ([]Pattern, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil
	}

	f, err := fs.Open(fs.Join(home, gitconfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var cfg gitconfigCore
	if err := gcfg.ReadStringInto(&cfg, string(data)); err != nil {
		return nil, nil
	}
	if cfg.Core.Excludesfile == "" {
		return nil, nil
	}

	expanded, err := expandHome(cfg.Core.Excludesfile)
	if err != nil {
		return nil, nil
	}

	return readExcludesFile(fs, expanded)
}

// LoadSystemPatterns reads /etc/gitconfig for a core.excludesfile entry
// and parses the file it points at.
func LoadSystemPatterns(fs billy.Filesystem) ([]Pattern, error) {
	f, err := fs.Open(systemFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var cfg gitconfigCore
	if err := gcfg.ReadStringInto(&cfg, string(data)); err != nil {
		return nil, nil
	}
	if cfg.Core.Excludesfile == "" {
		return nil, nil
	}

	return readExcludesFile(fs, cfg.Core.Excludesfile)
}

func readExcludesFile(fs billy.Filesystem, path string) ([]Pattern, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var ps []Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, commentPrefix) || strings.TrimSpace(line) == "" {
			continue
		}
		ps = append(ps, ParsePattern(line, nil))
	}
	return ps, nil
}

// expandHome resolves a leading "~" or "~username" the way a shell
// would, since excludesfile entries are allowed to use either.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	rest := path[1:]
	sep := strings.IndexRune(rest, os.PathSeparator)
	if sep < 0 {
		sep = strings.IndexRune(rest, '/')
	}

	var name, tail string
	if sep < 0 {
		name, tail = rest, ""
	} else {
		name, tail = rest[:sep], rest[sep:]
	}

	var home string
	if name == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		home = h
	} else {
		u, err := user.Lookup(name)
		if err != nil {
			return "", err
		}
		home = u.HomeDir
	}

	return home + tail, nil
}
