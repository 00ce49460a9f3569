package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/shaoyun/cherrynote/internal/utils"
)

const ignoreFileName = ".cherryignore"

var defaultIgnoreLines = []string{
	ignoreFileName,
	"**/*_local",
	"**/*_remote",
	// editors
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// general
	".git",
	"*.tmp",
	"*.log",
	// OS
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList filters paths that never take part in syncing. Rules come from
// built-in defaults plus an optional .cherryignore file in the notes dir.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	il := &IgnoreList{baseDir: baseDir}
	il.Load()
	return il
}

func (il *IgnoreList) Load() {
	lines := append([]string{}, defaultIgnoreLines...)

	ignorePath := filepath.Join(il.baseDir, ignoreFileName)
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					lines = append(lines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	il.ignore = gitignore.CompileIgnoreLines(lines...)
}

func (il *IgnoreList) ShouldIgnore(path string) bool {
	return il.ignore.MatchesPath(path)
}
