package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/theirongolddev/costledger/internal/ingest"
)

// ScanDir walks dir and returns every .txt checkpoint file, oldest first so
// replaying them reproduces capture order. A missing dir yields no files.
func ScanDir(dir string) ([]CheckpointFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var files []CheckpointFile

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsCheckpointName(d.Name()) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // raced with a delete
		}
		files = append(files, CheckpointFile{
			Path:      path,
			Name:      d.Name(),
			SessionID: string(ingest.SessionIDFromSource(d.Name())),
			ModTime:   fi.ModTime(),
			Size:      fi.Size(),
		})
		return nil
	})

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Path < files[j].Path
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, err
}

// IsCheckpointName reports whether a file name looks like a captured
// checkpoint. Temp files from atomic writers are skipped.
func IsCheckpointName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".txt")
}
