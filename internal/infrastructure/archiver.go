package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mholt/archives"
	"github.com/yourusername/mediagrab-go/internal/domain"
)

// ZipArchiver implements domain.Archiver with a flat zip of a directory
type ZipArchiver struct {
	format archives.Zip
}

// NewZipArchiver creates a new zip archiver. Media is already compressed, so
// entries with known media extensions are stored rather than deflated.
func NewZipArchiver() *ZipArchiver {
	return &ZipArchiver{format: archives.Zip{SelectiveCompression: true}}
}

// Archive writes every regular file directly inside srcDir to destPath, sorted by
// name with no directory entries. The archive is built at destPath+".part", synced,
// closed and renamed, so destPath only ever holds a complete archive. srcDir is
// never modified.
func (a *ZipArchiver) Archive(ctx context.Context, srcDir, destPath string) (err error) {
	filenames, names, err := collectFlat(srcDir)
	if err != nil {
		return domain.NewJobError(domain.ErrorKindArchive, "", err)
	}
	if len(names) == 0 {
		return domain.NewJobError(domain.ErrorKindArchive, "", fmt.Errorf("no files to archive in %s", srcDir))
	}

	if ctx.Err() != nil {
		return domain.NewJobError(domain.ErrorKindCancelled, "", ctx.Err())
	}

	files, err := archives.FilesFromDisk(ctx, nil, filenames)
	if err != nil {
		return domain.NewJobError(domain.ErrorKindArchive, "", fmt.Errorf("failed to stat archive inputs: %w", err))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].NameInArchive < files[j].NameInArchive })

	partPath := destPath + ".part"
	out, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return domain.NewJobError(domain.ErrorKindArchive, "", fmt.Errorf("failed to create archive: %w", err))
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(partPath)
		}
	}()

	if err = a.format.Archive(ctx, out, files); err != nil {
		return domain.NewJobError(domain.ErrorKindArchive, "", fmt.Errorf("failed to write archive: %w", err))
	}
	if err = out.Sync(); err != nil {
		return domain.NewJobError(domain.ErrorKindArchive, "", fmt.Errorf("failed to sync archive: %w", err))
	}
	if err = out.Close(); err != nil {
		os.Remove(partPath)
		return domain.NewJobError(domain.ErrorKindArchive, "", fmt.Errorf("failed to close archive: %w", err))
	}
	if err = os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return domain.NewJobError(domain.ErrorKindArchive, "", fmt.Errorf("failed to finalize archive: %w", err))
	}
	return nil
}

// collectFlat maps each regular file of dir to its base name
func collectFlat(dir string) (map[string]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	filenames := make(map[string]string, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		filenames[filepath.Join(dir, e.Name())] = e.Name()
		names = append(names, e.Name())
	}
	return filenames, names, nil
}

var _ domain.Archiver = (*ZipArchiver)(nil)
