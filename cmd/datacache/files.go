package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/agentuity/go-datacache/staleness"
	"github.com/agentuity/go-datacache/sys"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type cacheFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// scan lists every cache file under root, oldest first.
func scan(root string) ([]cacheFile, error) {
	var files []cacheFile
	err := sys.WalkFiles(root, func(path string, info fs.FileInfo) error {
		files = append(files, cacheFile{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// expired returns the files not modified within w of now.
func expired(files []cacheFile, w staleness.Window, now time.Time) []cacheFile {
	var out []cacheFile
	for _, f := range files {
		if !w.Fresh(f.ModTime, now) {
			out = append(out, f)
		}
	}
	return out
}

func printFiles(w io.Writer, root string, files []cacheFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	var total int64
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		if err != nil {
			rel = f.Path
		}
		total += f.Size
		fmt.Fprintf(tw, "%s\t%s\t%s\n", humanize.Bytes(uint64(f.Size)), humanize.Time(f.ModTime), rel)
	}
	tw.Flush()
	fmt.Fprintf(w, "%s files, %s\n", humanize.Comma(int64(len(files))), humanize.Bytes(uint64(total)))
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [root]",
		Short: "List cached files with size and age",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := rootDir(args)
			files, err := scan(root)
			if err != nil {
				return err
			}
			printFiles(cmd.OutOrStdout(), root, files)
			return nil
		},
	}
}

// removeEmptyDirs deletes directories under root left empty, deepest first.
func removeEmptyDirs(root string) {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i])
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge [root]",
		Short: "Delete cached files older than a window",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := rootDir(args)
			olderThan, _ := cmd.Flags().GetString("older-than")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			w, err := staleness.ParseWindow(olderThan)
			if err != nil {
				return err
			}
			if w.IsZero() {
				return errors.New("--older-than must be a non-zero window")
			}
			files, err := scan(root)
			if err != nil {
				return err
			}
			old := expired(files, w, time.Now())
			if dryRun {
				printFiles(cmd.OutOrStdout(), root, old)
				return nil
			}
			var freed int64
			for _, f := range old {
				if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
					a.log.Warn("could not remove %s: %s", f.Path, err)
					continue
				}
				freed += f.Size
			}
			removeEmptyDirs(root)
			a.log.Info("removed %d files older than %s, freed %s", len(old), w, humanize.Bytes(uint64(freed)))
			return nil
		},
	}
	cmd.Flags().String("older-than", "30d", "remove files not modified within this window")
	cmd.Flags().Bool("dry-run", false, "list the files that would be removed")
	return cmd
}
