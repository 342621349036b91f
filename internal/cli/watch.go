package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/cortexidx/internal/model"
)

const watchDebounce = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for file changes and incrementally reindex",
	Long: `watch performs an initial index, then watches the project tree for
file system events and calls into the manager's files_did_change
operation to incrementally keep the index store up to date, debouncing
bursts of events into a single batched notification.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nStopping watcher...")
		cancel()
	}()

	root, err := projectRoot()
	if err != nil {
		return fmt.Errorf("cli: resolving project root: %w", err)
	}

	reporter := newCLIProgressReporter(quiet)
	d, err := newDaemon(root, reporter.onProgress)
	if err != nil {
		return err
	}
	defer d.Close()

	d.Manager.ScheduleBuildGraphGenerationAndBackgroundIndexAllFiles(nil, true, false)
	if err := d.Manager.WaitForUpToDateIndex(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("cli: initial index failed: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cli: creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := addDirectoriesRecursively(watcher, root); err != nil {
		return fmt.Errorf("cli: watching %s: %w", root, err)
	}

	log.Printf("cli: watching %s for changes", root)
	watchLoop(ctx, watcher, d)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, d *daemon) {
	var debounceTimer *time.Timer
	reindexCh := make(chan struct{}, 1)
	changed := make(map[model.DocumentURI]struct{})

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !shouldProcessEvent(event) {
				continue
			}
			changed[model.DocumentURI(event.Name)] = struct{}{}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addDirectoriesRecursively(watcher, event.Name); err != nil {
						log.Printf("cli: watching new directory %s: %v", event.Name, err)
					}
				}
			}

			if debounceTimer != nil {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case reindexCh <- struct{}{}:
				default:
				}
			})

		case <-reindexCh:
			if len(changed) == 0 {
				continue
			}
			files := make([]model.DocumentURI, 0, len(changed))
			for f := range changed {
				files = append(files, f)
			}
			changed = make(map[model.DocumentURI]struct{})
			d.Manager.FilesDidChange(ctx, files)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("cli: file watcher error: %v", err)
		}
	}
}

func shouldProcessEvent(event fsnotify.Event) bool {
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

func addDirectoriesRecursively(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base == ".git" || base == ".build" || base == "build" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
