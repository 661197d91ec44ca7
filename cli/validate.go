package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/pushpull/logging"
	"go.viam.com/pushpull/scene"
)

// ValidateAction is the corresponding action for 'validate'.
func ValidateAction(c *cli.Context) error {
	logger, done := newLogger(c)
	defer done()
	path := c.String(sceneFlagPath)
	if !c.Bool(validateFlagWatch) {
		cfg, err := scene.Read(path, logger)
		if err != nil {
			return err
		}
		printValid(c.App.Writer, cfg)
		return nil
	}
	return watchScene(c.Context, path, logger, func(cfg *scene.Config, err error) {
		if err != nil {
			printf(c.App.ErrWriter, "%v", err)
			return
		}
		printValid(c.App.Writer, cfg)
	})
}

func printValid(w io.Writer, cfg *scene.Config) {
	printf(w, "%s is valid: %d transforms, %d curves, %d constraints",
		cfg.FilePath, len(cfg.Transforms), len(cfg.Curves), len(cfg.Constraints))
}

// watchScene reads the scene once, then again every time the file is written or replaced, passing
// each result to report. It returns once ctx is done.
func watchScene(
	ctx context.Context,
	path string,
	logger logging.Logger,
	report func(*scene.Config, error),
) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Warnw("closing scene watcher", "error", err)
		}
	}()
	// editors often replace the file rather than write it, so watch the directory
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watching %q", path)
	}
	report(scene.Read(path, logger))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debugw("scene changed", "path", path, "op", event.Op.String())
			report(scene.Read(path, logger))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watching scene", "path", path, "error", err)
		}
	}
}
