package eventlog

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hiveplane/hive/internal/errors"
)

// Follow streams a session's events as they are appended. Existing events
// are delivered first, then the log file is watched for growth. The channel
// is closed when ctx is canceled or the log file is removed.
//
// The watcher keys on the directory rather than the file so a log created
// after Follow starts is still picked up.
func (l *Log) Follow(ctx context.Context, sessionID string) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapCause(errors.ErrIO, err, "creating watcher")
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return nil, errors.WrapCause(errors.ErrIO, err, "watching %s", l.dir)
	}

	out := make(chan Event, 16)
	path := l.Path(sessionID)

	go func() {
		defer close(out)
		defer watcher.Close()

		var offset int64
		offset = l.drainFrom(ctx, path, offset, out)

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
					return
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
					offset = l.drainFrom(ctx, path, offset, out)
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Watcher hiccups are recoverable; poll once and continue.
				time.Sleep(50 * time.Millisecond)
				offset = l.drainFrom(ctx, path, offset, out)
			}
		}
	}()

	return out, nil
}

// drainFrom reads records starting at offset and sends them on out,
// returning the new offset. Partial trailing lines are not consumed: the
// append contract guarantees a writer never leaves one for long, and the
// next write event retries from the same offset.
func (l *Log) drainFrom(ctx context.Context, path string, offset int64, out chan<- Event) int64 {
	f, err := os.Open(path)
	if err != nil {
		return offset
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}

	events, consumed, err := decodeEvents(f)
	if err != nil {
		return offset
	}
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return offset + consumed
		}
	}
	return offset + consumed
}
