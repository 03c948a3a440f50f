package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rileyhilliard/loadwatch/internal/errors"
)

const (
	serversName    = "servers"
	thresholdsName = "thresholds"

	// corruptSuffix is appended to a blob that failed to parse before it
	// can be overwritten.
	corruptSuffix = ".corrupt"
)

// FileGateway keeps each blob in its own file under Dir.
type FileGateway struct {
	Dir   string
	codec Codec

	mu         sync.Mutex
	unreadable map[string]bool // paths that failed to parse at the last Load
}

// NewFileGateway returns a gateway writing blobs in the given format.
func NewFileGateway(dir, format string) (*FileGateway, error) {
	codec, err := CodecFor(format)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Unknown state format",
			"Set state.format to yaml or toml")
	}
	if dir == "" {
		return nil, errors.New(errors.ErrConfig,
			"State directory is empty",
			"Set state.dir in loadwatch.yaml")
	}
	return &FileGateway{Dir: dir, codec: codec, unreadable: make(map[string]bool)}, nil
}

// ServersPath is where server credentials are written.
func (g *FileGateway) ServersPath() string {
	return filepath.Join(g.Dir, serversName+g.codec.Ext())
}

// ThresholdsPath is where thresholds are written.
func (g *FileGateway) ThresholdsPath() string {
	return filepath.Join(g.Dir, thresholdsName+g.codec.Ext())
}

// Load reads both blobs. A missing file reads as empty. Each blob is read
// on its own: when one can't be parsed the other is still returned,
// together with the error, and the next Save moves the broken file aside
// before writing.
func (g *FileGateway) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	var firstErr error

	var servers serversBlob
	if err := g.read(g.ServersPath(), &servers); err != nil {
		firstErr = err
	} else {
		snap.Servers = servers.Servers
	}

	var thresholds thresholdsBlob
	if err := g.read(g.ThresholdsPath(), &thresholds); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		snap.Thresholds = thresholds.Thresholds
	}

	return snap, firstErr
}

// Save writes both blobs, each atomically.
func (g *FileGateway) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil {
		snap = &Snapshot{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.write(g.ServersPath(), serversBlob{Version: SchemaVersion, Servers: snap.Servers}); err != nil {
		return err
	}
	return g.write(g.ThresholdsPath(), thresholdsBlob{Version: SchemaVersion, Thresholds: snap.Thresholds})
}

// Close is a no-op for files.
func (g *FileGateway) Close() error { return nil }

func (g *FileGateway) read(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't read %s", path),
			"Check the file permissions on the state directory")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.codec.Unmarshal(data, v); err != nil {
		g.unreadable[path] = true
		return errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't parse %s", path),
			fmt.Sprintf("The file isn't valid %s. Fix it, or it is moved to %s at the next save",
				g.codec.Name(), filepath.Base(path)+corruptSuffix))
	}
	delete(g.unreadable, path)
	return nil
}

// write must be called with g.mu held.
func (g *FileGateway) write(path string, v any) error {
	if g.unreadable[path] {
		if err := os.Rename(path, path+corruptSuffix); err != nil && !os.IsNotExist(err) {
			return errors.WrapWithCode(err, errors.ErrPersist,
				fmt.Sprintf("Couldn't move the unreadable %s aside", path),
				"Move it away by hand, then retry")
		}
		delete(g.unreadable, path)
	}

	data, err := g.codec.Marshal(v)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't encode %s", filepath.Base(path)), "")
	}
	if err := writeFileAtomic(path, data); err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't write %s", path),
			"Check that the state directory exists and is writable")
	}
	return nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
