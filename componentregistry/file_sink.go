package componentregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/registry"
	"github.com/c360/zoneagent/subscriber"
	"github.com/c360/zoneagent/types"
)

// FileSinkConfig holds the options of the jsonl subscriber
type FileSinkConfig struct {
	// Directory defaults to the agent work directory
	Directory  string `mapstructure:"directory"`
	FilePrefix string `mapstructure:"file_prefix"`
	Append     bool   `mapstructure:"append"`
	BufferSize int    `mapstructure:"buffer_size"`
	// FlushInterval bounds how long a record stays buffered. Zero disables
	// periodic flushing.
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Validate checks the configuration for errors
func (c *FileSinkConfig) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FileSinkConfig", "Validate", "directory is required")
	}
	if c.FilePrefix == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FileSinkConfig", "Validate", "file_prefix is required")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FileSinkConfig", "Validate",
			"buffer_size cannot be negative")
	}
	if c.FlushInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FileSinkConfig", "Validate",
			"flush_interval cannot be negative")
	}
	return nil
}

// Record is one line of the output file
type Record struct {
	Kind        string         `json:"kind"`
	Zone        string         `json:"zone"`
	Action      message.Action `json:"action,omitempty"`
	Object      message.Object `json:"object"`
	MessageID   string         `json:"message_id,omitempty"`
	SourceAgent string         `json:"source_agent,omitempty"`
	Consumer    string         `json:"consumer"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// FileSink appends every record it is handed to a JSON Lines file. The file
// is opened on the first record; writes are buffered and flushed when the
// buffer fills, periodically, and on Finalize.
type FileSink struct {
	path          string
	append        bool
	bufferSize    int
	flushInterval time.Duration
	logger        *slog.Logger

	file   *os.File
	fileMu sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex

	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	written atomic.Int64
	errors  atomic.Int64
}

// NewFileSink is the registry factory of the jsonl subscriber
func NewFileSink(cfg config.SubscriberConfig, deps registry.Dependencies) (subscriber.Handler, error) {
	opts := FileSinkConfig{
		FilePrefix:    cfg.ID,
		Append:        true,
		BufferSize:    100,
		FlushInterval: time.Second,
	}
	if deps.Agent != nil {
		opts.Directory = deps.Agent.WorkDir
	}
	if err := decodeOptions("FileSink", cfg.Options, &opts); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = 1
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(opts.Directory, fmt.Sprintf("%s.jsonl", opts.FilePrefix))

	return &FileSink{
		path:          path,
		append:        opts.Append,
		bufferSize:    opts.BufferSize,
		flushInterval: opts.FlushInterval,
		logger:        logger.With("subscriber", cfg.ID, "file", path),
		buffer:        make([][]byte, 0, opts.BufferSize),
		shutdown:      make(chan struct{}),
	}, nil
}

// Path returns the output file
func (f *FileSink) Path() string {
	return f.path
}

// Written returns the number of records written to the file
func (f *FileSink) Written() int64 {
	return f.written.Load()
}

func (f *FileSink) open() error {
	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if f.file != nil {
		return nil
	}
	select {
	case <-f.shutdown:
		return errors.WrapInvalid(errors.ErrShuttingDown, "FileSink", "open", "sink finalized")
	default:
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return errors.WrapFatal(err, "FileSink", "open", "create output directory")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if f.append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(f.path, flags, 0644)
	if err != nil {
		return errors.WrapFatal(err, "FileSink", "open", "open output file")
	}
	f.file = file

	if f.flushInterval > 0 {
		f.wg.Add(1)
		go f.flushLoop()
	}
	f.logger.Info("JSON Lines output opened", "append", f.append, "buffer_size", f.bufferSize)
	return nil
}

func (f *FileSink) write(ctx context.Context, rec Record) error {
	if err := f.open(); err != nil {
		f.errors.Add(1)
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		f.errors.Add(1)
		return errors.WrapInvalid(err, "FileSink", "write", "encode record")
	}

	f.bufferMu.Lock()
	f.buffer = append(f.buffer, line)
	shouldFlush := len(f.buffer) >= f.bufferSize
	f.bufferMu.Unlock()

	if shouldFlush && ctx.Err() == nil {
		return f.flush()
	}
	return nil
}

func (f *FileSink) flushLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.shutdown:
			return
		case <-ticker.C:
			if err := f.flush(); err != nil {
				f.logger.Error("Periodic flush failed", "error", err)
			}
		}
	}
}

// flush writes buffered records to the file
func (f *FileSink) flush() error {
	f.bufferMu.Lock()
	if len(f.buffer) == 0 {
		f.bufferMu.Unlock()
		return nil
	}
	lines := f.buffer
	f.buffer = make([][]byte, 0, f.bufferSize)
	f.bufferMu.Unlock()

	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if f.file == nil {
		f.errors.Add(int64(len(lines)))
		return errors.WrapInvalid(fmt.Errorf("%d records lost", len(lines)), "FileSink", "flush", "file not open")
	}

	for i, line := range lines {
		if _, err := f.file.Write(append(line, '\n')); err != nil {
			f.errors.Add(int64(len(lines) - i))
			return errors.WrapTransient(err, "FileSink", "flush", "write records")
		}
		f.written.Add(1)
	}
	return nil
}

// ProcessEvent implements subscriber.Handler
func (f *FileSink) ProcessEvent(ctx context.Context, event message.Event, zone types.Zone, info mapping.Info, consumerID string) error {
	return f.write(ctx, Record{
		Kind:        message.KindEvent.String(),
		Zone:        zone.ID,
		Action:      event.Action,
		Object:      event.Object,
		MessageID:   info.Message.MessageID,
		SourceAgent: info.Message.SourceAgent,
		Consumer:    consumerID,
		ReceivedAt:  time.Now().UTC(),
	})
}

// ProcessResponse implements subscriber.Handler
func (f *FileSink) ProcessResponse(ctx context.Context, obj message.Object, zone types.Zone, info mapping.Info, consumerID string) error {
	return f.write(ctx, Record{
		Kind:        message.KindQueryResult.String(),
		Zone:        zone.ID,
		Object:      obj,
		MessageID:   info.Message.MessageID,
		SourceAgent: info.Message.SourceAgent,
		Consumer:    consumerID,
		ReceivedAt:  time.Now().UTC(),
	})
}

// Finalize flushes remaining records and closes the file
func (f *FileSink) Finalize() {
	f.closeOnce.Do(func() {
		close(f.shutdown)
		f.wg.Wait()

		if err := f.flush(); err != nil {
			f.logger.Error("Final flush failed", "error", err)
		}

		f.fileMu.Lock()
		if f.file != nil {
			if err := f.file.Close(); err != nil {
				f.logger.Warn("Failed to close output file", "error", err)
			}
			f.file = nil
		}
		f.fileMu.Unlock()

		f.logger.Info("JSON Lines output closed",
			"written", f.written.Load(),
			"errors", f.errors.Load())
	})
}
