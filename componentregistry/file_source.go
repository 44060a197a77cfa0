package componentregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/publisher"
	"github.com/c360/zoneagent/registry"
	"github.com/c360/zoneagent/types"
)

// FileSourceConfig holds the options of the file publisher
type FileSourceConfig struct {
	// Dir defaults to the agent test directory, then its work directory.
	Dir string `mapstructure:"dir"`
	// File defaults to "<object type>.json".
	File string `mapstructure:"file"`
	// Action of the broadcast events. Default change.
	Action string `mapstructure:"action"`
	// KeyField names the data field copied into the object key
	KeyField string `mapstructure:"key_field"`
}

// FileSource publishes the objects of a JSON file holding an array of
// objects. Every broadcast streams the file again and reports each object as
// an event; queries are answered with the objects that match.
type FileSource struct {
	objectType string
	path       string
	action     message.Action
	keyField   string
	logger     *slog.Logger

	mu        sync.Mutex
	finalized bool
}

// NewFileSource is the registry factory of the file publisher
func NewFileSource(cfg config.PublisherConfig, deps registry.Dependencies) (publisher.Source, error) {
	opts := FileSourceConfig{Action: string(message.ActionChange), KeyField: "RefId"}
	if err := decodeOptions("FileSource", cfg.Options, &opts); err != nil {
		return nil, err
	}

	action, err := message.ParseAction(opts.Action)
	if err != nil {
		return nil, errors.WrapInvalid(err, "FileSource", "New", "action option")
	}

	dir := opts.Dir
	if dir == "" && deps.Agent != nil {
		dir = deps.Agent.TestDir
		if dir == "" {
			dir = deps.Agent.WorkDir
		}
	}
	name := opts.File
	if name == "" {
		name = cfg.ObjectType + ".json"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FileSource{
		objectType: cfg.ObjectType,
		path:       filepath.Join(dir, name),
		action:     action,
		keyField:   opts.KeyField,
		logger:     logger.With("publisher", cfg.ID, "file", filepath.Join(dir, name)),
	}, nil
}

// Path returns the file the source reads
func (s *FileSource) Path() string {
	return s.path
}

// open positions a decoder inside the file's top-level array. A missing file
// yields a nil stream.
func (s *FileSource) open(logger *slog.Logger, mc *mapping.Context, accept func(message.Object) bool) (*objectStream, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Object file does not exist, nothing to publish")
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "FileSource", "open", "open object file")
	}

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err == nil && tok != json.Delim('[') {
		err = fmt.Errorf("expected a JSON array, found %v", tok)
	}
	if err != nil {
		f.Close()
		return nil, errors.WrapInvalid(err, "FileSource", "open", "parse object file")
	}

	return &objectStream{
		source: s,
		logger: logger,
		file:   f,
		dec:    dec,
		mc:     mc,
		accept: accept,
	}, nil
}

func (s *FileSource) keyOf(item json.RawMessage) string {
	if s.keyField == "" {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil {
		return ""
	}
	if v, ok := fields[s.keyField]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func (s *FileSource) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// Events implements publisher.Source
func (s *FileSource) Events(_ context.Context, mc *mapping.Context) (publisher.EventIterator, error) {
	if s.closed() {
		return nil, nil
	}
	stream, err := s.open(s.logger, mc, nil)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, nil
	}
	return &fileEvents{objectStream: stream, action: s.action}, nil
}

// Respond implements publisher.Source
func (s *FileSource) Respond(_ context.Context, query *message.Query, zone types.Zone, info mapping.Info) (publisher.ResponseIterator, error) {
	if s.closed() {
		return nil, nil
	}
	logger := s.logger.With("zone", zone.ID, "query_id", query.ID)
	stream, err := s.open(logger, info.Context, query.Matches)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, nil
	}
	return stream, nil
}

// Finalize implements publisher.Source
func (s *FileSource) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = true
}

// objectStream decodes one array element per Next. Elements rejected by
// accept are skipped; the rest go through the outbound mapping.
type objectStream struct {
	source *FileSource
	logger *slog.Logger
	file   *os.File
	dec    *json.Decoder
	mc     *mapping.Context
	accept func(message.Object) bool

	next    *message.Object
	err     error
	fetched bool
	done    bool
	read    int
}

func (it *objectStream) fetch() {
	if it.fetched {
		return
	}
	it.fetched = true
	it.next, it.err = nil, nil

	for !it.done {
		if !it.dec.More() {
			it.done = true
			return
		}
		var item json.RawMessage
		if err := it.dec.Decode(&item); err != nil {
			// the decoder cannot resync inside a broken array
			it.done = true
			it.err = errors.WrapFatal(err, "FileSource", "Next", "decode object")
			return
		}

		obj := message.Object{Type: it.source.objectType, Key: it.source.keyOf(item), Data: item}
		if it.accept != nil && !it.accept(obj) {
			continue
		}
		if data, err := it.mc.Apply(obj.Data); err == nil {
			obj.Data = data
		} else {
			it.logger.Error("Outbound mapping failed, sending unmapped", "key", obj.Key, "error", err)
		}
		it.next = &obj
		return
	}
}

// HasNext implements publisher.ResponseIterator
func (it *objectStream) HasNext() bool {
	it.fetch()
	return it.next != nil || it.err != nil
}

// Next implements publisher.ResponseIterator
func (it *objectStream) Next(ctx context.Context) (*message.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapFatal(err, "FileSource", "Next", "read object file")
	}
	it.fetch()
	it.fetched = false

	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	if it.next != nil {
		it.read++
	}
	return it.next, nil
}

// Close implements publisher.ResponseIterator
func (it *objectStream) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	it.logger.Debug("Objects read from file", "count", it.read)
	if err != nil {
		return errors.WrapTransient(err, "FileSource", "Close", "close object file")
	}
	return nil
}

type fileEvents struct {
	*objectStream
	action message.Action
}

// Next implements publisher.EventIterator
func (it *fileEvents) Next(ctx context.Context) (*message.Event, error) {
	obj, err := it.objectStream.Next(ctx)
	if obj == nil || err != nil {
		return nil, err
	}
	ev := message.NewEvent(*obj, it.action)
	return &ev, nil
}
