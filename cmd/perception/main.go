// Command perception runs the fixed-interval detection loop described by its
// configuration file (PERCEPTION_CONFIG) and environment overrides.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"perception_loop/internal/arena"
	"perception_loop/internal/config"
	"perception_loop/internal/controller"
	"perception_loop/internal/engine"
	"perception_loop/internal/engine/onnx"
	"perception_loop/internal/frame"
	"perception_loop/internal/inference"
	"perception_loop/internal/labels"
	"perception_loop/internal/logging"
	"perception_loop/internal/sink"
	"perception_loop/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("PERCEPTION_CONFIG"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.File)
	logger.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Perception loop halted")
		if hints := errors.GetAllHints(err); len(hints) > 0 {
			logger.WithField("hints", hints).Info("Recovery hints")
		}
		// A halted device stays up so its state can be inspected.
		<-ctx.Done()
	}
	logger.Info("Shutting down")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	images, err := storage.MountOS(cfg.Storage.ImageRoot)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "mount image medium"), controller.ErrHalted)
	}
	results, err := storage.MountOS(cfg.Storage.ResultsRoot)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "mount results medium"), controller.ErrHalted)
	}

	format := frame.Format{Side: cfg.Frame.Side, Channels: cfg.Frame.Channels}
	inputType, err := engine.ParseDataType(cfg.Engine.InputType)
	if err != nil {
		return errors.Mark(err, controller.ErrHalted)
	}
	layout, err := engine.ParseLayout(cfg.Engine.InputLayout)
	if err != nil {
		return errors.Mark(err, controller.ErrHalted)
	}

	eng, err := onnx.New(onnx.Options{
		LibraryPath:    cfg.Engine.LibraryPath,
		SchemaVersion:  cfg.Model.SchemaVersion,
		InputName:      cfg.Engine.InputName,
		OutputName:     cfg.Engine.OutputName,
		InputType:      inputType,
		InputShape:     layout.ImageShape(format.Side, format.Channels),
		OutputShape:    engine.Shape(cfg.Engine.OutputShape),
		IntraOpThreads: cfg.Engine.IntraOpThreads,
		InterOpThreads: cfg.Engine.InterOpThreads,
	}, logging.Component(logger, "engine"))
	if err != nil {
		return errors.Mark(err, controller.ErrHalted)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.WithError(err).Warn("Failed to destroy onnxruntime environment")
		}
	}()

	resolver := engine.NewResolver(cfg.Engine.MaxOperators)
	for _, op := range cfg.Engine.Operators {
		if err := resolver.Add(engine.Operator(op)); err != nil {
			return errors.Mark(err, controller.ErrHalted)
		}
	}

	adapter := inference.NewAdapter(eng, resolver, arena.New(cfg.Engine.ArenaBytes),
		inference.Options{OutputTail: cfg.Engine.OutputTail, Layout: layout}, logging.Component(logger, "inference"))
	defer func() {
		if err := adapter.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release model")
		}
	}()

	frames, err := newFrameSource(images, cfg.Frame, format)
	if err != nil {
		return errors.Mark(err, controller.ErrHalted)
	}
	out, closeSink, err := newSink(ctx, results, cfg)
	if err != nil {
		return errors.Mark(err, controller.ErrHalted)
	}
	defer closeSink()

	policy, err := controller.ParseFramePolicy(cfg.Frame.Policy)
	if err != nil {
		return errors.Mark(err, controller.ErrHalted)
	}

	c := controller.New(controller.Deps{
		LoadModel: func() ([]byte, error) { return afero.ReadFile(images, cfg.Model.Path) },
		Runner:    adapter,
		Frames:    frames,
		Labels:    labels.NewTable(cfg.Labels),
		Sink:      out,
		Log:       logging.Component(logger, "controller"),
	}, controller.Options{
		Format:      format,
		Threshold:   float32(cfg.Detect.Threshold),
		Interval:    cfg.Cycle.Interval,
		FramePolicy: policy,
	})
	return c.Run(ctx)
}

func newFrameSource(fs afero.Fs, cfg config.FrameConfig, format frame.Format) (frame.Source, error) {
	switch cfg.Kind {
	case "", "raw":
		return frame.NewRawFile(fs, cfg.Path, format), nil
	case "image":
		return frame.NewImageFile(fs, cfg.Path, format)
	}
	return nil, errors.Newf("unknown frame kind %q", cfg.Kind)
}

func newSink(ctx context.Context, fs afero.Fs, cfg *config.Config) (sink.Sink, func(), error) {
	noop := func() {}
	switch cfg.Sink.Kind {
	case "", "file":
		return sink.NewTextFile(fs, cfg.Sink.Path, sink.Mode(cfg.Sink.Mode)), noop, nil
	case "console":
		return sink.NewConsole(os.Stdout), noop, nil
	case "sqlite":
		// database/sql opens by host path, so the results root is joined here.
		db, err := sql.Open("sqlite3", filepath.Join(cfg.Storage.ResultsRoot, cfg.Sink.Path))
		if err != nil {
			return nil, noop, errors.Wrap(err, "open results database")
		}
		s := sink.NewSQL(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return s, func() { _ = db.Close() }, nil
	}
	return nil, noop, errors.Newf("unknown sink kind %q", cfg.Sink.Kind)
}
