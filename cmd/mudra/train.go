package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
)

func runTrain(ctx context.Context, cfg *config.Config, args []string) (err error) {
	fs := newFlagSet("train", cfg)
	fs.IntVar(&cfg.Train.Epochs, "epochs", cfg.Train.Epochs, "training epochs")
	fs.IntVar(&cfg.Train.BatchSize, "batch", cfg.Train.BatchSize, "mini-batch size")
	fs.Float64Var(&cfg.Train.ValidationSplit, "val-split", cfg.Train.ValidationSplit, "fraction held out for validation")
	fs.Uint64Var(&cfg.Train.Seed, "seed", cfg.Train.Seed, "shuffle, split and weight init seed")
	fs.BoolVar(&cfg.Train.AugmentOnLoad, "augment", cfg.Train.AugmentOnLoad, "add noisy copies of every loaded sample")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}

	log := logger.Named("train")
	m := newMetrics(cfg.Metrics)
	defer func() {
		if _, merr := exportMetrics(ctx, log, m, cfg.Metrics.TextfileDir, "train"); merr != nil {
			log.Warn(ctx, "failed to export metrics", logger.Error(merr))
		}
	}()

	st, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.TrainingRuns().Start()
	if err != nil {
		return fmt.Errorf("record training run: %w", err)
	}
	defer func() {
		run.Status = store.RunCompleted
		if err != nil {
			run.Status = store.RunFailed
			run.Error = err.Error()
		}
		if ferr := st.TrainingRuns().Finish(run); ferr != nil {
			log.Warn(ctx, "failed to finish training run", logger.String("run", run.ID), logger.Error(ferr))
		}
	}()

	samples, err := dataset.ReadDir(cfg.DatasetDir)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	run.Labels = dataset.Labels(samples)
	log.Info(ctx, "dataset loaded",
		logger.String("dir", cfg.DatasetDir),
		logger.Int("samples", len(samples)),
		logger.Any("labels", run.Labels))

	trainer := gesture.NewTrainer(gesture.TrainerConfig{
		Epochs:          cfg.Train.Epochs,
		BatchSize:       cfg.Train.BatchSize,
		ValidationSplit: cfg.Train.ValidationSplit,
		Seed:            cfg.Train.Seed,
		LearningRate:    cfg.Train.LearningRate,
		Dropout:         cfg.Train.Dropout,
		Hidden:          slices.Clone(cfg.Train.Hidden),
		AugmentOnLoad:   cfg.Train.AugmentOnLoad,
		AugmentCopies:   cfg.Capture.AugmentCopies,
		NoiseStdDev:     cfg.Capture.NoiseStdDev,
	}, gesture.WithLogger(log), gesture.WithMetrics(m))

	res, err := trainer.Train(ctx, samples)
	if err != nil {
		return err
	}

	last := res.History.Last()
	run.TrainSize, run.ValSize = res.TrainSize, res.ValSize
	run.Epochs = len(res.History)
	run.Loss, run.Accuracy = last.Loss, last.Accuracy
	run.ValLoss, run.ValAccuracy = last.ValLoss, last.ValAccuracy

	if err := gesture.SaveArtifacts(cfg.Model.Path, cfg.Model.EncoderPath, res); err != nil {
		return fmt.Errorf("save artifacts: %w", err)
	}
	run.ModelPath, run.EncoderPath = cfg.Model.Path, cfg.Model.EncoderPath

	log.Info(ctx, "training finished",
		logger.String("run", run.ID),
		logger.Float64("val_accuracy", m.ValidationAccuracy()),
		logger.String("model", cfg.Model.Path),
		logger.String("encoder", cfg.Model.EncoderPath))
	return nil
}
