package main

import (
	"context"
	"flag"
	"math/rand/v2"

	"github.com/banshee-data/stress.report/internal/classifier"
	"github.com/banshee-data/stress.report/internal/config"
	"github.com/banshee-data/stress.report/internal/fsutil"
	"github.com/banshee-data/stress.report/internal/model"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.PipelineConfig, error) {
	if path == "" {
		return config.DefaultPipelineConfig(), nil
	}
	return config.LoadPipelineConfig(path)
}

// applyFlags copies explicitly set command-line flags over cfg.
func applyFlags(cfg *config.PipelineConfig, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "data-dir":
			cfg.DataDir = &v
		case "port":
			cfg.SerialPort = &v
		case "mqtt-broker":
			cfg.MQTTBroker = &v
		case "user-id":
			cfg.UserID = &v
		case "remote-dsn":
			cfg.RemoteDSN = &v
		case "debug-noise":
			b := v == "true"
			cfg.DebugNoise = &b
		case "ble-hr":
			b := v == "true"
			cfg.BLEHeartRate = &b
		}
	})
}

func policy(cfg *config.PipelineConfig) model.Policy {
	return model.Policy{
		MinSamplesPerClass: cfg.GetMinSamplesPerClass(),
		MinSamples:         cfg.GetMinRegressionSamples(),
		Cooldown:           cfg.GetCooldownLength(),
		DisableCooldown:    cfg.GetDisableCooldown(),
	}
}

func openTask[L comparable](ctx context.Context, task model.Task[L], cfg *config.PipelineConfig, files fsutil.FileSystem, dates model.TrainingDateStore, clock timeutil.Clock) (*model.Controller[L], error) {
	return model.Open(ctx, model.Config[L]{
		Task:    task,
		Dir:     cfg.GetDataDir(),
		FS:      files,
		Backend: classifier.Ridge{Lambda: cfg.GetRidgeLambda(), FS: files},
		Dates:   dates,
		Clock:   clock,
		Policy:  policy(cfg),
		Rand:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	})
}

// openServices opens the stress, energy and quadrant controllers.
func openServices(ctx context.Context, cfg *config.PipelineConfig, files fsutil.FileSystem, dates model.TrainingDateStore, clock timeutil.Clock) ([]model.Service, error) {
	stress, err := openTask(ctx, model.StressTask(), cfg, files, dates, clock)
	if err != nil {
		return nil, err
	}
	energy, err := openTask(ctx, model.EnergyTask(), cfg, files, dates, clock)
	if err != nil {
		return nil, err
	}
	quadrant, err := openTask(ctx, model.QuadrantTask(), cfg, files, dates, clock)
	if err != nil {
		return nil, err
	}
	return []model.Service{stress, energy, quadrant}, nil
}
