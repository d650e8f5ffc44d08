package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"MUDRA_CONFIG",
	"MUDRA_ADDR",
	"MUDRA_LOG_LEVEL",
	"MUDRA_DATA_DIR",
	"MUDRA_MODEL__VARIANT",
	"MUDRA_MODEL__IMAGE_SIZE",
	"MUDRA_TRAIN__EPOCHS",
	"MUDRA_CAMERA__ENABLED",
	"MUDRA_DETECTOR__MIN_CONFIDENCE",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mudra.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it matches the training and capture contract", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.Model.Variant, convey.ShouldEqual, config.VariantLandmarks)
			convey.So(cfg.Model.ImageSize, convey.ShouldEqual, 224)
			convey.So(cfg.Capture.SamplesPerLabel, convey.ShouldEqual, 100)
			convey.So(cfg.Capture.AugmentCopies, convey.ShouldEqual, 2)
			convey.So(cfg.Capture.NoiseStdDev, convey.ShouldEqual, 0.01)
			convey.So(cfg.Capture.Labels, convey.ShouldResemble, config.DefaultLabels)
			convey.So(cfg.Train.Epochs, convey.ShouldEqual, 30)
			convey.So(cfg.Train.BatchSize, convey.ShouldEqual, 32)
			convey.So(cfg.Train.ValidationSplit, convey.ShouldEqual, 0.2)
			convey.So(cfg.Train.Seed, convey.ShouldEqual, 42)
			convey.So(cfg.Train.Hidden, convey.ShouldResemble, []int{128, 64})
			convey.So(cfg.Detector.MinConfidence, convey.ShouldEqual, 0.5)
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "mudra")
			convey.So(cfg.Metrics.TextfileDir, convey.ShouldEqual, "metrics")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load()

			convey.Convey("Then relative paths are resolved against data_dir", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DatasetDir, convey.ShouldEqual, filepath.Join("data", "landmark_dataset"))
				convey.So(cfg.Model.Path, convey.ShouldEqual, filepath.Join("data", "gesture_landmark_model.json"))
				convey.So(cfg.Model.EncoderPath, convey.ShouldEqual, filepath.Join("data", "label_encoder.json"))
				convey.So(cfg.DBPath, convey.ShouldEqual, filepath.Join("data", "mudra.db"))
			})
		})

		convey.Convey("When loading with environment variables", func() {
			_ = os.Setenv("MUDRA_ADDR", ":9090")
			_ = os.Setenv("MUDRA_MODEL__VARIANT", "image")
			_ = os.Setenv("MUDRA_MODEL__IMAGE_SIZE", "64")
			_ = os.Setenv("MUDRA_TRAIN__EPOCHS", "5")
			_ = os.Setenv("MUDRA_CAMERA__ENABLED", "true")

			cfg, err := config.Load()

			convey.Convey("Then env overrides defaults, nested keys included", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Model.Variant, convey.ShouldEqual, config.VariantImage)
				convey.So(cfg.Model.ImageSize, convey.ShouldEqual, 64)
				convey.So(cfg.Train.Epochs, convey.ShouldEqual, 5)
				convey.So(cfg.Camera.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Train.BatchSize, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When loading with a YAML file and env vars", func() {
			path := writeConfigFile(t, `
addr: ":7070"
data_dir: "/srv/mudra"
model:
  path: "models/net.json"
train:
  epochs: 12
`)
			_ = os.Setenv("MUDRA_CONFIG", path)
			_ = os.Setenv("MUDRA_TRAIN__EPOCHS", "7")

			cfg, err := config.Load()

			convey.Convey("Then env overrides the file and the file overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Train.Epochs, convey.ShouldEqual, 7)
				convey.So(cfg.Model.Path, convey.ShouldEqual, filepath.Join("/srv/mudra", "models/net.json"))
				convey.So(cfg.Model.EncoderPath, convey.ShouldEqual, filepath.Join("/srv/mudra", "label_encoder.json"))
				convey.So(cfg.Metrics.TextfileDir, convey.ShouldEqual, filepath.Join("/srv/mudra", "metrics"))
			})
		})

		convey.Convey("When latency buckets are not increasing", func() {
			path := writeConfigFile(t, `
metrics:
  latency_buckets: [1, 5, 5, 10]
`)
			_ = os.Setenv("MUDRA_CONFIG", path)

			cfg, err := config.Load()

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "metrics.latency_buckets")
		})

		convey.Convey("When the YAML file is invalid", func() {
			path := writeConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("MUDRA_CONFIG", path)

			cfg, err := config.Load()

			convey.Convey("Then a load error is returned", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the YAML file does not exist", func() {
			_ = os.Setenv("MUDRA_CONFIG", "/non/existent/mudra.yaml")

			cfg, err := config.Load()

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the model variant is unknown", func() {
			_ = os.Setenv("MUDRA_MODEL__VARIANT", "video")

			cfg, err := config.Load()

			convey.Convey("Then a validation error is returned", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "model.variant")
			})
		})

		convey.Convey("When a detector confidence is out of range", func() {
			_ = os.Setenv("MUDRA_DETECTOR__MIN_CONFIDENCE", "1.5")

			cfg, err := config.Load()

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "detector confidences")
		})

		convey.Convey("When addr is empty", func() {
			_ = os.Setenv("MUDRA_ADDR", "")

			cfg, err := config.Load()

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
		})
	})
}
