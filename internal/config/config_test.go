package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/shortlist/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Namespace, convey.ShouldEqual, "default")
			convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.Gemini.Model, convey.ShouldEqual, "gemini-2.0-flash")
			convey.So(cfg.Ranking.Locale, convey.ShouldEqual, "en")
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "shortlist")
			convey.So(cfg.Validate(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)

		convey.Convey("When the postgres driver has no database url", func() {
			cfg.Store.Driver = config.DriverPostgres
			err := cfg.Validate(ctx)

			convey.Convey("Then it is rejected as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "database_url")
			})
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.Store.Driver = "firestore"

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(cfg.Validate(ctx), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the namespace is blank", func() {
			cfg.Namespace = "  "

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(cfg.Validate(ctx), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the metrics namespace is not a metric name", func() {
			cfg.Metrics.Namespace = "short-list"

			convey.Convey("Then it is rejected", func() {
				err := cfg.Validate(ctx)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "metrics.namespace")
			})
		})

		convey.Convey("When the metrics subsystem is not a metric name", func() {
			cfg.Metrics.Subsystem = "9lives"

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(cfg.Validate(ctx), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the analysis timeout is zero", func() {
			cfg.Gemini.TimeoutMS = 0

			convey.Convey("Then it is rejected", func() {
				convey.So(cfg.Validate(ctx), convey.ShouldNotBeNil)
			})
		})
	})
}
