package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/shopbot/core/bootstrap"
	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appFunc func(ctx context.Context) error

func (f appFunc) Run(ctx context.Context) error { return f(ctx) }

func stubBoot(bootstrap.Options) (*bootstrap.Result, error) { return &bootstrap.Result{}, nil }

func TestRunPropagatesLoadError(t *testing.T) {
	err := Run(Options{
		LoadConfig: func(string) (*coreconfig.Config, error) {
			return nil, coreconfig.ErrMissingSecret
		},
		Bootstrap:      stubBoot,
		Build:          func(*coreconfig.Config, *bootstrap.Result) (App, error) { return nil, nil },
		ShutdownLogger: func() error { return nil },
	})
	assert.ErrorIs(t, err, coreconfig.ErrMissingSecret)
}

func TestRunUsesPathAndRunsApp(t *testing.T) {
	t.Setenv("SHOPBOT_TEST_CONFIG", "/etc/shopbot.yaml")
	var gotPath string
	var ran bool
	err := Run(Options{
		ConfigEnvVar: "SHOPBOT_TEST_CONFIG",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			gotPath = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap: stubBoot,
		Build: func(*coreconfig.Config, *bootstrap.Result) (App, error) {
			return appFunc(func(context.Context) error {
				ran = true
				return context.Canceled
			}), nil
		},
		ShutdownLogger: func() error { return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, "/etc/shopbot.yaml", gotPath)
	assert.True(t, ran)
}

func TestRunReturnsAppError(t *testing.T) {
	want := errors.New("listener failed")
	err := Run(Options{
		ConfigPath: "explicit.yaml",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			assert.Equal(t, "explicit.yaml", path)
			return &coreconfig.Config{}, nil
		},
		Bootstrap: stubBoot,
		Build: func(*coreconfig.Config, *bootstrap.Result) (App, error) {
			return appFunc(func(context.Context) error { return want }), nil
		},
		ShutdownLogger: func() error { return nil },
	})
	assert.ErrorIs(t, err, want)
}

func TestRunRequiresBuild(t *testing.T) {
	assert.Error(t, Run(Options{}))
}
