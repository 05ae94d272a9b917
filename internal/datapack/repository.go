package datapack

import (
	"context"
	"os"

	"judgecore/internal/model"
	"judgecore/internal/repository"
	appErr "judgecore/pkg/errors"
)

// HydratingRepository wraps a repository.Repository and fills in any
// TestCase whose Input/ExpectedOutput was left empty in favor of an
// out-of-line InputDataKey/OutputDataKey. Everything else passes through
// unchanged; this is a decorator, not a reimplementation.
type HydratingRepository struct {
	repository.Repository
	cache *Cache
}

// Wrap decorates repo with datapack hydration backed by cache.
func Wrap(repo repository.Repository, cache *Cache) *HydratingRepository {
	return &HydratingRepository{Repository: repo, cache: cache}
}

// GetTestCases loads the problem's test cases and resolves any external
// data references into the in-memory text fields the Coordinator's mode
// executors already know how to use, so hydration never leaks into §4.5.
func (r *HydratingRepository) GetTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	cases, err := r.Repository.GetTestCases(ctx, problemID)
	if err != nil {
		return nil, err
	}
	for i := range cases {
		if err := r.hydrate(ctx, &cases[i]); err != nil {
			return nil, err
		}
	}
	return cases, nil
}

func (r *HydratingRepository) hydrate(ctx context.Context, tc *model.TestCase) error {
	if !tc.HasExternalData() {
		return nil
	}
	if tc.InputDataKey != "" && tc.Input == "" {
		text, err := r.readKey(ctx, tc.InputDataKey)
		if err != nil {
			return err
		}
		tc.Input = text
	}
	if tc.OutputDataKey != "" && tc.ExpectedOutput == "" {
		text, err := r.readKey(ctx, tc.OutputDataKey)
		if err != nil {
			return err
		}
		tc.ExpectedOutput = text
	}
	return nil
}

func (r *HydratingRepository) readKey(ctx context.Context, key string) (string, error) {
	if r.cache == nil {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("datapack cache is not configured")
	}
	path, err := r.cache.Resolve(ctx, key)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "read cached test data failed")
	}
	return string(content), nil
}
