package profile

import (
	"context"
	"fmt"

	"judgecore/internal/sandbox/security"
	appErr "judgecore/pkg/errors"
)

// Repository loads task profiles by task type and language. The Coordinator
// asks it once per compile and once per run, since compile and run use
// different sandbox profiles (different seccomp filter, different rootfs in
// principle) for the same language.
type Repository interface {
	GetTaskProfile(ctx context.Context, taskType TaskType, languageID string) (TaskProfile, error)
}

// LocalRepository loads profiles from an in-process map built at startup.
// There is no database-backed profile store: sandbox profiles are part of
// the worker's deployment, not submitted data, so they are configured
// alongside the binary rather than fetched over the wire.
type LocalRepository struct {
	profiles map[string]TaskProfile
}

// NewLocalRepository indexes profiles by (languageID, taskType). Profiles
// missing either field are skipped.
func NewLocalRepository(profiles []TaskProfile) *LocalRepository {
	index := make(map[string]TaskProfile, len(profiles))
	for _, p := range profiles {
		if p.LanguageID == "" || p.TaskType == "" {
			continue
		}
		index[key(p.LanguageID, p.TaskType)] = p
	}
	return &LocalRepository{profiles: index}
}

func (r *LocalRepository) GetTaskProfile(ctx context.Context, taskType TaskType, languageID string) (TaskProfile, error) {
	if taskType == "" || languageID == "" {
		return TaskProfile{}, appErr.ValidationError("task_profile", "required")
	}
	p, ok := r.profiles[key(languageID, taskType)]
	if !ok {
		return TaskProfile{}, appErr.Newf(appErr.NotFound, "task profile not found for %s/%s", languageID, taskType)
	}
	return p, nil
}

// Resolve implements engine.ProfileResolver. The engine calls it with the
// exact profile name the Executor stamped onto spec.RunSpec.Profile
// (languageID-taskType, the same key GetTaskProfile uses), so a single
// in-process map backs both lookups.
func (r *LocalRepository) Resolve(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	p, ok := r.profiles[profileName]
	if !ok {
		return security.IsolationProfile{}, appErr.Newf(appErr.NotFound, "sandbox profile not found for %q", profileName)
	}
	return security.IsolationProfile{
		RootFS:         p.RootFS,
		SeccompProfile: p.SeccompProfile,
		DisableNetwork: true,
	}, nil
}

func key(languageID string, taskType TaskType) string {
	return fmt.Sprintf("%s-%s", languageID, taskType)
}
