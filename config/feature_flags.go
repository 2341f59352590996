package config

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Flag names. The environment key of a flag is FEATURE_ followed by the
// upper-cased name with dots replaced: notify.email -> FEATURE_NOTIFY_EMAIL.
const (
	FeatureNotifyStatusChange = "notify.status_change"
	FeatureNotifyEmail        = "notify.email"
	FeatureNotifyDeadlines    = "notify.deadlines"

	FeatureScoringParallel     = "scoring.parallel"
	FeatureScoringPoolCache    = "scoring.pool_cache"
	FeatureRecommendCatalogAll = "recommend.catalog_all"
)

var (
	ErrFeatureNotFound       = errors.New("feature flag not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be between 0 and 100")
)

// Feature is one toggle. Percent is the share of users (0-100) that see
// the feature; users land in a stable bucket derived from their ID.
type Feature struct {
	Name        string
	Description string
	Percent     int
}

// FeatureContext identifies who a flag is evaluated for. A nil context, or
// one without a user, only sees fully rolled out features.
type FeatureContext struct {
	UserID string
}

var defaultFeatures = []Feature{
	{FeatureNotifyStatusChange, "Notify students when their application status changes", 100},
	{FeatureNotifyEmail, "Email high-priority notifications through the mail relay", 0},
	{FeatureNotifyDeadlines, "Remind pending applicants about upcoming deadlines", 100},
	{FeatureScoringParallel, "Load reference pools concurrently when ranking programs", 100},
	{FeatureScoringPoolCache, "Cache reference pools in Redis", 100},
	{FeatureRecommendCatalogAll, "Rank every program in the catalog for a student", 100},
}

// FeatureFlags holds the toggles of one process. Safe for concurrent use.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
	// forced pins a flag on or off for single users, e.g. pilot reviewers.
	forced map[string]map[string]bool
}

// LoadFeatureFlags builds the default flags and applies FEATURE_* variables.
// A variable holds either a boolean or a rollout percentage; its _USERS
// companion lists user IDs that always get the feature.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features: make(map[string]*Feature, len(defaultFeatures)),
		forced:   make(map[string]map[string]bool),
	}
	for _, f := range defaultFeatures {
		f := f
		ff.features[f.Name] = &f
	}

	for name, f := range ff.features {
		key := EnvKey(name)
		if p, ok := parseRollout(os.Getenv(key)); ok {
			f.Percent = p
		}
		for _, id := range strings.Split(os.Getenv(key+"_USERS"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ff.SetUserOverride(id, name, true)
			}
		}
	}
	return ff
}

// EnvKey returns the environment variable that controls a flag.
func EnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

func parseRollout(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		if b {
			return 100, true
		}
		return 0, true
	}
	p, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
	if err != nil || p < 0 || p > 100 {
		return 0, false
	}
	return p, true
}

// bucket places a user in [0, 100) for a flag. The flag name is part of the
// hash so the same users aren't always first in every rollout.
func bucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + "\x00" + userID))
	return int(h.Sum32() % 100)
}

// IsEnabled reports whether a feature is on for ctx. Unknown flags are off;
// a nil receiver turns everything on, which keeps tests free of setup.
func (ff *FeatureFlags) IsEnabled(name string, ctx *FeatureContext) bool {
	if ff == nil {
		return true
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	if !ok {
		return false
	}
	user := ""
	if ctx != nil {
		user = ctx.UserID
	}
	if on, ok := ff.forced[user][name]; ok && user != "" {
		return on
	}

	switch {
	case f.Percent >= 100:
		return true
	case f.Percent <= 0 || user == "":
		return false
	default:
		return bucket(name, user) < f.Percent
	}
}

// SetUserOverride pins a feature on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.forced[userID] == nil {
		ff.forced[userID] = make(map[string]bool)
	}
	ff.forced[userID][name] = enabled
}

// SetRolloutPercent changes a feature's rollout while the process runs.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidRolloutPercent, percent)
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.features[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFeatureNotFound, name)
	}
	f.Percent = percent
	return nil
}

func (ff *FeatureFlags) EnableFeature(name string) error  { return ff.SetRolloutPercent(name, 100) }
func (ff *FeatureFlags) DisableFeature(name string) error { return ff.SetRolloutPercent(name, 0) }

// Snapshot lists the flags sorted by name, for the ops endpoint.
func (ff *FeatureFlags) Snapshot() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
