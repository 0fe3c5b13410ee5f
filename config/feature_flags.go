package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime feature toggles. Defaults are baked in;
// FEATURE_* environment variables flip individual flags without a rebuild.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// === Leaderboard Features ===
	FeatureRankEnrichment = "leaderboard.rank_enrichment" // per-entry global rank probes
	FeatureRecordings     = "leaderboard.recordings"      // replay ghost attachment
	FeaturePageCache      = "leaderboard.page_cache"      // Redis read-through page cache

	// === Session Features ===
	FeatureAutoRetry      = "session.auto_retry"      // interval sweep over failed tracks
	FeatureSessionPersist = "session.persist"         // completed-session snapshots in Redis
	FeatureSessionJanitor = "session.janitor"         // superseded-session cleanup job
	FeatureProfileLookup  = "identity.profile_lookup" // catalog-scan profile resolution
)

// LoadFeatureFlags initializes the flag set and applies environment
// overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{FeatureRankEnrichment, "resolve the global rank of every visible page entry", true},
		{FeatureRecordings, "attach replay ghosts on request", true},
		{FeaturePageCache, "serve anonymous leaderboard pages from Redis", true},
		{FeatureAutoRetry, "periodically re-attempt failed track resolutions", true},
		{FeatureSessionPersist, "persist completed session snapshots", true},
		{FeatureSessionJanitor, "prune superseded sessions past retention", true},
		{FeatureProfileLookup, "scan the catalog to rebuild a profile from a user id", true},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment applies FEATURE_* overrides, e.g.
// FEATURE_SESSION_AUTO_RETRY=false disables "session.auto_retry".
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		if val := os.Getenv(featureNameToEnvKey(name)); val != "" {
			if enabled, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = enabled
			}
		}
	}
}

func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.NewReplacer(".", "_", "-", "_").Replace(key)
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on. Unknown names are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[featureName]
	return ok && f.Enabled
}

// Enable turns a feature on at runtime.
func (ff *FeatureFlags) Enable(featureName string) error {
	return ff.set(featureName, true)
}

// Disable turns a feature off at runtime.
func (ff *FeatureFlags) Disable(featureName string) error {
	return ff.set(featureName, false)
}

func (ff *FeatureFlags) set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[featureName]
	if !ok {
		return fmt.Errorf("unknown feature %q", featureName)
	}
	f.Enabled = enabled
	return nil
}

// All returns a copy of every flag, for diagnostics output.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	return out
}
