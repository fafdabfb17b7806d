package config

// TasksConfig is the per-task routing and cache policy file.
type TasksConfig struct {
	Tasks []TaskPolicy `yaml:"tasks"`
}

type TaskPolicy struct {
	Tag      string `yaml:"tag"`
	BaseTier string `yaml:"base_tier"`
	// Override pins the task to a specific model key. It is honored only
	// when no escalation rule fires.
	Override string          `yaml:"override,omitempty"`
	Cache    TaskCachePolicy `yaml:"cache"`
	// CacheKeyFields, when set, is the allowlist of payload fields hashed
	// into the cache key. Without it, all payload fields minus the global
	// volatile list are hashed.
	CacheKeyFields []string `yaml:"cache_key_fields,omitempty"`
}

type TaskCachePolicy struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// Policy returns the policy for a task tag.
func (tc *TasksConfig) Policy(tag string) (TaskPolicy, bool) {
	if tc == nil {
		return TaskPolicy{}, false
	}
	for _, t := range tc.Tasks {
		if t.Tag == tag {
			return t, true
		}
	}
	return TaskPolicy{}, false
}
