// Package config reads the optional per-project file that supplies
// defaults for the deploy command. Flags always win over the file; the
// file only fills in what the invocation left unset.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// DefaultFileName is looked up in the work directory.
const DefaultFileName = "slipway.json"

// Project is the on-disk project configuration. All fields are optional.
type Project struct {
	Stage     string `json:"stage,omitempty"`
	CheckCmd  string `json:"check_cmd,omitempty"`
	DeployCmd string `json:"deploy_cmd,omitempty"`
	VerifyCmd string `json:"verify_cmd,omitempty"`

	Canary struct {
		Enabled             bool     `json:"enabled,omitempty"`
		InitialPercentage   int      `json:"initial_percentage,omitempty"`
		IncrementPercentage int      `json:"increment_percentage,omitempty"`
		FinalPercentage     int      `json:"final_percentage,omitempty"`
		IncrementInterval   Duration `json:"increment_interval,omitempty"`
		PollInterval        Duration `json:"poll_interval,omitempty"`
		FailureThreshold    int      `json:"failure_threshold,omitempty"`
		MaxErrorRate        float64  `json:"max_error_rate,omitempty"`
		MaxLatencyP95       float64  `json:"max_latency_p95,omitempty"`
		MaxLatencyP99       float64  `json:"max_latency_p99,omitempty"`
		MinSuccessRate      float64  `json:"min_success_rate,omitempty"`
		MetricsCmd          string   `json:"metrics_cmd,omitempty"`
		ApplyCmd            string   `json:"apply_cmd,omitempty"`
	} `json:"canary,omitempty"`
}

// Duration is a time.Duration that unmarshals from a Go duration string
// ("5m", "30s") or a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var asInt int64
	if err := json.Unmarshal(data, &asInt); err != nil {
		return fmt.Errorf("duration must be a string or integer: %s", data)
	}
	*d = Duration(asInt)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load reads the project file at path. A missing file is not an error; it
// yields an empty Project so callers can treat the file as optional.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Project{}, nil
	}
	if err != nil {
		return nil, err
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &p, nil
}
