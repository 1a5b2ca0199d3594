package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lumenhq/offworker/internal/msg"
)

// Scenario defines one conformance scenario: an agent setup, a sequence
// of delivered events, and assertions over the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Config ScenarioConfig `yaml:"config"`

	// Origin maps paths to response bodies served by the scenario's
	// in-memory upstream. An empty map means the upstream is down.
	Origin map[string]string `yaml:"origin,omitempty"`

	// Clients are page sessions registered before any step runs.
	Clients []string `yaml:"clients,omitempty"`

	// Steps are events delivered to the worker in order, after install
	// and activation have completed.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig is the slice of agent configuration a scenario controls.
type ScenarioConfig struct {
	Version string   `yaml:"version"`
	Assets  []string `yaml:"assets,omitempty"`
	Offline string   `yaml:"offline,omitempty"`
	Locale  string   `yaml:"locale,omitempty"`
	// AutoActivate mirrors install chaining into activation. Defaults to
	// true; scenarios exercising SKIP_WAITING turn it off.
	AutoActivate *bool `yaml:"auto_activate,omitempty"`
}

// Step is one delivered event. Exactly one field must be set.
type Step struct {
	// Push delivers a raw push payload.
	Push *string `yaml:"push,omitempty"`

	// Click delivers a notification click.
	Click *ClickStep `yaml:"click,omitempty"`

	// Message delivers a page → worker protocol message with a reply port.
	Message *msg.Message `yaml:"message,omitempty"`

	// Sync delivers a background sync wakeup with the given tag.
	Sync *string `yaml:"sync,omitempty"`

	// PeriodicSync delivers a periodic sync wakeup with the given tag.
	PeriodicSync *string `yaml:"periodic_sync,omitempty"`
}

// ClickStep identifies the tapped notification and action button.
type ClickStep struct {
	Tag    string `yaml:"tag"`
	Action string `yaml:"action,omitempty"`
}

// Assertion validates one aspect of the scenario outcome.
type Assertion struct {
	// Type selects the check:
	//  - "notification_shown": a shown notification matches the given fields
	//  - "notification_count": exactly Count notifications were shown
	//  - "worker_state": the worker finished in State
	//  - "cache_has": Bucket contains an entry for URL (optionally Body)
	//  - "bucket_count": exactly Count buckets exist
	//  - "event_order": Kinds appear in the trace in order
	//  - "reply": the Index-th message reply matched Success/Error
	Type string `yaml:"type"`

	Title              string `yaml:"title,omitempty"`
	Body               string `yaml:"body,omitempty"`
	Tag                string `yaml:"tag,omitempty"`
	RequireInteraction *bool  `yaml:"require_interaction,omitempty"`

	State string `yaml:"state,omitempty"`

	Bucket string `yaml:"bucket,omitempty"`
	URL    string `yaml:"url,omitempty"`

	Count int      `yaml:"count,omitempty"`
	Kinds []string `yaml:"kinds,omitempty"`

	Index   int    `yaml:"index,omitempty"`
	Success *bool  `yaml:"success,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertNotificationShown = "notification_shown"
	AssertNotificationCount = "notification_count"
	AssertWorkerState       = "worker_state"
	AssertCacheHas          = "cache_has"
	AssertBucketCount       = "bucket_count"
	AssertEventOrder        = "event_order"
	AssertReply             = "reply"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typo'd key fails loudly instead of silently not asserting.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config.Version == "" {
		return fmt.Errorf("config.version is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		set := 0
		if step.Push != nil {
			set++
		}
		if step.Click != nil {
			set++
			if step.Click.Tag == "" {
				return fmt.Errorf("steps[%d].click: tag is required", i)
			}
		}
		if step.Message != nil {
			set++
			if step.Message.Type == "" {
				return fmt.Errorf("steps[%d].message: type is required", i)
			}
		}
		if step.Sync != nil {
			set++
		}
		if step.PeriodicSync != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of push, click, message, sync, periodic_sync must be set", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertNotificationShown:
		if a.Title == "" && a.Body == "" && a.Tag == "" && a.RequireInteraction == nil {
			return fmt.Errorf("assertions[%d]: notification_shown needs at least one field to match", index)
		}
	case AssertNotificationCount, AssertBucketCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertWorkerState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for worker_state", index)
		}
	case AssertCacheHas:
		if a.Bucket == "" || a.URL == "" {
			return fmt.Errorf("assertions[%d]: bucket and url are required for cache_has", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case AssertReply:
		if a.Success == nil && a.Error == "" {
			return fmt.Errorf("assertions[%d]: reply needs success or error to match", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
