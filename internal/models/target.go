package models

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

type CheckFrequency string

const (
	FrequencyHourly CheckFrequency = "hourly"
	FrequencyDaily  CheckFrequency = "daily"
	FrequencyWeekly CheckFrequency = "weekly"
)

func (f CheckFrequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// MonitorTarget is one school website under watch. It is created by setup
// tooling or the admin API and mutated afterwards only by the monitor.
type MonitorTarget struct {
	SchoolNo           string            `json:"school_no"`
	SchoolName         string            `json:"school_name"`
	WebsiteURL         string            `json:"website_url"`
	ApplicationPageURL string            `json:"application_page_url,omitempty"`
	IsActive           bool              `json:"is_active"`
	CheckFrequency     CheckFrequency    `json:"check_frequency"`
	ApplicationStatus  ApplicationStatus `json:"application_status"`
	MonitoringConfig   MonitoringConfig  `json:"monitoring_config"`
	LastContentHash    string            `json:"last_content_hash,omitempty"`
	LastContent        string            `json:"-"`
	LastChecked        *time.Time        `json:"last_checked,omitempty"`
	ErrorCount         int               `json:"error_count"`
	SuccessCount       int               `json:"success_count"`
	LastError          string            `json:"last_error,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// PageURL is the page the monitor fetches: the dedicated application page
// when one is configured, the school website otherwise.
func (t MonitorTarget) PageURL() string {
	if t.ApplicationPageURL != "" {
		return t.ApplicationPageURL
	}
	return t.WebsiteURL
}

// ApplicationStatus is the last persisted analysis snapshot for a target.
type ApplicationStatus struct {
	IsOpen       bool       `json:"is_open"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Requirements []string   `json:"requirements"`
	Notes        string     `json:"notes"`
}

// MonitoringConfig tunes analysis for a single target. Keywords and
// ExcludeKeywords only mark a page as relevant or not; they never change the
// open/closed classification. ContentSelectors narrow the page regions that
// are read, and an empty list means the default main-content regions.
type MonitoringConfig struct {
	Keywords          []string `json:"keywords" yaml:"keywords"`
	ExcludeKeywords   []string `json:"exclude_keywords" yaml:"exclude_keywords"`
	ContentSelectors  []string `json:"content_selectors" yaml:"content_selectors"`
	CheckForChanges   bool     `json:"check_for_changes" yaml:"check_for_changes"`
	CheckForDeadlines bool     `json:"check_for_deadlines" yaml:"check_for_deadlines"`
}

// DefaultMonitoringConfig is applied to targets created without an explicit config.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		Keywords:          []string{"application", "admission", "enrollment", "registration"},
		ExcludeKeywords:   []string{"closed", "ended", "finished"},
		ContentSelectors:  []string{},
		CheckForChanges:   true,
		CheckForDeadlines: true,
	}
}

// IsZero reports whether no field of c was set.
func (c MonitoringConfig) IsZero() bool {
	return c.Keywords == nil && c.ExcludeKeywords == nil && c.ContentSelectors == nil &&
		!c.CheckForChanges && !c.CheckForDeadlines
}

// monitoringConfigFields has the fields of MonitoringConfig without its
// decoding methods.
type monitoringConfigFields MonitoringConfig

// UnmarshalJSON decodes onto the defaults so omitted fields keep their
// default value instead of the zero value.
func (c *MonitoringConfig) UnmarshalJSON(b []byte) error {
	f := monitoringConfigFields(DefaultMonitoringConfig())
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = MonitoringConfig(f)
	return nil
}

// UnmarshalYAML applies the same per-field defaults as UnmarshalJSON.
func (c *MonitoringConfig) UnmarshalYAML(n *yaml.Node) error {
	f := monitoringConfigFields(DefaultMonitoringConfig())
	if err := n.Decode(&f); err != nil {
		return err
	}
	*c = MonitoringConfig(f)
	return nil
}

// TargetUpdate carries partial updates; nil fields are left unchanged.
type TargetUpdate struct {
	LastChecked       *time.Time
	LastContentHash   *string
	LastContent       *string
	SuccessCount      *int
	ErrorCount        *int
	LastError         *string
	ClearLastError    bool
	ApplicationStatus *ApplicationStatus
}

// TargetPatch is the admin-facing edit of a target's descriptive fields.
type TargetPatch struct {
	SchoolName         *string           `json:"school_name"`
	WebsiteURL         *string           `json:"website_url"`
	ApplicationPageURL *string           `json:"application_page_url"`
	IsActive           *bool             `json:"is_active"`
	CheckFrequency     *CheckFrequency   `json:"check_frequency"`
	MonitoringConfig   *MonitoringConfig `json:"monitoring_config"`
}

type TargetFilter struct {
	Active *bool
	Page   int
	Limit  int
}
