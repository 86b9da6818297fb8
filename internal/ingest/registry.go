package ingest

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hkschools/admission-monitor/internal/models"
)

//go:embed config/schools.yaml
var schoolsYAML embed.FS

// Registry is the seed list of schools to monitor.
type Registry struct {
	Schools []SchoolConfig `yaml:"schools"`
}

// SchoolConfig describes one school in the seed file.
type SchoolConfig struct {
	SchoolNo           string                   `yaml:"school_no"`
	Name               string                   `yaml:"name"`
	WebsiteURL         string                   `yaml:"website_url"`
	ApplicationPageURL string                   `yaml:"application_page_url,omitempty"`
	CheckFrequency     models.CheckFrequency    `yaml:"check_frequency,omitempty"`
	Inactive           bool                     `yaml:"inactive,omitempty"`
	Monitoring         *models.MonitoringConfig `yaml:"monitoring,omitempty"`
}

// LoadRegistry reads the seed file at path, or the embedded schools.yaml when
// path is empty. ${VAR} references are expanded from the environment.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = schoolsYAML.ReadFile("config/schools.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(reg.Schools))
	for i, s := range reg.Schools {
		if strings.TrimSpace(s.SchoolNo) == "" {
			return nil, fmt.Errorf("school %d: school_no is required", i)
		}
		if s.WebsiteURL == "" {
			return nil, fmt.Errorf("school %s: website_url is required", s.SchoolNo)
		}
		if s.CheckFrequency != "" && !s.CheckFrequency.Valid() {
			return nil, fmt.Errorf("school %s: invalid check_frequency %q", s.SchoolNo, s.CheckFrequency)
		}
		if seen[s.SchoolNo] {
			return nil, fmt.Errorf("school %s: duplicate school_no", s.SchoolNo)
		}
		seen[s.SchoolNo] = true
	}
	return &reg, nil
}

// Target converts the seed entry into a new monitor target.
func (s SchoolConfig) Target() models.MonitorTarget {
	freq := s.CheckFrequency
	if freq == "" {
		freq = models.FrequencyDaily
	}
	cfg := models.DefaultMonitoringConfig()
	if s.Monitoring != nil {
		cfg = *s.Monitoring
	}
	return models.MonitorTarget{
		SchoolNo:           s.SchoolNo,
		SchoolName:         s.Name,
		WebsiteURL:         s.WebsiteURL,
		ApplicationPageURL: s.ApplicationPageURL,
		IsActive:           !s.Inactive,
		CheckFrequency:     freq,
		MonitoringConfig:   cfg,
		ApplicationStatus: models.ApplicationStatus{
			Requirements: []string{},
			Notes:        "Initialized from seed registry",
		},
	}
}
