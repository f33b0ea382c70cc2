package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// MappingProfile is a per-portal field-mapping override loaded from YAML.
// The synonym table merges over the built-in defaults: an overridden
// canonical field replaces its default synonym list, unmentioned fields
// keep theirs.
type MappingProfile struct {
	Portal   string              `yaml:"portal" json:"portal"`
	Synonyms map[string][]string `yaml:"synonyms" json:"synonyms"`
}

// mappingProfileSchema constrains profile files before they reach the
// mapper: canonical field names are fixed, synonym lists hold non-empty
// strings.
const mappingProfileSchema = `{
  "type": "object",
  "required": ["portal", "synonyms"],
  "properties": {
    "portal": {"type": "string", "minLength": 1},
    "synonyms": {
      "type": "object",
      "propertyNames": {
        "enum": ["name", "first_name", "last_name", "email", "phone",
                 "city", "state", "zipcode", "country", "industry"]
      },
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string", "minLength": 1}
      }
    }
  },
  "additionalProperties": false
}`

var profileSchema = jsonschema.MustCompileString("mapping_profile.json", mappingProfileSchema)

// LoadMappingProfile loads and validates profile_<code>.yaml from dir.
func LoadMappingProfile(dir, code string) (*MappingProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(dir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load mapping profile %q: %w", code, err)
	}
	profile, err := parseMappingProfile(data)
	if err != nil {
		return nil, fmt.Errorf("mapping profile %q: %w", code, err)
	}
	if profile.Portal == "" {
		profile.Portal = code
	}
	return profile, nil
}

// LoadAllMappingProfiles loads every profile_*.yaml in dir, keyed by portal
// code.
func LoadAllMappingProfiles(dir string) (map[string]*MappingProfile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*MappingProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		profile, err := parseMappingProfile(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if profile.Portal == "" {
			base := strings.TrimSuffix(filepath.Base(path), ".yaml")
			profile.Portal = strings.TrimPrefix(base, "profile_")
		}
		profiles[profile.Portal] = profile
	}
	return profiles, nil
}

// parseMappingProfile unmarshals the YAML and checks it against the profile
// schema. Validation goes through a JSON round-trip since the schema engine
// operates on JSON-shaped values.
func parseMappingProfile(data []byte) (*MappingProfile, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode for validation: %w", err)
	}
	var jsonShaped any
	if err := json.Unmarshal(encoded, &jsonShaped); err != nil {
		return nil, err
	}
	if err := profileSchema.Validate(jsonShaped); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var profile MappingProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &profile, nil
}
