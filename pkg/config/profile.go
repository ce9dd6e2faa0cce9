package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

// SupportedProfileVersions is the profile format range this build reads.
const SupportedProfileVersions = ">= 1.0.0, < 2.0.0"

const profileSchemaURL = "https://conditions.schemas.local/config/profile.schema.json"

// ErrInvalidProfile is returned when a profile fails schema or version checks.
var ErrInvalidProfile = errors.New("config: invalid verification profile")

//go:embed profile.schema.json
var profileSchemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Profile is a named verification policy loaded from YAML.
type Profile struct {
	Version      string      `yaml:"version" json:"version"`
	Name         string      `yaml:"name" json:"name"`
	MaxCost      uint64      `yaml:"max_cost,omitempty" json:"max_cost,omitempty"`
	AllowedTypes []string    `yaml:"allowed_types,omitempty" json:"allowed_types,omitempty"`
	Rules        []Rule      `yaml:"rules,omitempty" json:"rules,omitempty"`
	CostBudget   *CostBudget `yaml:"cost_budget,omitempty" json:"cost_budget,omitempty"`
}

// Rule is a named CEL admission expression.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// CostBudget limits the verification cost spent per second.
type CostBudget struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// DefaultProfile admits every condition type up to DefaultMaxCost.
func DefaultProfile() *Profile {
	return &Profile{
		Version: "1.0.0",
		Name:    "default",
		MaxCost: DefaultMaxCost,
	}
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes a YAML profile, validates it against the embedded
// JSON Schema and checks the format version.
func ParseProfile(data []byte) (*Profile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	v, err := semver.NewVersion(profile.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %w", ErrInvalidProfile, profile.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedProfileVersions)
	if err != nil {
		return nil, err
	}
	if !constraint.Check(v) {
		return nil, fmt.Errorf("%w: version %s not in %s", ErrInvalidProfile, v, SupportedProfileVersions)
	}
	if profile.MaxCost == 0 {
		profile.MaxCost = DefaultMaxCost
	}
	return &profile, nil
}

// AllowedKinds resolves AllowedTypes. An empty list allows every type.
func (p *Profile) AllowedKinds() (conditions.KindSet, error) {
	if len(p.AllowedTypes) == 0 {
		return conditions.NewKindSet(
			conditions.PreimageSha256,
			conditions.PrefixSha256,
			conditions.ThresholdSha256,
			conditions.RsaSha256,
			conditions.Ed25519Sha256,
		), nil
	}
	return conditions.KindSetFromNames(strings.Join(p.AllowedTypes, ","))
}

func validateDocument(doc any) error {
	schema, err := profileSchema()
	if err != nil {
		return err
	}
	// Round trip through JSON so numbers reach the validator as json.Number.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return nil
}

func profileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(profileSchemaURL, strings.NewReader(profileSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("profile schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(profileSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("profile schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}
