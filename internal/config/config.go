// Package config loads and validates the JSON configuration file of
// spec.md §6, plus the SPEC_FULL.md backward-compatible additions
// (storage.backend, policy.cel_rules, server.jwt_public_key_path).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// LabelSpec is the {level, categories?} shape used throughout the
// config file for configured labels.
type LabelSpec struct {
	Level      string   `json:"level"`
	Categories []string `json:"categories,omitempty"`
}

// ToLabel converts a LabelSpec into a lattice.Label.
func (s LabelSpec) ToLabel() lattice.Label {
	return lattice.NewLabel(s.Level, s.Categories)
}

// ToolsConfig configures the fetcher/parser collaborators.
type ToolsConfig struct {
	StoragePath    string   `json:"storage_path"`
	TrustedDomains []string `json:"trusted_domains"`
	BlockedDomains []string `json:"blocked_domains"`
	UserAgent      string   `json:"user_agent"`
}

// OllamaConfig configures the local LLM adapter.
type OllamaConfig struct {
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

// OpenAICompatibleConfig configures the external LLM adapter.
type OpenAICompatibleConfig struct {
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

// StorageConfig selects and configures the persistence backend
// (SPEC_FULL.md expansion; optional, defaults to the file backend).
type StorageConfig struct {
	Backend string `json:"backend,omitempty"` // "file" (default), "sqlite", "memory"
}

// PolicyConfig carries the optional supplementary CEL backend rules
// (SPEC_FULL.md expansion).
type PolicyConfig struct {
	CELRules []string `json:"cel_rules,omitempty"`
}

// ServerConfig carries the optional HTTP surface's JWT verification
// key (SPEC_FULL.md expansion). Empty means `serve` is unavailable.
type ServerConfig struct {
	JWTPublicKeyPath string `json:"jwt_public_key_path,omitempty"`
	ListenAddr       string `json:"listen_addr,omitempty"`
}

// Config is the fully parsed configuration file.
type Config struct {
	Lattice            []string               `json:"lattice"`
	UserOutputMax      LabelSpec              `json:"user_output_max"`
	ExternalLLMAllowed []LabelSpec            `json:"external_llm_allowed"`
	Tools              ToolsConfig            `json:"tools"`
	Ollama             OllamaConfig           `json:"ollama"`
	OpenAICompatible   OpenAICompatibleConfig `json:"openai_compatible"`
	Storage            StorageConfig          `json:"storage,omitempty"`
	Policy             PolicyConfig           `json:"policy,omitempty"`
	Server             ServerConfig           `json:"server,omitempty"`
}

// schema validates the structural shape of the config file before
// Go-level decoding, the same "reject malformed config before it
// reaches domain logic" discipline the teacher's firewall package
// applies to tool-call parameters.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["lattice", "user_output_max", "external_llm_allowed", "tools"],
  "properties": {
    "lattice": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "user_output_max": {"$ref": "#/definitions/label"},
    "external_llm_allowed": {"type": "array", "items": {"$ref": "#/definitions/label"}},
    "tools": {
      "type": "object",
      "required": ["storage_path"],
      "properties": {
        "storage_path": {"type": "string"},
        "trusted_domains": {"type": "array", "items": {"type": "string"}},
        "blocked_domains": {"type": "array", "items": {"type": "string"}},
        "user_agent": {"type": "string"}
      }
    },
    "ollama": {
      "type": "object",
      "properties": {
        "model": {"type": "string"},
        "base_url": {"type": "string"}
      }
    },
    "openai_compatible": {
      "type": "object",
      "properties": {
        "model": {"type": "string"},
        "base_url": {"type": "string"}
      }
    },
    "storage": {
      "type": "object",
      "properties": {
        "backend": {"type": "string", "enum": ["file", "sqlite", "memory"]}
      }
    },
    "policy": {
      "type": "object",
      "properties": {
        "cel_rules": {"type": "array", "items": {"type": "string"}}
      }
    },
    "server": {
      "type": "object",
      "properties": {
        "jwt_public_key_path": {"type": "string"},
        "listen_addr": {"type": "string"}
      }
    }
  },
  "definitions": {
    "label": {
      "type": "object",
      "required": ["level"],
      "properties": {
        "level": {"type": "string"},
        "categories": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

var compiledSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("config: compile embedded schema: %v", err))
	}
	compiledSchema = schema
}

// Load reads, schema-validates, and decodes the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	return &cfg, nil
}

// BuildLattice builds the lattice.Lattice described by the config.
func (c *Config) BuildLattice() *lattice.Lattice {
	return lattice.New(c.Lattice)
}

// ExternalLLMAllowedLabels converts the configured whitelist into lattice.Label values.
func (c *Config) ExternalLLMAllowedLabels() []lattice.Label {
	out := make([]lattice.Label, 0, len(c.ExternalLLMAllowed))
	for _, spec := range c.ExternalLLMAllowed {
		out = append(out, spec.ToLabel())
	}
	return out
}
