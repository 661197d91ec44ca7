package scene

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"go.viam.com/pushpull/logging"
)

// Read reads a scene from the given file, expanding environment variables first.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a scene from the given reader and specifies where, if applicable, the file the
// reader originated from. Files ending in .json or .json5 are read as JSON5, so they may carry
// comments and unquoted keys; anything else is read as YAML, which JSON is a subset of.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".json", ".json5":
		err = json5.Unmarshal(raw, &generic)
	default:
		// yaml.v3 follows YAML 1.2, so keys like y and n stay strings.
		err = yaml.Unmarshal(raw, &generic)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode scene %q", originalPath)
	}

	// Round trip through JSON so the json tags on Config apply to both formats.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode scene %q", originalPath)
	}
	cfg := Config{}
	if err := json.Unmarshal(asJSON, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode scene %q", originalPath)
	}
	cfg.FilePath = originalPath

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid scene %q", originalPath)
	}
	logger.Debugw("read scene",
		"path", originalPath,
		"transforms", len(cfg.Transforms),
		"curves", len(cfg.Curves),
		"constraints", len(cfg.Constraints),
	)
	return &cfg, nil
}
