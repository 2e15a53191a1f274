// Package schema validates CALL and CALLRESULT payloads against the JSON
// Schema files shipped for each protocol version. Schemas live on disk as
// <root>/<version-group>/<direction>/<Action>.json and compiled schemas are
// cached per action.
package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// Direction selects the request or response schema set for an action.
type Direction string

const (
	Request  Direction = "request"
	Response Direction = "response"
)

// Validator checks a payload for an action under a protocol version. A
// failure is reported as a *ocpp.CallError (FormatViolation family) ready to
// send; any other error is an internal validator fault.
type Validator interface {
	Validate(msgID, action string, payload json.RawMessage, proto string, dir Direction) error
}

// Noop accepts everything; used when schema validation is disabled.
type Noop struct{}

func (Noop) Validate(string, string, json.RawMessage, string, Direction) error { return nil }

const cacheSize = 256

// DirValidator compiles schemas from a directory tree.
type DirValidator struct {
	root   string
	strict bool // fail when no schema file exists for an action
	cache  *lru.Cache[string, *jsonschema.Schema]
}

// NewDirValidator creates a validator rooted at dir. When strict is false a
// missing schema file passes the payload through with a warning.
func NewDirValidator(dir string, strict bool) (*DirValidator, error) {
	cache, err := lru.New[string, *jsonschema.Schema](cacheSize)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("schema: root %s: %w", dir, err)
	}
	return &DirValidator{root: dir, strict: strict, cache: cache}, nil
}

func (v *DirValidator) Validate(msgID, action string, payload json.RawMessage, proto string, dir Direction) error {
	group := ocpp.VersionGroup(proto)
	if group == "" {
		return ocpp.NewCallError(msgID, ocpp.ErrRpcFrameworkError,
			fmt.Sprintf("no schema set for protocol %q", proto))
	}

	sch, err := v.load(group, dir, action)
	if err != nil {
		if os.IsNotExist(err) {
			if v.strict {
				return ocpp.NewCallError(msgID, ocpp.ErrNotSupported,
					fmt.Sprintf("no %s schema for action %s", dir, action))
			}
			slog.Warn("schema: no schema file, passing payload through",
				"action", action, "direction", string(dir), "group", group)
			return nil
		}
		return fmt.Errorf("schema: load %s/%s/%s: %w", group, dir, action, err)
	}

	var doc any
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ocpp.NewCallError(msgID, ocpp.ErrFormatViolation,
			fmt.Sprintf("payload for %s is not valid JSON", action))
	}
	if err := sch.Validate(doc); err != nil {
		return ocpp.NewCallError(msgID, ocpp.ErrFormatViolation,
			fmt.Sprintf("payload for %s failed schema validation: %v", action, err))
	}
	return nil
}

func (v *DirValidator) load(group string, dir Direction, action string) (*jsonschema.Schema, error) {
	key := group + "/" + string(dir) + "/" + action
	if sch, ok := v.cache.Get(key); ok {
		return sch, nil
	}

	path := filepath.Join(v.root, group, string(dir), action+".json")
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	sch, err := jsonschema.Compile(path)
	if err != nil {
		return nil, err
	}
	v.cache.Add(key, sch)
	return sch, nil
}
