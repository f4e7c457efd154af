// Package catalog ships the static list of known AWS API calls and the
// subset of them that CloudTrail actually records, embedded at build time so
// the binary has no runtime dependency on external data files.
package catalog

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"strings"

	"github.com/cloudtracker/cloudtracker/pkg/action"
)

//go:embed data/aws_api_list.txt data/cloudtrail_supported_actions.txt
var dataFS embed.FS

// Catalog holds the universe of known actions and the subset CloudTrail logs.
type Catalog struct {
	knownActions     map[action.Action]bool
	cloudtrailLogged map[action.Action]bool
}

// Load reads the embedded data files and builds a Catalog. It never fails on
// well-formed embedded data; the error return exists for malformed lines.
func Load() (*Catalog, error) {
	known, err := readActionList("data/aws_api_list.txt")
	if err != nil {
		return nil, fmt.Errorf("catalog: loading aws api list: %w", err)
	}
	logged, err := readActionList("data/cloudtrail_supported_actions.txt")
	if err != nil {
		return nil, fmt.Errorf("catalog: loading cloudtrail supported actions: %w", err)
	}
	return &Catalog{knownActions: known, cloudtrailLogged: logged}, nil
}

func readActionList(path string) (map[action.Action]bool, error) {
	raw, err := dataFS.ReadFile(path)
	if err != nil {
		return nil, err
	}

	actions := make(map[action.Action]bool)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		service, event, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed line %q in %s, expected service:event", line, path)
		}
		actions[action.Normalize(service, event)] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

// Known reports whether a is a recognized AWS API action.
func (c *Catalog) Known(a action.Action) bool {
	return c.knownActions[a]
}

// Actions returns every known action, in no particular order.
func (c *Catalog) Actions() []action.Action {
	out := make([]action.Action, 0, len(c.knownActions))
	for a := range c.knownActions {
		out = append(out, a)
	}
	return out
}

// CloudTrailLogged reports whether CloudTrail would have recorded a, had it
// been performed. Actions outside this set are granted-but-unauditable: the
// diff presenter labels them GrantedNotLogged instead of assuming they were
// never used.
func (c *Catalog) CloudTrailLogged(a action.Action) bool {
	return c.cloudtrailLogged[a]
}
