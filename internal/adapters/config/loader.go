// Package config provides the configuration loader for memo.
package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/adapters/fs"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is the build description looked up in the working
// directory.
const DefaultFilename = "memo.yaml"

var validKinds = map[string]domain.NodeKind{
	"source":     domain.KindSource,
	"dependency": domain.KindDependency,
	"build":      domain.KindBuild,
	"artifact":   domain.KindArtifact,
}

// Loader implements ports.ConfigLoader for memo.yaml files. Steps become
// graph nodes in dependency order; source contexts are fingerprinted with
// the ignore rules found next to the configuration file.
type Loader struct {
	Filename      string
	fingerprinter ports.Fingerprinter
}

// NewLoader creates a loader reading DefaultFilename.
func NewLoader(fingerprinter ports.Fingerprinter) *Loader {
	return &Loader{
		Filename:      DefaultFilename,
		fingerprinter: fingerprinter,
	}
}

// Load reads the configuration from the given working directory and
// assembles the build graph.
func (l *Loader) Load(ctx context.Context, cwd string) (*domain.Graph, error) {
	path := filepath.Join(cwd, l.Filename)
	//nolint:gosec // Path is provided by the user invoking the build
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read config file")
	}

	var memofile Memofile
	if err := yaml.Unmarshal(data, &memofile); err != nil {
		return nil, zerr.Wrap(err, "failed to parse config file")
	}

	if err := validateSteps(memofile.Steps); err != nil {
		return nil, err
	}

	order, err := dependencyOrder(memofile.Steps)
	if err != nil {
		return nil, err
	}

	rules := fs.LoadRules(cwd)
	graph := domain.NewGraph()
	ids := make(map[string]domain.NodeID, len(order))

	for _, name := range order {
		dto := memofile.Steps[name]

		var contextFP digest.Digest
		if dto.Context != "" {
			contextFP, err = l.fingerprinter.FingerprintPath(ctx, filepath.Join(cwd, dto.Context), rules)
			if err != nil {
				return nil, err
			}
		}

		inputs := make([]domain.NodeID, len(dto.Inputs))
		for i, dep := range dto.Inputs {
			inputs[i] = ids[dep]
		}

		id, err := graph.AddNode(validKinds[kindOf(dto)], name, inputs, dto.Run, contextFP)
		if err != nil {
			return nil, err
		}
		ids[name] = id
	}

	return graph, nil
}

func kindOf(dto StepDTO) string {
	if dto.Kind == "" {
		return "build"
	}
	return dto.Kind
}

func validateSteps(steps map[string]StepDTO) error {
	if len(steps) == 0 {
		return zerr.New("config defines no steps")
	}
	for name, dto := range steps {
		if _, ok := validKinds[kindOf(dto)]; !ok {
			return zerr.With(zerr.With(zerr.New("unknown step kind"), "step", name), "kind", dto.Kind)
		}
		for _, dep := range dto.Inputs {
			if _, ok := steps[dep]; !ok {
				return zerr.With(zerr.With(zerr.New("missing dependency"), "step", name), "missing_dependency", dep)
			}
		}
	}
	return nil
}

// dependencyOrder returns the step names such that every step follows all
// of its inputs. Names on the same level stay in lexicographic order so
// node ids are stable across loads of the same file.
func dependencyOrder(steps map[string]StepDTO) ([]string, error) {
	names := make([]string, 0, len(steps))
	for name := range steps {
		names = append(names, name)
	}
	slices.Sort(names)

	const (
		white = iota
		gray
		black
	)
	state := make(map[string]int, len(steps))
	order := make([]string, 0, len(steps))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case black:
			return nil
		case gray:
			return domain.Tag(domain.ErrCycleDetected, "step", name)
		}
		state[name] = gray
		deps := append([]string(nil), steps[name].Inputs...)
		slices.Sort(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
