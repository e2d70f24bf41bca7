// Package project lays out the files of a generated problem and writes them
// through a Materializer, so that rendering stays free of filesystem access.
//
// Every problem lives in its own directory:
//
//	models/<name>/ocp.hpp
//	models/<name>/main.cpp
//	models/<name>/CMakeLists.txt
//	models/<name>/go/ocp.go
//
// The simulator writes its logs to simulation_result/ beside models/.
package project

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/njchilds90/autogenu/emit"
	"github.com/njchilds90/autogenu/solver"
)

var (
	ErrNoTargets = errors.New("project: no target selected")
	ErrBadPath   = errors.New("project: path escapes the project root")
)

const (
	ModelsDir     = "models"
	ResultsDir    = "simulation_result"
	HeaderFile    = "ocp.hpp"
	MainFile      = "main.cpp"
	CMakeFile     = "CMakeLists.txt"
	GoPackageFile = "go/ocp.go"
)

// Options are the build switches exported to CMake.
type Options struct {
	Vectorize bool `yaml:"vectorize" json:"vectorize"`
	Python    bool `yaml:"python" json:"python"`
}

// Dir is the directory of a problem, relative to the project root.
func Dir(name string) string { return path.Join(ModelsDir, name) }

// LogFiles are the simulator outputs of a problem: state, input and
// optimality-error trajectories, relative to the project root.
func LogFiles(name string) []string {
	return []string{
		path.Join(ResultsDir, name+"_x.log"),
		path.Join(ResultsDir, name+"_u.log"),
		path.Join(ResultsDir, name+"_opterr.log"),
	}
}

// File is one rendered artifact. Path is slash-separated and relative to the
// project root.
type File struct {
	Path string
	Data []byte
}

// Artifacts are every file of one problem, sorted by path.
type Artifacts struct {
	Name  string
	Files []File
}

// Paths lists the artifact paths.
func (a *Artifacts) Paths() []string {
	out := make([]string, len(a.Files))
	for i, f := range a.Files {
		out[i] = f.Path
	}
	return out
}

// Lookup returns the contents of the artifact at p.
func (a *Artifacts) Lookup(p string) ([]byte, bool) {
	for _, f := range a.Files {
		if f.Path == p {
			return f.Data, true
		}
	}
	return nil, false
}

// Render produces the artifacts of u for the selected targets. The C++
// target also gets main.cpp and CMakeLists.txt when ep is non-nil. Every file
// is rendered before any is returned.
func Render(u *emit.Unit, ep *solver.EntryPoint, targets []emit.Target, opts Options) (*Artifacts, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	dir := Dir(u.Name)
	a := &Artifacts{Name: u.Name}
	for _, target := range targets {
		src, err := emit.Render(u, target)
		if err != nil {
			return nil, err
		}
		switch target {
		case emit.TargetCPP:
			a.Files = append(a.Files, File{Path: path.Join(dir, HeaderFile), Data: src})
			if ep == nil {
				continue
			}
			entry, err := ep.RenderMain()
			if err != nil {
				return nil, fmt.Errorf("project: render %s: %w", MainFile, err)
			}
			a.Files = append(a.Files,
				File{Path: path.Join(dir, MainFile), Data: entry},
				File{Path: path.Join(dir, CMakeFile), Data: RenderCMake(u.Name, opts)})
		case emit.TargetGo:
			a.Files = append(a.Files, File{Path: path.Join(dir, GoPackageFile), Data: src})
		}
	}
	sort.Slice(a.Files, func(i, j int) bool { return a.Files[i].Path < a.Files[j].Path })
	return a, nil
}

// Materializer writes artifacts somewhere. Implementations overwrite files
// that already exist.
type Materializer interface {
	Materialize(ctx context.Context, a *Artifacts) error
}
