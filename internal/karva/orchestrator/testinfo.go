package orchestrator

import (
	"fmt"

	"github.com/albertocavalcante/karva/internal/karva"
	"github.com/albertocavalcante/karva/internal/karva/cache"
	"github.com/albertocavalcante/karva/internal/karva/collect"
	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/partition"
)

// CollectTestInfos runs the collector once to compute the flat list of
// (test path, weight input) the partitioner needs (spec §4.8/§4.9 step 2:
// "collect tests once to compute partitions"), weighting each test by a
// previous run's duration when available, else AST body length.
func CollectTestInfos(proj *karva.Project, cacheDir string) ([]partition.TestInfo, error) {
	result, err := collect.Collect(proj)
	if err != nil {
		return nil, err
	}

	durations, _ := cache.ReadRecentDurations(cacheDir)

	var infos []partition.TestInfo
	walkPackage(result.Root, func(mod *discover.Module, t *discover.TestFunction) {
		qualified := fmt.Sprintf("%s::%s", mod.Path.Dotted, t.Name)
		info := partition.TestInfo{Path: qualified, BodyLength: bodyLength(t)}
		if d, ok := durations[qualified]; ok {
			info.HasDuration = true
			info.DurationMicros = d
		}
		infos = append(infos, info)
	})
	return infos, nil
}

func walkPackage(pkg *discover.Package, visit func(*discover.Module, *discover.TestFunction)) {
	for _, mod := range pkg.Modules {
		for _, t := range mod.Tests {
			visit(mod, t)
		}
	}
	for _, sub := range pkg.Packages {
		walkPackage(sub, visit)
	}
}

// bodyLength uses the statement count of the function body as the AST
// complexity proxy spec §4.8 calls for, in place of Rust's byte-span
// length — go.starlark.net's DefStmt carries no byte-length field, but
// statement count is an equally serviceable proxy for relative test
// complexity when no duration history exists.
func bodyLength(t *discover.TestFunction) int {
	if t.Def == nil {
		return 1
	}
	return len(t.Def.Body) + 1
}
