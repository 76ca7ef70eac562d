// Package version holds build information set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/LastGentlman/chandra/version.GitRelease=v0.1.0"
package version

import (
	"runtime"
)

var (
	// GitRelease is the release tag.
	GitRelease = "dev"
	// GitCommit is the commit hash.
	GitCommit = "unknown"
	// GitCommitDate is the commit date.
	GitCommitDate = "unknown"
)

// Info is the build description printed by `chandra version`.
type Info struct {
	Release    string `json:"release" yaml:"release"`
	Commit     string `json:"commit" yaml:"commit"`
	CommitDate string `json:"commit_date" yaml:"commit_date"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	Platform   string `json:"platform" yaml:"platform"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Release:    GitRelease,
		Commit:     GitCommit,
		CommitDate: GitCommitDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the release with a short commit, e.g. "v0.1.0 (3f2a9c1)".
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return i.Release + " (" + commit + ")"
}
