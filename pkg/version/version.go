package version

// gitVersion, gitCommit, and buildDate are set at build time via
// -ldflags, e.g.:
//
//	go build -ldflags "-X github.com/edgeupdate/agent/pkg/version.gitVersion=v1.2.3 \
//	  -X github.com/edgeupdate/agent/pkg/version.gitCommit=$(git rev-parse HEAD)"
var (
	gitVersion = "dev"
	gitCommit  = "unknown"
	buildDate  = "unknown"
)

// Get returns the build's version Info, as populated by -ldflags or the
// "dev"/"unknown" placeholders for a non-release build.
func Get() Info {
	return Info{GitVersion: gitVersion, GitCommit: gitCommit, BuildDate: buildDate}
}

// String formats Info for display on the command line.
func (i Info) String() string {
	return i.GitVersion
}
