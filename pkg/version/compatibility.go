// Package version reports the agent's build version and checks it for
// compatibility with the deployment service it talks to, so an agent
// built against a much older or newer protocol revision fails fast
// with a clear error instead of misinterpreting responses.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// maxMinorSkew is the largest minor-version gap, within the same major
// version, that is still considered compatible.
const maxMinorSkew = 2

// Info describes a build's version, populated at link time by the
// agent's cmd/edgeupdate-agent build.
type Info struct {
	GitVersion string
	GitCommit  string
	BuildDate  string
}

// ServerVersion is the subset of the deployment service's reported
// version the compatibility check needs.
type ServerVersion struct {
	Version string
}

// VersionCompatibilityChecker compares the agent's own build version
// against a deployment service's reported version.
type VersionCompatibilityChecker struct {
	clientVersion Info
}

// NewVersionCompatibilityChecker returns a checker for clientVersion.
func NewVersionCompatibilityChecker(clientVersion Info) *VersionCompatibilityChecker {
	return &VersionCompatibilityChecker{clientVersion: clientVersion}
}

// CheckCompatibility returns an error if the client and server versions
// differ by more than maxMinorSkew minor versions within the same
// major version, or belong to different major versions. A nil or
// unparseable version on either side skips the check rather than
// blocking an agent that can't determine compatibility.
func (c *VersionCompatibilityChecker) CheckCompatibility(serverVersion *ServerVersion) error {
	if serverVersion == nil || serverVersion.Version == "" {
		return nil
	}

	clientMajor, clientMinor, err := c.parseVersion(c.clientVersion.GitVersion)
	if err != nil {
		return nil
	}
	serverMajor, serverMinor, err := c.parseVersion(serverVersion.Version)
	if err != nil {
		return nil
	}

	if clientMajor != serverMajor {
		return fmt.Errorf("version incompatibility detected: client major version %d does not match server major version %d", clientMajor, serverMajor)
	}

	skew := clientMinor - serverMinor
	if skew < 0 {
		skew = -skew
	}
	if skew > maxMinorSkew {
		return fmt.Errorf("version incompatibility detected: client minor version %d too far from server minor version %d", clientMinor, serverMinor)
	}
	return nil
}

// parseVersion extracts the major and minor components from a version
// string, tolerating a leading "v", surrounding whitespace, and a
// "-rc.N"-style pre-release suffix on the minor component.
func (c *VersionCompatibilityChecker) parseVersion(s string) (major int, minor int, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")

	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid version %q", s)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid major version in %q: %w", s, err)
	}

	minorPart := parts[1]
	if i := strings.IndexByte(minorPart, '-'); i >= 0 {
		minorPart = minorPart[:i]
	}
	minor, err = strconv.Atoi(minorPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minor version in %q: %w", s, err)
	}

	return major, minor, nil
}
