package command

import (
	"fmt"
	"log/slog"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const versionLogPrefix = "command:version"

// ProtocolVersion scopes the set of command types a peer understands.
type ProtocolVersion int

const (
	VersionUnknown ProtocolVersion = iota
	Version1_0_2
	Version1_0_3
)

func (v ProtocolVersion) String() string {
	switch v {
	case Version1_0_2:
		return "1.0.2"
	case Version1_0_3:
		return "1.0.3"
	default:
		return "unknown"
	}
}

// versionConstraint maps a range of agent releases to the protocol they speak.
// Ordered newest first; the first match wins.
type versionConstraint struct {
	version    ProtocolVersion
	constraint *masterminds.Constraints
}

var versionConstraints = []versionConstraint{
	{Version1_0_3, mustConstraint(">= 1.0.3")},
	{Version1_0_2, mustConstraint(">= 1.0.2, < 1.0.3")},
}

func mustConstraint(s string) *masterminds.Constraints {
	c, err := masterminds.NewConstraint(s)
	if err != nil {
		panic(fmt.Sprintf("%s - invalid constraint %q: %v", versionLogPrefix, s, err))
	}
	return c
}

// ProtocolVersionFor resolves an agent release string (e.g. "1.0.3-SNAPSHOT") to the
// protocol version it speaks. Prerelease and build metadata are ignored, so a
// snapshot of 1.0.3 speaks the 1.0.3 protocol. Unparseable or too-old releases
// resolve to VersionUnknown.
func ProtocolVersionFor(agentVersion string) ProtocolVersion {
	sv, err := masterminds.NewVersion(strings.TrimSpace(agentVersion))
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - unparseable agent version %q: %v", versionLogPrefix, agentVersion, err))
		return VersionUnknown
	}
	release := masterminds.New(sv.Major(), sv.Minor(), sv.Patch(), "", "")

	for _, vc := range versionConstraints {
		if vc.constraint.Check(release) {
			return vc.version
		}
	}
	return VersionUnknown
}
