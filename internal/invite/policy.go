package invite

import "fmt"

// Policy decides what Issue does when the user already holds an active
// session.
type Policy string

const (
	// PolicyAllow lets sessions for the same user coexist.
	PolicyAllow Policy = "allow"
	// PolicyReject refuses the new issue with domain.ErrSessionActive.
	PolicyReject Policy = "reject"
	// PolicyReplace revokes the existing sessions before minting a new link.
	PolicyReplace Policy = "replace"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAllow, PolicyReject, PolicyReplace:
		return p, nil
	case "":
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("unknown session policy %q", s)
	}
}
