package domain

// MemberStatus is a user's standing in the channel as reported by the
// platform.
type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

// HasAccess reports whether the user can currently read the channel.
func (s MemberStatus) HasAccess() bool {
	switch s {
	case MemberCreator, MemberAdministrator, MemberMember:
		return true
	default:
		return false
	}
}

// Privileged members are never purged.
func (s MemberStatus) Privileged() bool {
	return s == MemberCreator || s == MemberAdministrator
}
