package visibility

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is the intimacy level of a connection.
type Tier string

const (
	TierNoRelation  Tier = "NO_RELATION"
	TierFriend      Tier = "FRIEND"
	TierCloseFriend Tier = "CLOSE_FRIEND"
	TierSpecial     Tier = "SPECIAL"
)

// Label restricts which tiers may view a moment or story.
type Label string

const (
	LabelFriends          Label = "FRIENDS"
	LabelCloseFriendsOnly Label = "CLOSE_FRIENDS_ONLY"
	LabelSpecialOnly      Label = "SPECIAL_ONLY"
)

var (
	ErrUnknownTier  = errors.New("unknown tier")
	ErrUnknownLabel = errors.New("unknown visibility label")
)

// ConnectedTiers lists the tiers a CONNECTED pair may hold, lowest first.
var ConnectedTiers = []Tier{TierFriend, TierCloseFriend, TierSpecial}

// Labels lists every visibility label, widest audience first.
var Labels = []Label{LabelFriends, LabelCloseFriendsOnly, LabelSpecialOnly}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierNoRelation, TierFriend, TierCloseFriend, TierSpecial:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// ParseLabel parses a visibility label, case-insensitively.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	switch l {
	case LabelFriends, LabelCloseFriendsOnly, LabelSpecialOnly:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// IsConnected reports whether t is a tier a CONNECTED pair may hold.
func (t Tier) IsConnected() bool {
	return t == TierFriend || t == TierCloseFriend || t == TierSpecial
}

func (t Tier) String() string  { return string(t) }
func (l Label) String() string { return string(l) }
