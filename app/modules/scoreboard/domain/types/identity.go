package scoreboardtypes

import (
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

// IdentityKind classifies a player id once, at ingestion.
type IdentityKind int

const (
	// Anonymous players are bare display names typed in by the host.
	Anonymous IdentityKind = iota
	// Guest players carry a generated guest id.
	Guest
	// Authenticated players map to a registered user account.
	Authenticated
)

func (k IdentityKind) String() string {
	switch k {
	case Guest:
		return "guest"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

var guestPrefixes = []string{"guest_", "guest-"}

// Identity is a player identity. Key is the persisted player id.
type Identity struct {
	Kind       IdentityKind
	key        PlayerID
	userID     UserID
	cachedName string
}

// ParseIdentity classifies a raw player id:
//
//	guest_<id> / guest-<id>    Guest
//	<uuid>:<username>          Authenticated with a cached display name
//	<uuid>                     Authenticated
//	<email address>            Authenticated
//	anything else              Anonymous
func ParseIdentity(raw PlayerID) Identity {
	s := string(raw)
	lower := strings.ToLower(s)
	for _, p := range guestPrefixes {
		if strings.HasPrefix(lower, p) {
			return Identity{Kind: Guest, key: raw, userID: UserID(s)}
		}
	}
	if i := strings.IndexByte(s, ':'); i > 0 {
		if _, err := uuid.Parse(s[:i]); err == nil {
			return Identity{Kind: Authenticated, key: raw, userID: UserID(s[:i]), cachedName: s[i+1:]}
		}
	}
	if _, err := uuid.Parse(s); err == nil && len(s) >= 32 {
		return Identity{Kind: Authenticated, key: raw, userID: UserID(s)}
	}
	if isEmail(s) {
		return Identity{Kind: Authenticated, key: raw, userID: UserID(s)}
	}
	return Identity{Kind: Anonymous, key: raw, cachedName: s}
}

func isEmail(s string) bool {
	if !strings.Contains(s, "@") || strings.ContainsAny(s, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Key is the persisted player id.
func (i Identity) Key() PlayerID { return i.key }

// UserID is the underlying account id for guests and authenticated players.
func (i Identity) UserID() UserID { return i.userID }

// DisplayName is the best known name without consulting the user directory.
func (i Identity) DisplayName() string {
	if i.cachedName != "" {
		return i.cachedName
	}
	return string(i.key)
}

// Renamable reports whether the host may change this identity. Only anonymous
// display names can be renamed.
func (i Identity) Renamable() bool { return i.Kind == Anonymous }
