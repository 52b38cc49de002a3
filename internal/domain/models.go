package domain

// Lst is a bitset of the membership lists a contact entry can be on.
type Lst uint8

const (
	ListFL Lst = 1 << iota // forward list: contacts the owner sees
	ListAL                 // allow list: may see the owner's presence
	ListBL                 // block list
	ListRL                 // reverse list: users that have the owner on their FL
	ListPL                 // pending list: adds awaiting confirmation
)

// lstLabels is the static label table for list flags. Kept separate from
// the flag type so values stay plain integers.
var lstLabels = map[Lst]string{
	ListFL: "FL",
	ListAL: "AL",
	ListBL: "BL",
	ListRL: "RL",
	ListPL: "PL",
}

// Has reports whether every bit in other is set on l.
func (l Lst) Has(other Lst) bool {
	return l&other == other
}

func (l Lst) String() string {
	s := ""
	for _, f := range []Lst{ListFL, ListAL, ListBL, ListRL, ListPL} {
		if l.Has(f) {
			if s != "" {
				s += ","
			}
			s += lstLabels[f]
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// ListFromLabel resolves a wire label ("FL", "AL", ...) to its flag.
func ListFromLabel(label string) (Lst, bool) {
	for f, l := range lstLabels {
		if l == label {
			return f, true
		}
	}
	return 0, false
}

// Substatus is the enumerated presence state of a user.
type Substatus int

const (
	SubstatusOffline Substatus = iota
	SubstatusOnline
	SubstatusBusy
	SubstatusIdle
	SubstatusBRB
	SubstatusAway
	SubstatusOnPhone
	SubstatusLunch
	SubstatusInvisible
)

var substatusNames = map[Substatus]string{
	SubstatusOffline:   "offline",
	SubstatusOnline:    "online",
	SubstatusBusy:      "busy",
	SubstatusIdle:      "idle",
	SubstatusBRB:       "brb",
	SubstatusAway:      "away",
	SubstatusOnPhone:   "phone",
	SubstatusLunch:     "lunch",
	SubstatusInvisible: "invisible",
}

func (s Substatus) String() string {
	if n, ok := substatusNames[s]; ok {
		return n
	}
	return "offline"
}

// ParseSubstatus resolves a substatus name to its enumerated value.
func ParseSubstatus(name string) (Substatus, bool) {
	for s, n := range substatusNames {
		if n == name {
			return s, true
		}
	}
	return SubstatusOffline, false
}

// IsOfflineish reports whether the state should be presented as offline to
// observers.
func (s Substatus) IsOfflineish() bool {
	return s == SubstatusOffline || s == SubstatusInvisible
}

// Status is the live presence of a user: display name, free-text message,
// current media descriptor, and the enumerated substatus.
type Status struct {
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Media     string    `json:"media"`
	Substatus Substatus `json:"substatus"`
}

// User is the head record for an account. Detail is attached while the user
// has at least one live session and cleared when the last one closes.
type User struct {
	UUID     string `json:"uuid"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Status   Status `json:"status"`

	Detail *UserDetail `json:"-"`
}

// UserDetail is the full contact/group/settings graph for a logged-in user.
type UserDetail struct {
	Settings map[string]string
	Groups   map[string]*Group
	Contacts map[string]*Contact
}

// NewUserDetail returns an empty detail with all maps allocated.
func NewUserDetail() *UserDetail {
	return &UserDetail{
		Settings: make(map[string]string),
		Groups:   make(map[string]*Group),
		Contacts: make(map[string]*Contact),
	}
}

// BLP returns the user's block-list policy setting, defaulting to the open
// "AL" policy when unset.
func (d *UserDetail) BLP() string {
	if v, ok := d.Settings["BLP"]; ok && v != "" {
		return v
	}
	return "AL"
}

// DefaultGroupID is the implicit group every contact without explicit
// membership belongs to. It always exists and can never be removed.
const DefaultGroupID = "0"

// MaxGroupNameLength is the longest group name the protocols accept.
const MaxGroupNameLength = 61

// Group is a user-owned contact group.
type Group struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsFavorite bool   `json:"is_favorite"`
}

// Contact is a directed edge from the owning user to the head user.
// Groups holds explicit group ids and is meaningful only under FL.
// Status is the owner's cached view of the head's presence, filtered by the
// head's block rules.
type Contact struct {
	UUID            string              `json:"uuid"`
	Name            string              `json:"name"`
	Lists           Lst                 `json:"lists"`
	Groups          map[string]struct{} `json:"-"`
	IsMessengerUser bool                `json:"is_messenger_user"`
	Status          Status              `json:"status"`
}

// NewContact returns a contact edge to the given head with no lists set.
func NewContact(headUUID, name string) *Contact {
	return &Contact{
		UUID:   headUUID,
		Name:   name,
		Groups: make(map[string]struct{}),
	}
}
