package addon

import (
	"github.com/dshills/addonhost/internal/capability"
)

// Record is the manager's view of one addon. Records are owned by the
// Manager and only touched under its lock.
type Record struct {
	State       State
	Path        string
	ContentHash uint64
	Definition  *Definition

	handle Handle
	Range  capability.AddressRange

	// Persisted preferences.
	Enabled             bool
	PausingUpdates      bool
	DisabledUntilUpdate bool
	AllowPrereleases    bool
	Favorite            bool

	// MatchSignature is set on placeholders created from the policy before
	// any binary with the signature was scanned.
	MatchSignature uint32

	CheckingForUpdate   bool
	CheckedForUpdate    bool
	WaitingForUnload    bool
	FlaggedForUninstall bool
	FlaggedForDisable   bool
	FlaggedForEnable    bool
	NotifiedDisabled    bool

	// known is set when a policy entry for the signature existed.
	known bool
	// loadAfterCheck defers a load until the running update check ends.
	loadAfterCheck bool
	// updateFound is set when a check downloaded a newer build.
	updateFound bool
	// volatileChecked is set once the volatile gate was evaluated.
	volatileChecked bool
	// vanished is set when the file disappeared while mapped.
	vanished bool
}

// Signature returns the definition signature or the placeholder signature.
func (r *Record) Signature() uint32 {
	if r.Definition != nil {
		return r.Definition.Signature
	}
	return r.MatchSignature
}

// Name returns the addon name, falling back to the path.
func (r *Record) Name() string {
	if r.Definition != nil {
		return r.Definition.Name
	}
	return r.Path
}

// Info is a read-only snapshot of a Record.
type Info struct {
	Path                string                  `json:"path"`
	State               string                  `json:"state"`
	Signature           uint32                  `json:"signature"`
	Name                string                  `json:"name"`
	Version             string                  `json:"version,omitempty"`
	Author              string                  `json:"author,omitempty"`
	Description         string                  `json:"description,omitempty"`
	Provider            string                  `json:"provider,omitempty"`
	Hotloadable         bool                    `json:"hotloadable"`
	Range               capability.AddressRange `json:"-"`
	Enabled             bool                    `json:"enabled"`
	PausingUpdates      bool                    `json:"pausing_updates"`
	DisabledUntilUpdate bool                    `json:"disabled_until_update"`
	AllowPrereleases    bool                    `json:"allow_prereleases"`
	Favorite            bool                    `json:"favorite"`
	CheckingForUpdate   bool                    `json:"checking_for_update"`
	WaitingForUnload    bool                    `json:"waiting_for_unload"`
	FlaggedForUninstall bool                    `json:"flagged_for_uninstall"`

	state State
}

// StateValue returns the record state.
func (i Info) StateValue() State {
	return i.state
}

func (r *Record) info() Info {
	in := Info{
		Path:                r.Path,
		State:               r.State.String(),
		Signature:           r.Signature(),
		Name:                r.Name(),
		Range:               r.Range,
		Enabled:             r.Enabled,
		PausingUpdates:      r.PausingUpdates,
		DisabledUntilUpdate: r.DisabledUntilUpdate,
		AllowPrereleases:    r.AllowPrereleases,
		Favorite:            r.Favorite,
		CheckingForUpdate:   r.CheckingForUpdate,
		WaitingForUnload:    r.WaitingForUnload,
		FlaggedForUninstall: r.FlaggedForUninstall,
		state:               r.State,
	}
	if d := r.Definition; d != nil {
		in.Version = d.Version.String()
		in.Author = d.Author
		in.Description = d.Description
		in.Provider = d.Provider.String()
		in.Hotloadable = d.Hotloadable()
	}
	return in
}
