package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
)

var errBadRequest = errors.New("bad request")

// actionResponse acknowledges a queued action.
type actionResponse struct {
	Signature string `json:"signature"`
	Path      string `json:"path"`
	Action    string `json:"action"`
	Queued    bool   `json:"queued"`
}

// preferences is the PATCH body. Absent fields are left unchanged.
type preferences struct {
	PausingUpdates      *bool `json:"pausing_updates"`
	AllowPrereleases    *bool `json:"allow_prereleases"`
	Favorite            *bool `json:"favorite"`
	DisabledUntilUpdate *bool `json:"disabled_until_update"`
}

// resolve maps the {signature} route variable to a tracked path.
func (s *Server) resolve(r *http.Request) (uint32, string, error) {
	raw := mux.Vars(r)["signature"]
	sig, err := addon.ParseSignature(raw)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	path, ok := s.manager.PathForSignature(sig)
	if !ok {
		return 0, "", fmt.Errorf("%s: %w", addon.SignatureString(sig), addon.ErrNotTracked)
	}
	return sig, path, nil
}

func (s *Server) listAddons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Records())
}

func (s *Server) getAddon(w http.ResponseWriter, r *http.Request) {
	_, path, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	info, ok := s.manager.Record(path)
	if !ok {
		writeError(w, fmt.Errorf("%s: %w", path, addon.ErrNotTracked))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) requestAction(w http.ResponseWriter, r *http.Request) {
	sig, path, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	action := mux.Vars(r)["action"]

	if action == "check" {
		err = s.manager.CheckForUpdate(path)
	} else if verb, ok := addon.ParseVerb(action); ok {
		err = s.manager.Request(path, verb)
	} else {
		err = fmt.Errorf("%w: unknown action %q", errBadRequest, action)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"addon":  addon.SignatureString(sig),
		"action": action,
	}).Info("addon action requested")
	writeJSON(w, http.StatusAccepted, actionResponse{
		Signature: addon.SignatureString(sig),
		Path:      path,
		Action:    action,
		Queued:    true,
	})
}

func (s *Server) setPreferences(w http.ResponseWriter, r *http.Request) {
	_, path, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body preferences
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	set := []struct {
		pref  addon.Preference
		value *bool
	}{
		{addon.PrefPausingUpdates, body.PausingUpdates},
		{addon.PrefAllowPrereleases, body.AllowPrereleases},
		{addon.PrefFavorite, body.Favorite},
		{addon.PrefDisabledUntilUpdate, body.DisabledUntilUpdate},
	}
	for _, p := range set {
		if p.value == nil {
			continue
		}
		if err := s.manager.SetPreference(path, p.pref, *p.value); err != nil {
			writeError(w, err)
			return
		}
	}

	info, _ := s.manager.Record(path)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) rescan(w http.ResponseWriter, r *http.Request) {
	s.manager.Rescan()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) listNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.notices.Pending())
}

func (s *Server) dismissNotice(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !s.notices.Dismiss(key) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("no pending notice %q", key)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
