package wire

import "encoding/json"

// PresenceUpdate is the server's report of who is online in a room.
// Each update is treated as the full current set and replaces the
// previous one wholesale; whether the server ever sends deltas is a
// server-side question this client does not try to answer.
type PresenceUpdate struct {
	Type  string `json:"type"`
	Users []any  `json:"users"`
	Count int    `json:"count"`
}

// DecodePresence parses a presence_update frame.
func DecodePresence(data []byte) (PresenceUpdate, error) {
	var update PresenceUpdate
	err := json.Unmarshal(data, &update)
	return update, err
}

// UserIDs returns the online user identifiers as strings.
func (p PresenceUpdate) UserIDs() []string {
	ids := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		if s := stringify(u); s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}
