package catalog

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// buildJSON renders the /manifest payload, spec.md §4.3/§6.3. Keys are
// emitted in ascending numeric order of their integer interpretation (not
// Go's default map-marshal alphabetic string order, which would put "10"
// before "9") so that serialize->parse->serialize round-trips byte for
// byte, per spec.md §8.
func buildJSON(apps map[uint32]*AppEntry, depotKeys map[uint32][32]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"apps":{`)

	appIDs := sortedAppIDs(apps)
	for i, appID := range appIDs {
		if i > 0 {
			buf.WriteByte(',')
		}
		app := apps[appID]
		fmt.Fprintf(&buf, `"%d":{`, appID)

		nameJSON, _ := json.Marshal(app.Name)
		fmt.Fprintf(&buf, `"name":%s`, nameJSON)

		if app.PICSAccessToken != 0 {
			fmt.Fprintf(&buf, `,"pics_at":%d`, app.PICSAccessToken)
		}

		buf.WriteString(`,"depots":[`)
		for j, depotID := range sortedDepotIDs(app.Depots) {
			if j > 0 {
				buf.WriteByte(',')
			}
			fmt.Fprintf(&buf, "%d", depotID)
		}
		buf.WriteString(`]}`)
	}

	buf.WriteString(`},"depot_keys":{`)
	keyIDs := sortedKeyIDs(depotKeys)
	first := true
	for _, depotID := range keyIDs {
		key := depotKeys[depotID]
		encoded := base64.StdEncoding.EncodeToString(key[:])
		if len(encoded) != 44 {
			// Invariant from spec.md §8; unreachable for a 32-byte key
			// under standard base64, kept as a defensive round-trip check.
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, `"%d":%q`, depotID, encoded)
	}
	buf.WriteString(`}}`)

	return buf.Bytes()
}

func sortedAppIDs(apps map[uint32]*AppEntry) []uint32 {
	ids := make([]uint32, 0, len(apps))
	for id := range apps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedDepotIDs(depots map[uint32]*DepotEntry) []uint32 {
	ids := make([]uint32, 0, len(depots))
	for id := range depots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedKeyIDs(keys map[uint32][32]byte) []uint32 {
	ids := make([]uint32, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// JSONApp and JSONCatalog mirror the wire shape for parsing (used by
// tests and by anything that needs to reload a previously emitted
// catalog, e.g. the round-trip property in spec.md §8).
type JSONApp struct {
	Name    string   `json:"name"`
	PICSAt  *uint64  `json:"pics_at,omitempty"`
	Depots  []uint32 `json:"depots"`
}

type JSONCatalog struct {
	Apps      map[string]JSONApp `json:"apps"`
	DepotKeys map[string]string  `json:"depot_keys"`
}

// ParseJSON decodes a /manifest payload back into the wire shape.
func ParseJSON(data []byte) (*JSONCatalog, error) {
	var c JSONCatalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Apps == nil {
		c.Apps = map[string]JSONApp{}
	}
	if c.DepotKeys == nil {
		c.DepotKeys = map[string]string{}
	}
	return &c, nil
}
