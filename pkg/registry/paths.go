package registry

import (
	"net/url"
	"path"
	"strings"
)

/*
/ovsdb/<endpoint>/relations/<relation>/units/<unit>/presence    leased, "joined" marker
/ovsdb/<endpoint>/relations/<relation>/units/<unit>/<key>       leased, published data
/ovsdb/<endpoint>/expected/peers/<unit>
/ovsdb/<endpoint>/expected/related/<unit>
/ovsdb/<endpoint>/flags/<unit>/<flag>

Relation and unit ids are path-escaped: juju unit names contain a slash.
*/

const (
	rootFolder = "/ovsdb"

	presenceField = "presence"

	expectedPeers   = "peers"
	expectedRelated = "related"
)

// /ovsdb/<endpoint>
func endpointFolder(endpoint string) string {
	return path.Join(rootFolder, url.PathEscape(endpoint))
}

// /ovsdb/<endpoint>/relations/
func relationsFolder(endpoint string) string {
	return path.Join(endpointFolder(endpoint), "relations") + "/"
}

// /ovsdb/<endpoint>/relations/<relation>/units/<unit>/<field>
func unitKey(endpoint, relationID, unitID, field string) string {
	return path.Join(
		endpointFolder(endpoint),
		"relations",
		url.PathEscape(relationID),
		"units",
		url.PathEscape(unitID),
		url.PathEscape(field),
	)
}

// /ovsdb/<endpoint>/expected/<kind>/
func expectedFolder(endpoint, kind string) string {
	return path.Join(endpointFolder(endpoint), "expected", kind) + "/"
}

// /ovsdb/<endpoint>/expected/<kind>/<unit>
func expectedKey(endpoint, kind, unitID string) string {
	return expectedFolder(endpoint, kind) + url.PathEscape(unitID)
}

// /ovsdb/<endpoint>/flags/<unit>/<flag>
func flagKey(endpoint, unitID, flag string) string {
	return path.Join(
		endpointFolder(endpoint),
		"flags",
		url.PathEscape(unitID),
		url.PathEscape(flag),
	)
}

// parseUnitKey splits a key under relationsFolder(endpoint).
func parseUnitKey(endpoint, key string) (relationID, unitID, field string, ok bool) {
	rest, found := strings.CutPrefix(key, relationsFolder(endpoint))
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "units" {
		return "", "", "", false
	}
	var err error
	if relationID, err = url.PathUnescape(parts[0]); err != nil {
		return "", "", "", false
	}
	if unitID, err = url.PathUnescape(parts[2]); err != nil {
		return "", "", "", false
	}
	if field, err = url.PathUnescape(parts[3]); err != nil {
		return "", "", "", false
	}
	if relationID == "" || unitID == "" || field == "" {
		return "", "", "", false
	}
	return relationID, unitID, field, true
}

// parseExpectedKey returns the unit id of a key under expectedFolder.
func parseExpectedKey(folder, key string) (string, bool) {
	rest, found := strings.CutPrefix(key, folder)
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	unitID, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return unitID, true
}
