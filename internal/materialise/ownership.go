package materialise

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// modeFromWire converts the numeric mode the server sends into an
// os.FileMode carrying only the permission bits.
func modeFromWire(mode uint32) os.FileMode {
	return os.FileMode(mode) & os.ModePerm
}

// wireMeta converts a local store.Meta (numeric uid/gid) into the
// owner/group name form the server speaks (spec.md §4.3's
// `{owner, group, mode}` contract is named, not numeric — a fleet spans
// machines whose uid allocations are not guaranteed to agree, but whose
// usernames are centrally managed).
func wireMeta(m store.Meta) (transport.Meta, error) {
	owner, err := user.LookupId(strconv.Itoa(m.UID))
	ownerName := strconv.Itoa(m.UID)
	if err == nil {
		ownerName = owner.Username
	}

	group, err := user.LookupGroupId(strconv.Itoa(m.GID))
	groupName := strconv.Itoa(m.GID)
	if err == nil {
		groupName = group.Name
	}

	return transport.Meta{Owner: ownerName, Group: groupName, Mode: uint32(m.Mode)}, nil
}

// localMeta resolves a wire Meta (owner/group names) into a local
// store.Meta (numeric uid/gid) usable with os.Chown.
func localMeta(m transport.Meta) (store.Meta, error) {
	uid, err := lookupUID(m.Owner)
	if err != nil {
		return store.Meta{}, err
	}

	gid, err := lookupGID(m.Group)
	if err != nil {
		return store.Meta{}, err
	}

	return store.Meta{UID: uid, GID: gid, Mode: modeFromWire(m.Mode)}, nil
}

func lookupUID(owner string) (int, error) {
	if uid, err := strconv.Atoi(owner); err == nil {
		return uid, nil
	}

	u, err := user.Lookup(owner)
	if err != nil {
		return 0, fmt.Errorf("materialise: resolving owner %q: %w", owner, err)
	}

	return strconv.Atoi(u.Uid)
}

func lookupGID(group string) (int, error) {
	if gid, err := strconv.Atoi(group); err == nil {
		return gid, nil
	}

	g, err := user.LookupGroup(group)
	if err != nil {
		return 0, fmt.Errorf("materialise: resolving group %q: %w", group, err)
	}

	return strconv.Atoi(g.Gid)
}
