package rawsock

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	capNetAdmin = 12
	capNetRaw   = 13
)

var capNames = map[int]string{capNetRaw: "CAP_NET_RAW", capNetAdmin: "CAP_NET_ADMIN"}

// capsFor reports the capability bits a non-root caller needs before Open(kind) will
// succeed: every raw/packet socket needs CAP_NET_RAW, and the AF_PACKET bind ARPv4/NDv6
// sending does needs CAP_NET_ADMIN on top of that.
func capsFor(kind SocketKind) []int {
	switch kind {
	case ARPv4, NDv6:
		return []int{capNetRaw, capNetAdmin}
	default:
		return []int{capNetRaw}
	}
}

// PrivilegeError reports the capabilities a non-root caller is missing to open one or more
// of the requested socket kinds.
type PrivilegeError struct {
	Kinds   []SocketKind
	Missing []string // capability names, e.g. "CAP_NET_RAW"
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("rawsock: missing %v for socket kind(s) %v; grant with: sudo setcap %s+ep /path/to/binary",
		e.Missing, e.Kinds, setcapNames(e.Missing))
}

func setcapNames(missing []string) string {
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = strings.ToLower(strings.TrimPrefix(m, "CAP_"))
	}
	return "cap_" + strings.Join(names, ",cap_")
}

// RequirePrivileges checks that the process holds every capability Open will need for each
// of kinds, or is root. It reads the process's effective capability mask once and checks it
// against the union of per-kind requirements, so a scan that never enables ARP/ND never has
// to justify CAP_NET_ADMIN. Call this once before opening any socket, so a missing capability
// fails fast with the exact kinds it blocks rather than surfacing later as an opaque open
// error for whichever kind happened to be opened first.
func RequirePrivileges(kinds []SocketKind) error {
	if os.Geteuid() == 0 {
		return nil
	}
	eff, err := effectiveCapMask()
	if err != nil {
		return err
	}

	needed := map[int][]SocketKind{} // capability bit -> kinds that require it
	for _, k := range kinds {
		for _, bit := range capsFor(k) {
			needed[bit] = append(needed[bit], k)
		}
	}

	var missingBits []int
	var blockedKinds []SocketKind
	for bit, reqKinds := range needed {
		if eff&(1<<uint(bit)) != 0 {
			continue
		}
		missingBits = append(missingBits, bit)
		blockedKinds = append(blockedKinds, reqKinds...)
	}
	if len(missingBits) == 0 {
		return nil
	}

	missing := make([]string, len(missingBits))
	for i, bit := range missingBits {
		missing[i] = capNames[bit]
	}
	return &PrivilegeError{Kinds: dedupeKinds(blockedKinds), Missing: missing}
}

func dedupeKinds(kinds []SocketKind) []SocketKind {
	seen := map[SocketKind]bool{}
	var out []SocketKind
	for _, k := range kinds {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// effectiveCapMask reads and parses the CapEff field of /proc/self/status.
func effectiveCapMask() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var capEff string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "CapEff:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				capEff = fields[1]
			}
			break
		}
	}
	if capEff == "" {
		return 0, errors.New("rawsock: CapEff not found in /proc/self/status")
	}

	return strconv.ParseUint(capEff, 16, 64)
}
