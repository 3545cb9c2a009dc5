package na

import (
	"strings"
)

// Info is the parsed form of an address string of the form
// "[<class>+]<protocol>[://[host]]".
type Info struct {
	Class    string // may be empty
	Protocol string
	Host     string // may be empty
}

// ParseInfo splits an address string into its three optional parts. It
// splits on the first ':' to separate "class+protocol" from an optional
// "//host" suffix, then splits "class+protocol" on the first '+'.
func ParseInfo(info string) (Info, Status) {
	if info == "" {
		return Info{}, InvalidParam
	}

	classProto := info
	host := ""
	if idx := strings.Index(info, ":"); idx >= 0 {
		classProto = info[:idx]
		rest := info[idx+1:]
		host = strings.TrimPrefix(rest, "//")
	}

	class := ""
	protocol := classProto
	if idx := strings.Index(classProto, "+"); idx >= 0 {
		class = classProto[:idx]
		protocol = classProto[idx+1:]
	}

	if protocol == "" {
		return Info{}, InvalidParam
	}
	return Info{Class: class, Protocol: protocol, Host: host}, Success
}

// StripClassPrefix removes a leading "class+" prefix from an address string,
// the normalisation every plugin expects before it sees the string: a
// class-qualified string is a library-level concept, not something the
// plugin's own parser understands.
func StripClassPrefix(addrStr string) string {
	if idx := strings.Index(addrStr, "+"); idx >= 0 {
		// only strip if what precedes '+' contains no "://" (a host
		// containing a literal '+' would be unusual but must not be
		// mistaken for a class prefix)
		if !strings.Contains(addrStr[:idx], "://") {
			return addrStr[idx+1:]
		}
	}
	return addrStr
}
