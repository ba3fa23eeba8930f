// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
package util

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Wrapf wraps *errp with a message formatted from format and args, but only
// if *errp is non-nil. It is meant to be used with defer to annotate named
// error return values without losing errors.Is/errors.As compatibility:
//
//	func f() (err error) {
//		defer util.Wrapf(&err, "f(%q)", name)
//		...
//	}
func Wrapf(errp *error, format string, args ...any) {
	if *errp == nil {
		return
	}
	*errp = fmt.Errorf(format+": %w", append(args, *errp)...)
}

func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// If SplitHostPort fails, it might be just a host without a port.
		host = strings.Trim(addr, "[]")
	}
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.IsLoopback()
}
