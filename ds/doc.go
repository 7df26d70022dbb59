// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ds finds ssh servers with DNS-SD, and advertises them.
//
// sshmount accepts a dnssd URI in place of a host name and mounts on the
// first server that matches; execd can advertise itself so it is found.
// TXT records carry arch, os and cores, so a URI like dnssd:?arch=arm64
// can narrow the choice.
package ds
