// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ds

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/brutella/dnssd"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"golang.org/x/exp/slices"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

const (
	// Default is the URI that finds any ssh server on the local link.
	Default = "dnssd:"
	// ServiceType is what sshd, via avahi, and execd advertise.
	ServiceType = "_ssh._tcp"
	// Timeout is how long Lookup waits for an answer.
	Timeout    = 1 * time.Second
	timeFormat = "15:04:05.000"
	// refresh is how often Register updates load and memory.
	refresh = 60 * time.Second
)

// ErrNotFound is returned when nothing suitable answered in time.
var ErrNotFound = errors.New("dnssd found no suitable service")

// Query is a parsed dnssd URI.
type Query struct {
	Type     string
	Domain   string
	Instance string
	// Text holds the TXT values a service must have. Any one of the
	// values for a key will do.
	Text map[string][]string
}

// IsURI returns true if host should be looked up with Lookup.
func IsURI(host string) bool {
	return strings.HasPrefix(host, Default)
}

// Parse parses a dnssd URI,
//
//	dnssd://domain/_service._proto/instance?key=value&key=value
//
// following the conventions of CUPS. Everything is optional: the domain
// defaults to local, the service to _ssh._tcp, and any instance will do.
// dnssd:?arch=arm64 picks any arm64 host that says what it is.
func Parse(uri string) (*Query, error) {
	q := &Query{
		Type:   ServiceType,
		Domain: "local",
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", uri, err)
	}
	if u.Scheme != "dnssd" {
		return nil, fmt.Errorf("%q: not a dnssd URI", uri)
	}
	if len(u.Host) != 0 {
		q.Domain = u.Host
	}
	p := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(p[0]) != 0 {
		q.Type = p[0]
	}
	if len(p) == 2 {
		q.Instance = p[1]
	}
	q.Text = u.Query()
	return q, nil
}

// Service is the fully qualified service name, e.g. _ssh._tcp.local.
func (q *Query) Service() string {
	return fmt.Sprintf("%s.%s.", strings.Trim(q.Type, "."), strings.Trim(q.Domain, "."))
}

// required returns true if the TXT record src satisfies req.
func required(src map[string]string, req map[string][]string) bool {
	for k := range req {
		if !slices.Contains(req[k], src[k]) {
			return false
		}
	}
	return true
}

func (q *Query) match(e *dnssd.BrowseEntry) bool {
	if len(q.Instance) != 0 && e.Name != q.Instance {
		return false
	}
	return len(e.IPs) != 0 && required(e.Text, q.Text)
}

// Lookup browses for q and returns the host and port of the first
// service that matches. It gives up after Timeout.
func Lookup(ctx context.Context, q *Query) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	service := q.Service()
	v("ds: browsing for %s", service)

	found := make(chan *dnssd.BrowseEntry, 1)
	add := func(e dnssd.BrowseEntry) {
		v("ds: %s\tAdd\t%s\t%s\t%s\t%s (%s) %v", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name, e.IPs, e.Text)
		if !q.match(&e) {
			return
		}
		select {
		case found <- &e:
		default:
		}
	}
	rmv := func(e dnssd.BrowseEntry) {
		v("ds: %s\tRmv\t%s\t%s\t%s\t%s", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- dnssd.LookupType(ctx, service, add, rmv)
	}()

	select {
	case e := <-found:
		if len(e.IPs) > 1 {
			v("ds: %s has %d addresses, using %v", e.Name, len(e.IPs), e.IPs[0])
		}
		return e.IPs[0].String(), strconv.Itoa(e.Port), nil
	case err := <-errc:
		// LookupType only returns early on a real error.
		if err != nil && ctx.Err() == nil {
			return "", "", fmt.Errorf("browsing for %s: %w", service, err)
		}
	case <-ctx.Done():
	}
	return "", "", fmt.Errorf("%s: %w", service, ErrNotFound)
}

// ParseKv parses k=v,k=v into a TXT map. A key with no value is "true".
func ParseKv(arg string) map[string]string {
	txt := make(map[string]string)
	if len(arg) == 0 {
		return txt
	}
	for _, pair := range strings.Split(arg, ",") {
		z := strings.SplitN(pair, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else {
			txt[z[0]] = "true"
		}
	}
	return txt
}

// DefaultInstance names this host's service.
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "execd"
	}
	return hostname + "-execd"
}

// DefaultTxt fills in arch, os and cores unless already set.
func DefaultTxt(txt map[string]string) {
	if len(txt["arch"]) == 0 {
		txt["arch"] = runtime.GOARCH
	}
	if len(txt["os"]) == 0 {
		txt["os"] = runtime.GOOS
	}
	if len(txt["cores"]) == 0 {
		txt["cores"] = strconv.Itoa(runtime.NumCPU())
	}
}

// UpdateSysInfo sets memory and load values in txt. Values it can not
// get are left alone.
func UpdateSysInfo(txt map[string]string) {
	if m, err := mem.VirtualMemory(); err != nil {
		v("ds: memory: %v", err)
	} else {
		txt["mem_avail"] = strconv.FormatUint(m.Available, 10)
		txt["mem_total"] = strconv.FormatUint(m.Total, 10)
	}
	if l, err := load.Avg(); err != nil {
		v("ds: load: %v", err)
	} else {
		txt["load1"] = strconv.FormatFloat(l.Load1, 'f', 2, 64)
		txt["load5"] = strconv.FormatFloat(l.Load5, 'f', 2, 64)
		txt["load15"] = strconv.FormatFloat(l.Load15, 'f', 2, 64)
		txt["load_ratio"] = strconv.FormatFloat(l.Load5/float64(runtime.NumCPU()), 'f', 6, 64)
	}
}

// Register advertises a service on port until ctx is done. iface, if
// set, limits it to one interface; an empty instance is DefaultInstance.
func Register(ctx context.Context, instance, domain, service, iface string, port int, txt map[string]string) error {
	if len(instance) == 0 {
		instance = DefaultInstance()
	}
	v("ds: advertising %s.%s.%s. port %d", strings.Trim(instance, "."), strings.Trim(service, "."), strings.Trim(domain, "."), port)

	resp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("dnssd responder: %w", err)
	}
	var ifaces []string
	if len(iface) != 0 {
		ifaces = append(ifaces, iface)
	}
	DefaultTxt(txt)
	UpdateSysInfo(txt)
	srv, err := dnssd.NewService(dnssd.Config{
		Name:   instance,
		Type:   service,
		Domain: domain,
		Port:   port,
		Ifaces: ifaces,
		Text:   txt,
	})
	if err != nil {
		return fmt.Errorf("dnssd service: %w", err)
	}
	h, err := resp.Add(srv)
	if err != nil {
		return fmt.Errorf("dnssd add: %w", err)
	}
	go func() {
		t := time.NewTicker(refresh)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				// The service keeps the map it was given.
				next := make(map[string]string, len(txt))
				for k, val := range txt {
					next[k] = val
				}
				UpdateSysInfo(next)
				h.UpdateText(next, resp)
				txt = next
			}
		}
	}()
	go func() {
		if err := resp.Respond(ctx); err != nil && ctx.Err() == nil {
			v("ds: responder: %v", err)
			return
		}
		v("ds: responder exited")
	}()
	return nil
}
