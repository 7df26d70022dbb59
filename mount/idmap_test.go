// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mount

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseIDMap(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want map[int]int
		ok   bool
	}{
		{in: "", want: map[int]int{}, ok: true},
		{in: "1000=501", want: map[int]int{1000: 501}, ok: true},
		{in: "1000=501:1001=502", want: map[int]int{1000: 501, 1001: 502}, ok: true},
		{in: "0=0", want: map[int]int{0: 0}, ok: true},
		{in: "1000", ok: false},
		{in: "=501", ok: false},
		{in: "1000=", ok: false},
		{in: "1000=501:", ok: false},
		{in: ":1000=501", ok: false},
		{in: "a=1", ok: false},
		{in: "1=b", ok: false},
		{in: "1=2=3", ok: false},
		{in: "-1=2", ok: false},
		{in: "1=2:1=3", ok: false},
	} {
		got, err := ParseIDMap(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseIDMap(%q): err %v, want ok %v", tt.in, err, tt.ok)
			continue
		}
		if !tt.ok {
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseIDMap(%q): (-want +got):\n%s", tt.in, diff)
		}
	}
}
