// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mount

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDMap parses a host=instance:host=instance string, e.g.
// 1000=501:1001=502, to a map from host ids to instance ids.
// An empty string is an empty map.
func ParseIDMap(s string) (map[int]int, error) {
	m := map[int]int{}
	if len(s) == 0 {
		return m, nil
	}
	for i, el := range strings.Split(s, ":") {
		if len(el) == 0 {
			return nil, fmt.Errorf("id map: element %d is zero length", i)
		}
		// Degenerate forms such as =501 or 1000= are errors.
		c := strings.SplitN(el, "=", 2)
		if len(c) != 2 {
			return nil, fmt.Errorf("id map: element %d:%q: want host=instance", i, el)
		}
		h, err := strconv.Atoi(c[0])
		if err != nil {
			return nil, fmt.Errorf("id map: element %d:%q: host id: %w", i, el, err)
		}
		r, err := strconv.Atoi(c[1])
		if err != nil {
			return nil, fmt.Errorf("id map: element %d:%q: instance id: %w", i, el, err)
		}
		if h < 0 || r < 0 {
			return nil, fmt.Errorf("id map: element %d:%q: negative id", i, el)
		}
		if _, ok := m[h]; ok {
			return nil, fmt.Errorf("id map: element %d:%q: host id %d mapped twice", i, el, h)
		}
		m[h] = r
	}
	return m, nil
}
