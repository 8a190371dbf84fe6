// Copyright 2025 Ayman Bagabas
// SPDX-License-Identifier: MIT

//go:build windows

package clipboard

import (
	"strings"
	"testing"
)

// TestWrapHTMLOffsets pins the CF_HTML ("HTML Format") byte-offset math per
// SPEC_FULL §8, independent of any clipboard handle — wrapHTML does no
// Windows API calls.
func TestWrapHTMLOffsets(t *testing.T) {
	cases := []string{
		"<b>hello</b>",
		"",
		strings.Repeat("<p>x</p>", 100),
	}

	for _, html := range cases {
		buf, off := wrapHTML(html)

		if off.startFragment < 0 || off.endFragment > len(buf) || off.startFragment > off.endFragment {
			t.Fatalf("wrapHTML(%q): fragment offsets out of range: %+v, len(buf)=%d", html, off, len(buf))
		}
		if got := string(buf[off.startFragment:off.endFragment]); got != html {
			t.Fatalf("wrapHTML(%q): buf[startFragment:endFragment] = %q, want %q", html, got, html)
		}

		if off.startHTML < 0 || off.endHTML > len(buf) || off.startHTML > off.endHTML {
			t.Fatalf("wrapHTML(%q): document offsets out of range: %+v, len(buf)=%d", html, off, len(buf))
		}
		doc := string(buf[off.startHTML:off.endHTML])
		if !strings.Contains(doc, cfHTMLFragStart) || !strings.Contains(doc, cfHTMLFragEnd) {
			t.Fatalf("wrapHTML(%q): buf[startHTML:endHTML] = %q, missing fragment markers", html, doc)
		}

		header := string(buf[:off.startHTML])
		if !strings.Contains(header, "Version:0.9") {
			t.Fatalf("wrapHTML(%q): header %q missing Version line", html, header)
		}
	}
}
