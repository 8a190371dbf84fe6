//go:build linux && !android

package clipboard

import "testing"

// syntheticAtoms builds an x11Atoms table out of arbitrary uintptr values,
// standing in for XInternAtom results without needing a live display. Per
// SPEC_FULL §8, the atom-table bijection and TARGETS-list logic below are
// pure struct/slice operations and must be checkable this way.
func syntheticAtoms() x11Atoms {
	return x11Atoms{
		CLIPBOARD:          1,
		PRIMARY:            2,
		SECONDARY:          3,
		CLIPBOARD_MANAGER:  4,
		SAVE_TARGETS:       5,
		TARGETS:            6,
		ATOMATOM:           7,
		INCR:               8,
		UTF8_STRING:        9,
		textPlainUTF8:      10,
		textPlainUTF8Upper: 11,
		STRING:             12,
		TEXT:               13,
		textPlain:          14,
		textHTML:           15,
		imagePNG:           16,
		ARBOARD_CLIPBOARD:  17,
	}
}

func TestAtomOfKindKindOfSelectionAreInverses(t *testing.T) {
	atoms := syntheticAtoms()

	for _, kind := range []SelectionKind{SelClipboard, SelPrimary, SelSecondary} {
		atom := atoms.atomOfKind(kind)
		got, ok := atoms.kindOfSelection(atom)
		if !ok {
			t.Fatalf("kindOfSelection(%v) for kind %v: not found", atom, kind)
		}
		if got != kind {
			t.Fatalf("atomOfKind(%v) = %v, kindOfSelection round-trip got %v", kind, atom, got)
		}
	}
}

func TestKindOfSelectionRejectsUnrecognizedAtom(t *testing.T) {
	atoms := syntheticAtoms()
	if _, ok := atoms.kindOfSelection(Atom(999)); ok {
		t.Fatalf("kindOfSelection(999) should not resolve to any SelectionKind")
	}
}

// TestBuildTargetsListAlwaysIncludesTargetsAndSaveTargets exercises the
// SPEC_FULL §8 invariant across representative cell contents, with no X11
// calls involved.
func TestBuildTargetsListAlwaysIncludesTargetsAndSaveTargets(t *testing.T) {
	atoms := syntheticAtoms()

	cases := []struct {
		name     string
		data     []datum
		wantUTF8 bool
	}{
		{name: "empty cell", data: nil, wantUTF8: false},
		{name: "string-only, no utf8", data: []datum{{format: atoms.STRING, bytes: []byte("x")}}, wantUTF8: false},
		{name: "utf8 text", data: []datum{{format: atoms.UTF8_STRING, bytes: []byte("x")}}, wantUTF8: true},
		{
			name: "utf8 plus image",
			data: []datum{
				{format: atoms.UTF8_STRING, bytes: []byte("x")},
				{format: atoms.imagePNG, bytes: []byte{1, 2, 3}},
			},
			wantUTF8: true,
		},
		{name: "image only", data: []datum{{format: atoms.imagePNG, bytes: []byte{1, 2, 3}}}, wantUTF8: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			targets := buildTargetsList(&atoms, tc.data)

			has := func(a Atom) bool {
				for _, got := range targets {
					if got == a {
						return true
					}
				}
				return false
			}

			if !has(atoms.TARGETS) {
				t.Errorf("targets list missing TARGETS: %v", targets)
			}
			if !has(atoms.SAVE_TARGETS) {
				t.Errorf("targets list missing SAVE_TARGETS: %v", targets)
			}
			for _, d := range tc.data {
				if !has(d.format) {
					t.Errorf("targets list missing cell format %v: %v", d.format, targets)
				}
			}
			gotUTF8 := has(atoms.textPlainUTF8) && has(atoms.textPlainUTF8Upper)
			if gotUTF8 != tc.wantUTF8 {
				t.Errorf("text/plain;charset=utf-8 aliases present=%v, want %v", gotUTF8, tc.wantUTF8)
			}
			wantLen := 2 + len(tc.data)
			if tc.wantUTF8 {
				wantLen += 2
			}
			if len(targets) != wantLen {
				t.Errorf("targets list length = %d, want %d (%v)", len(targets), wantLen, targets)
			}
		})
	}
}
