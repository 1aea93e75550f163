package traversal

import "testing"

func allModes() []Mode { return []Mode{Naive, Snake, Spiral, Diagonal, Hilbert} }

func TestModeStringParseRoundTrip(t *testing.T) {
	for _, mode := range allModes() {
		got, ok := ParseMode(mode.String())
		if !ok {
			t.Fatalf("ParseMode(%q) reported unknown", mode.String())
		}
		if got != mode {
			t.Fatalf("ParseMode(%q) = %v, want %v", mode.String(), got, mode)
		}
	}
}

func TestParseMode_RejectsUnknown(t *testing.T) {
	if _, ok := ParseMode("zigzag"); ok {
		t.Fatalf("expected ParseMode to reject an unknown traversal name")
	}
}

func TestGenerate_VisitsEveryTileExactlyOnce(t *testing.T) {
	for _, mode := range allModes() {
		for _, dims := range [][2]int{{3, 4}, {1, 5}, {5, 1}, {7, 7}, {8, 3}} {
			rows, cols := dims[0], dims[1]
			coords := Generate(mode, rows, cols)

			if len(coords) != rows*cols {
				t.Fatalf("mode %v %dx%d: got %d coords, want %d", mode, rows, cols, len(coords), rows*cols)
			}

			seen := make(map[Coord]bool, len(coords))
			for _, c := range coords {
				if c.Row < 0 || c.Row >= rows || c.Col < 0 || c.Col >= cols {
					t.Fatalf("mode %v %dx%d: coord %+v out of bounds", mode, rows, cols, c)
				}
				if seen[c] {
					t.Fatalf("mode %v %dx%d: coord %+v visited twice", mode, rows, cols, c)
				}
				seen[c] = true
			}
		}
	}
}

func TestGenerateSnake_AlternatesDirection(t *testing.T) {
	coords := Generate(Snake, 3, 3)
	want := []Coord{
		{0, 0}, {0, 1}, {0, 2},
		{1, 2}, {1, 1}, {1, 0},
		{2, 0}, {2, 1}, {2, 2},
	}
	if len(coords) != len(want) {
		t.Fatalf("got %d coords, want %d", len(coords), len(want))
	}
	for i := range want {
		if coords[i] != want[i] {
			t.Fatalf("coord %d: got %+v, want %+v", i, coords[i], want[i])
		}
	}
}

func TestGenerateSpiral_StartsAtOrigin(t *testing.T) {
	coords := Generate(Spiral, 3, 3)
	if coords[0] != (Coord{0, 0}) {
		t.Fatalf("expected spiral to start at (0,0), got %+v", coords[0])
	}
	if coords[len(coords)-1] != (Coord{1, 1}) {
		t.Fatalf("expected spiral on a 3x3 grid to end at the center, got %+v", coords[len(coords)-1])
	}
}
