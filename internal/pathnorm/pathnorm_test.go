package pathnorm

import "testing"

func TestNormalizeRoundTrip(t *testing.T) {
	cases := []struct {
		root, abs, want string
	}{
		{"/sync/root", "/sync/root/a/b.txt", "a/b.txt"},
		{"/sync/root", "/sync/root/x.txt", "x.txt"},
		{"/sync/root/", "/sync/root/x.txt", "x.txt"},
		{"/sync/root", "/sync/root", ""},
	}

	for _, c := range cases {
		got, err := Normalize(c.root, c.abs)
		if err != nil {
			t.Fatalf("Normalize(%q, %q): %v", c.root, c.abs, err)
		}
		if got != c.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", c.root, c.abs, got, c.want)
		}
	}
}

func TestNormalizeRejectsForeignPath(t *testing.T) {
	if _, err := Normalize("/sync/root", "/other/dir/x.txt"); err == nil {
		t.Fatal("expected error for path outside root")
	}
}

func TestJoinInverseOfNormalize(t *testing.T) {
	root := "/sync/root"
	abs := "/sync/root/a/b/c.txt"

	norm, err := Normalize(root, abs)
	if err != nil {
		t.Fatal(err)
	}
	if got := Join(root, norm); got != abs {
		t.Errorf("Join(%q, %q) = %q, want %q", root, norm, got, abs)
	}
}
