package main

import "testing"

func TestCacheKeyFor(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"out.wav", "out"},
		{"/tmp/session/input.wav", "input"},
		{"clip", "clip"},
		{"nested/dir/take2.wav", "take2"},
	}
	for _, tc := range cases {
		if got := cacheKeyFor(tc.in); got != tc.want {
			t.Errorf("cacheKeyFor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"convert", "export", "characters", "serve", "health", "doctor"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing persistent --config flag")
	}
	if root.PersistentFlags().Lookup("gpu") == nil {
		t.Error("missing persistent --gpu alias flag")
	}
}
