package sysinfo

import "testing"

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{0, "0 MiB"},
		{900 << 20, "900 MiB"},
		{1536 << 20, "1.5 GiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSystemProberProbe(t *testing.T) {
	snap, err := SystemProber{}.Probe()
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if snap.TotalMemory == 0 || snap.AvailableMemory == 0 {
		t.Errorf("snapshot has zero memory: %+v", snap)
	}
	if snap.AvailableMemory > snap.TotalMemory {
		t.Errorf("available %d exceeds total %d", snap.AvailableMemory, snap.TotalMemory)
	}
	if snap.CPUThreads < 1 {
		t.Errorf("CPUThreads = %d", snap.CPUThreads)
	}
}
