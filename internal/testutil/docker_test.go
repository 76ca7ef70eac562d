package testutil

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"TestFoo":                "TestFoo",
		"TestFoo/sub_case":       "TestFoo-sub-case",
		"TestBar/with spaces=1":  "TestBar-withspaces1",
		strings.Repeat("a", 40): strings.Repeat("a", 30),
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUniqueContainerName(t *testing.T) {
	a := UniqueContainerName(t, "vllm")
	b := UniqueContainerName(t, "vllm")
	if a == b {
		t.Errorf("names should differ, both %q", a)
	}
	if !strings.HasPrefix(a, "chandra-test-vllm-TestUniqueContainerName-") {
		t.Errorf("name = %q", a)
	}
	if labels := ContainerLabels(t); labels[CleanupLabel] != t.Name() {
		t.Errorf("labels = %v", labels)
	}
}

func TestRemoveStaleContainers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping docker test in short mode")
	}
	_ = DockerClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := RemoveStaleContainers(ctx); err != nil {
		t.Fatalf("RemoveStaleContainers() error = %v", err)
	}
	removed, err := RemoveStaleContainers(ctx)
	if err != nil {
		t.Fatalf("second RemoveStaleContainers() error = %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("second sweep removed %v, want nothing", removed)
	}
}
