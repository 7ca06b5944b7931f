package chronohook_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// buildFrobLib compiles testdata/c/frob into a shared object for the host.
// zig cc is preferred when present; otherwise the system cc is used.
func buildFrobLib(t *testing.T, outDir string) string {
	t.Helper()

	outputPath := filepath.Join(outDir, fmt.Sprintf("libfrob_%s-%s.so", runtime.GOOS, runtime.GOARCH))
	sourcePath := filepath.Join("testdata", "c", "frob", "frob.c")
	args := []string{"-shared", "-fPIC", "-O1", "-o", outputPath, sourcePath}

	if _, err := exec.LookPath("zig"); err == nil {
		zigArgs := []string{"cc"}
		if target, ok := zigTargetFor(runtime.GOOS, runtime.GOARCH); ok {
			zigArgs = append(zigArgs, "-target", target)
		}
		cmd := exec.Command("zig", append(zigArgs, args...)...)
		out, err := cmd.CombinedOutput()
		if err == nil {
			return outputPath
		}
		t.Logf("zig cc failed, retrying with the default compiler: %v\n%s", err, out)
	}

	cc := compilerFromEnv()
	if _, err := exec.LookPath(cc[0]); err != nil {
		t.Skipf("no C compiler available (%s): %v", cc[0], err)
	}
	cmd := exec.Command(cc[0], append(cc[1:], args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build shared lib %s: %v\n%s", outputPath, err, out)
	}
	return outputPath
}

func compilerFromEnv() []string {
	if cc := strings.Fields(os.Getenv("CC")); len(cc) > 0 {
		return cc
	}
	return []string{"cc"}
}

func zigTargetFor(goos string, goarch string) (string, bool) {
	switch {
	case goos == "linux" && goarch == "386":
		return "x86-linux-gnu", true
	case goos == "linux" && goarch == "amd64":
		return "x86_64-linux-gnu", true
	case goos == "linux" && goarch == "arm64":
		return "aarch64-linux-gnu", true
	default:
		return "", false
	}
}
