//go:build ignore

// build.go - keyforge build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, keyforge, keyctl, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const module = "keyforge"

var (
	distDir = "dist"

	// source dir under cmd/ -> output name
	executables = map[string]string{
		"keyforge": "keyforge",
		"keyctl":   "keyctl",
	}

	releasePlatforms = []string{"linux/amd64", "linux/arm64", "darwin/arm64", "windows/amd64"}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	printHeader()
	startTime := time.Now()

	var err error
	switch *target {
	case "all":
		for name := range executables {
			if err = buildExecutable(name, runtime.GOOS, runtime.GOARCH, *verbose); err != nil {
				break
			}
		}
	case "keyforge", "keyctl":
		err = buildExecutable(*target, runtime.GOOS, runtime.GOARCH, *verbose)
	case "test":
		err = runTests(*verbose)
	case "clean":
		err = os.RemoveAll(distDir)
	case "release":
		err = buildRelease(*verbose)
	default:
		showHelp()
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printHeader() {
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println(colorCyan + "         keyforge - Build System           " + colorReset)
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println()
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func ldflags() string {
	pkg := module + "/pkg/contracts"
	return fmt.Sprintf("-s -w -X %s.BuildTime=%s -X %s.GitCommit=%s",
		pkg, time.Now().UTC().Format(time.RFC3339), pkg, gitCommit())
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func buildExecutable(name, goos, goarch string, verbose bool) error {
	exeName, ok := executables[name]
	if !ok {
		return fmt.Errorf("unknown executable: %s", name)
	}
	if goos == "windows" {
		exeName += ".exe"
	}
	outDir := distDir
	if goos != runtime.GOOS || goarch != runtime.GOARCH {
		outDir = filepath.Join(distDir, goos+"-"+goarch)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	printInfo(fmt.Sprintf("Building %s for %s/%s...", name, goos, goarch))
	outputPath := filepath.Join(outDir, exeName)
	args := []string{"build", "-trimpath", "-ldflags", ldflags(), "-o", outputPath, "./cmd/" + name}
	if verbose {
		args = append([]string{"build", "-v"}, args[1:]...)
	}

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch, "CGO_ENABLED=0")
	if verbose {
		fmt.Printf("Running: go %s\n", strings.Join(args, " "))
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to build %s: %w", name, err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", outputPath, float64(info.Size())/1024/1024))
	}
	return nil
}

func runTests(verbose bool) error {
	printInfo("Running tests...")
	args := []string{"test", "-race", "./..."}
	if verbose {
		args = append(args, "-v")
	}
	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func buildRelease(verbose bool) error {
	printInfo("Building release binaries...")
	for _, platform := range releasePlatforms {
		goos, goarch, _ := strings.Cut(platform, "/")
		for name := range executables {
			if err := buildExecutable(name, goos, goarch, verbose); err != nil {
				return err
			}
		}
	}
	return nil
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all       Build keyforge and keyctl for this platform (default)")
	fmt.Println("  keyforge  Build the HTTP service")
	fmt.Println("  keyctl    Build the admin CLI")
	fmt.Println("  test      Run all tests with the race detector")
	fmt.Println("  clean     Remove the dist directory")
	fmt.Println("  release   Cross-compile for " + strings.Join(releasePlatforms, ", "))
}
