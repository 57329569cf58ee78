package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeApp(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

// chdir switches to dir for the rest of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
}

// resetFlags restores the defaults of all flags, commands are package
// globals and keep their state between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (int, string) {
	t.Helper()
	resetFlags(cmdRoot)
	if args == nil {
		args = []string{}
	}

	var out bytes.Buffer
	cmdRoot.SetOut(&out)
	cmdRoot.SetErr(&out)
	defer func() {
		cmdRoot.SetOut(nil)
		cmdRoot.SetErr(nil)
	}()
	code := execute(context.Background(), args)
	return code, out.String()
}

func TestBuildWithoutArgs(t *testing.T) {
	root := writeApp(t, map[string]string{
		"_imports.json": `["app.js"]`,
		"app.js":        "console.log(1)\n",
	})
	chdir(t, root)

	code, _ := run(t)
	require.Equal(t, 0, code)

	for _, name := range []string{"_index.json", "_cam.json", "_cam.json.zip"} {
		assert.FileExists(t, filepath.Join(root, "build", name))
		assert.FileExists(t, filepath.Join(root, "build", name+".hash"))
	}
}

func TestBuildExitCode(t *testing.T) {
	for name, files := range map[string]map[string]string{
		"missing manifest":   {"app.js": "x"},
		"malformed manifest": {"_imports.json": `{"app.js": true}`, "app.js": "x"},
		"missing file":       {"_imports.json": `["app.js", "gone.js"]`, "app.js": "x"},
	} {
		t.Run(name, func(t *testing.T) {
			root := writeApp(t, files)

			code, _ := run(t, "build", root)
			assert.Equal(t, 1, code)
			assert.NoFileExists(t, filepath.Join(root, "build", "_index.json"))
		})
	}
}

func TestBuildThenBoot(t *testing.T) {
	root := writeApp(t, map[string]string{
		"_imports.json":       `["style/_imports.json", "x.js", "y.js"]`,
		"style/_imports.json": `["base.css"]`,
		"style/base.css":      "body { margin: 0; }\n",
		"x.js":                "var x = 1;\n",
		"y.js":                "var y = x + 1;\n",
	})
	storeDir := filepath.Join(t.TempDir(), "cache")
	cssOut := filepath.Join(t.TempDir(), "style.css")

	code, _ := run(t, "build", root)
	require.Equal(t, 0, code)

	code, out := run(t, "boot", "--quiet", "--source", "local:"+root, "--store", "local:"+storeDir,
		"--stylesheet-out", cssOut)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "booted 3 resources")

	buf, err := os.ReadFile(cssOut)
	require.NoError(t, err)
	assert.Equal(t, "/* style/base.css */\nbody { margin: 0; }\n", string(buf))

	code, out = run(t, "cache", "count", "--store", "local:"+storeDir)
	require.Equal(t, 0, code)
	assert.Equal(t, "3\n", out)

	code, _ = run(t, "cache", "clear", "--store", "local:"+storeDir)
	require.Equal(t, 0, code)

	code, out = run(t, "cache", "count", "--store", "local:"+storeDir)
	require.Equal(t, 0, code)
	assert.Equal(t, "0\n", out)
}

func TestBootFailure(t *testing.T) {
	root := writeApp(t, map[string]string{
		"_imports.json": `["y.js", "x.js"]`,
		"x.js":          "var x = 1;\n",
		"y.js":          "var y = x + 1;\n",
	})

	code, _ := run(t, "build", root)
	require.Equal(t, 0, code)

	code, out := run(t, "boot", "--quiet", "--source", "local:"+root, "--store", "mem:", "--retries", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "boot failed")
	assert.Contains(t, out, "y.js")
}

func TestBootUnavailableStore(t *testing.T) {
	root := writeApp(t, map[string]string{
		"_imports.json": `["app.js"]`,
		"app.js":        "var app = 1;\n",
	})
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	code, _ := run(t, "build", root)
	require.Equal(t, 0, code)

	// a store that cannot be opened degrades to network-only loading
	code, out := run(t, "boot", "--quiet", "--source", "local:"+root, "--store", "local:"+blocker)
	assert.Equal(t, 0, code, out)
}

func TestInvalidSource(t *testing.T) {
	code, _ := run(t, "boot", "--source", "ftp://example.com/")
	assert.Equal(t, 1, code)
}

func TestConfigFile(t *testing.T) {
	root := writeApp(t, map[string]string{
		"src/_imports.json": `["app.js"]`,
		"src/app.js":        "var app = 1;\n",
	})
	cfg := filepath.Join(t.TempDir(), "strvct.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("build:\n  manifest: src/_imports.json\n  out_dir: dist\nlog:\n  level: warn\n"), 0644))

	code, _ := run(t, "--config", cfg, "build", root)
	require.Equal(t, 0, code)
	assert.FileExists(t, filepath.Join(root, "dist", "_index.json"))

	code, _ = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "build", root)
	assert.Equal(t, 1, code)
}

func TestLogFormatError(t *testing.T) {
	resetFlags(cmdRoot)
	t.Cleanup(func() { resetFlags(cmdRoot) })

	require.NoError(t, cmdRoot.ParseFlags([]string{"--log-format", "xml"}))
	err := globalOptions.load(cmdRoot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"xml"`)
}
