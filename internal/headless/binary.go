// File: internal/headless/binary.go
package headless

import (
	"os"
	"os/exec"
	"runtime"
)

// channelBinaries maps a browser channel name to candidate executables, in
// lookup order. Full desktop binaries only: the minimal headless_shell build
// frequently lacks native credential negotiation support and must never be
// selected.
var channelBinaries = map[string][]string{
	"chrome": {
		"google-chrome",
		"google-chrome-stable",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	},
	"msedge": {
		"microsoft-edge",
		"microsoft-edge-stable",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
	},
	"chromium": {
		"chromium",
		"chromium-browser",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
}

// LocateBinary resolves the first available browser executable following the
// configured channel order. Returns "" when no channel yields a binary.
func LocateBinary(channels []string) string {
	for _, channel := range channels {
		for _, candidate := range channelBinaries[channel] {
			if path := resolveExecutable(candidate); path != "" {
				return path
			}
		}
	}
	return ""
}

func resolveExecutable(candidate string) string {
	if isAbsolutish(candidate) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		return ""
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return ""
	}
	return path
}

func isAbsolutish(p string) bool {
	if len(p) == 0 {
		return false
	}
	if p[0] == '/' {
		return true
	}
	// Windows drive-letter paths stay recognizable when this code is compiled
	// elsewhere (the table carries them regardless of GOOS).
	return runtime.GOOS == "windows" && len(p) > 2 && p[1] == ':'
}
